package daemon

import (
	"context"
	"os"
	"testing"
)

func TestStartForeground_emptyHome(t *testing.T) {
	ctx := context.Background()
	err := StartForeground(ctx, StartOptions{Home: ""})
	if err == nil {
		t.Fatal("StartForeground empty home: expected error")
	}
}

func TestStatus_noPidFile(t *testing.T) {
	home := t.TempDir()
	st, err := Status(context.Background(), home)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running {
		t.Error("expected Running=false with no pid file")
	}
}

func TestStatus_stalePidFileCleanedUp(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(protectedDir(home), 0o755); err != nil {
		t.Fatal(err)
	}
	// A pid almost certainly not alive in the test sandbox.
	if err := os.WriteFile(pidPath(home), []byte("999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Status(context.Background(), home)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running {
		t.Error("expected Running=false for a dead pid")
	}
	if _, err := os.Stat(pidPath(home)); !os.IsNotExist(err) {
		t.Error("expected stale pid file to be removed")
	}
}

func TestStatus_malformedPidFile(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(protectedDir(home), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pidPath(home), []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Status(context.Background(), home)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running {
		t.Error("expected Running=false for a malformed pid file")
	}
}

func TestStop_notRunning(t *testing.T) {
	home := t.TempDir()
	stopped, err := Stop(context.Background(), home)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped {
		t.Error("expected Stop to report nothing was stopped")
	}
}

func TestAcquireLock_mutualExclusion(t *testing.T) {
	home := t.TempDir()
	lockFile := lockPath(home)

	l1, err := acquireLock(lockFile)
	if err != nil {
		t.Fatalf("first acquireLock: %v", err)
	}
	defer l1.release()

	if _, err := acquireLock(lockFile); err == nil {
		t.Error("expected second acquireLock to fail while the first holds the lock")
	}

	l1.release()

	l2, err := acquireLock(lockFile)
	if err != nil {
		t.Fatalf("acquireLock after release: %v", err)
	}
	l2.release()
}

func TestCheckPortAvailable(t *testing.T) {
	if err := checkPortAvailable(0); err != nil {
		t.Errorf("port 0 (any free port) should be available: %v", err)
	}
}
