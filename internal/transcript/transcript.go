// Package transcript mirrors workstream conversation messages to durable,
// human-readable markdown files, one per workstream. It is write-only: the
// coordinator never reads these files back to reconstruct state.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

var _ coordinator.TranscriptSink = (*Journal)(nil)

// Journal appends conversation messages to Dir/<workstreamID>.md.
type Journal struct {
	Dir string

	mu sync.Mutex
}

// New returns a Journal rooted at dir. dir is created lazily on first Append.
func New(dir string) *Journal {
	return &Journal{Dir: dir}
}

// Append writes msg to the workstream's transcript file, creating the file
// and its directory if needed. Failures are logged rather than surfaced,
// since a missing transcript entry must never block a workstream.
func (j *Journal) Append(workstreamID string, msg coordinator.ConversationMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "transcript: create dir: %v\n", err)
		return
	}
	path := j.path(workstreamID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcript: open %s: %v\n", path, err)
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(formatBlock(msg)); err != nil {
		fmt.Fprintf(os.Stderr, "transcript: write %s: %v\n", path, err)
	}
}

// Path returns the transcript file path for a workstream, without creating it.
func (j *Journal) Path(workstreamID string) string {
	return j.path(workstreamID)
}

func (j *Journal) path(workstreamID string) string {
	return filepath.Join(j.Dir, workstreamID+".md")
}

func formatBlock(msg coordinator.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("\n---\n\n")
	b.WriteString("## ")
	b.WriteString(msg.Timestamp.Format("2006-01-02 15:04:05"))
	b.WriteString(" - ")
	b.WriteString(string(msg.Role))
	b.WriteString("\n\n")
	b.WriteString(msg.Content)
	b.WriteString("\n")
	return b.String()
}
