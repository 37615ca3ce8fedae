package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

var (
	initMetricsOnce      sync.Once
	toolCallsCounter      metric.Int64Counter
	permissionWaitHist    metric.Float64Histogram
	promptDurationHist    metric.Float64Histogram
	sseConnectionsGauge   metric.Int64ObservableGauge
	sseConnections        int64
	sseConnectionsMu      sync.Mutex
	workstreamsGauge      metric.Int64ObservableGauge
	workstreamCountFn     func() map[coordinator.State]int64
	workstreamCountFnMu   sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times;
// only runs once. Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		toolCallsCounter, err = m.Int64Counter("coordinator_tool_calls_total", metric.WithDescription("Total tool calls observed across workstreams"))
		if err != nil {
			return
		}
		permissionWaitHist, err = m.Float64Histogram("coordinator_permission_wait_seconds", metric.WithDescription("Time a workstream spent blocked on a permission decision"))
		if err != nil {
			return
		}
		promptDurationHist, err = m.Float64Histogram("coordinator_prompt_duration_seconds", metric.WithDescription("Duration of session/prompt round trips"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("coordinator_sse_connections", metric.WithDescription("Current control-API SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
		if err != nil {
			return
		}
		workstreamsGauge, err = m.Int64ObservableGauge("coordinator_workstreams_total", metric.WithDescription("Number of workstreams by lifecycle state"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			workstreamCountFnMu.Lock()
			fn := workstreamCountFn
			workstreamCountFnMu.Unlock()
			if fn == nil {
				return nil
			}
			for state, count := range fn() {
				o.ObserveInt64(workstreamsGauge, count, metric.WithAttributes(AttrState.String(string(state))))
			}
			return nil
		}, workstreamsGauge)
	})
	return err
}

// SetWorkstreamCountFunc registers the callback consulted by the
// coordinator_workstreams_total observable gauge.
func SetWorkstreamCountFunc(fn func() map[coordinator.State]int64) {
	workstreamCountFnMu.Lock()
	workstreamCountFn = fn
	workstreamCountFnMu.Unlock()
}

// Recorder adapts the package-level instruments to
// coordinator.MetricsRecorder.
type Recorder struct{}

func (Recorder) RecordStateChange(state coordinator.State) {
	// workstream state counts are sampled via the observable gauge rather
	// than incremented here, since a state change is a move between
	// buckets, not an independent event.
	_ = state
}

func (Recorder) RecordToolCall() {
	if toolCallsCounter != nil {
		toolCallsCounter.Add(context.Background(), 1)
	}
}

func (Recorder) RecordPermissionWait(d time.Duration) {
	if permissionWaitHist != nil {
		permissionWaitHist.Record(context.Background(), d.Seconds())
	}
}

func (Recorder) RecordPromptDuration(d time.Duration) {
	if promptDurationHist != nil {
		promptDurationHist.Record(context.Background(), d.Seconds())
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on
// unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}
