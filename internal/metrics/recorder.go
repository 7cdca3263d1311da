package metrics

import "time"

// OutcomeLabel enumerates terminal build states for counters.
type OutcomeLabel string

const (
	OutcomeSucceeded OutcomeLabel = "succeeded"
	OutcomeFailed    OutcomeLabel = "failed"
	OutcomeTimedOut  OutcomeLabel = "timed_out"
	OutcomeUnknown   OutcomeLabel = "unknown"
)

// SweepLabel enumerates per-process sweep results for counters.
type SweepLabel string

const (
	SweepTerminated SweepLabel = "terminated"
	SweepVanished   SweepLabel = "vanished"
	SweepSpared     SweepLabel = "spared"
	SweepFailed     SweepLabel = "failed"
)

// Recorder defines observability hooks for supervision metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder zero value (allowing optional injection).
type Recorder interface {
	IncLaunch()
	IncMonitorPoll()
	AddLogBytes(n int64)
	ObserveBuildDuration(d time.Duration)
	IncOutcome(outcome OutcomeLabel)
	IncSweepResult(result SweepLabel)
	SetOrphansFound(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncLaunch()                          {}
func (NoopRecorder) IncMonitorPoll()                     {}
func (NoopRecorder) AddLogBytes(int64)                   {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)  {}
func (NoopRecorder) IncOutcome(OutcomeLabel)             {}
func (NoopRecorder) IncSweepResult(SweepLabel)           {}
func (NoopRecorder) SetOrphansFound(int)                 {}
