package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncLaunch()
	r.IncMonitorPoll()
	r.AddLogBytes(1024)
	r.ObserveBuildDuration(time.Second)
	r.IncOutcome(OutcomeSucceeded)
	r.IncSweepResult(SweepTerminated)
	r.SetOrphansFound(3)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncLaunch()
	pr.IncMonitorPoll()
	pr.AddLogBytes(4096)
	pr.ObserveBuildDuration(90 * time.Second)
	pr.IncOutcome(OutcomeFailed)
	pr.IncSweepResult(SweepVanished)
	pr.SetOrphansFound(2)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestPrometheusRecorderNilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncLaunch()
	pr.ObserveBuildDuration(time.Second)
	pr.IncOutcome(OutcomeUnknown)
}
