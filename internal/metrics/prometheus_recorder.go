package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	launches      prom.Counter
	monitorPolls  prom.Counter
	logBytes      prom.Counter
	buildDuration prom.Histogram
	outcomes      *prom.CounterVec
	sweepResults  *prom.CounterVec
	orphansFound  prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.launches = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildsafe",
			Name:      "launches_total",
			Help:      "Detached build launches",
		})
		pr.monitorPolls = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildsafe",
			Name:      "monitor_polls_total",
			Help:      "Liveness poll iterations across monitored builds",
		})
		pr.logBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildsafe",
			Name:      "log_bytes_total",
			Help:      "Build log bytes observed by the tailer",
		})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildsafe",
			Name:      "build_duration_seconds",
			Help:      "Wall time of supervised builds",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
		})
		pr.outcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildsafe",
			Name:      "build_outcomes_total",
			Help:      "Terminal build states by outcome",
		}, []string{"outcome"})
		pr.sweepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildsafe",
			Name:      "sweep_results_total",
			Help:      "Recovery sweep results per matched process",
		}, []string{"result"})
		pr.orphansFound = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildsafe",
			Name:      "orphans_found",
			Help:      "Matching orphan processes found by the last sweep",
		})
		reg.MustRegister(pr.launches, pr.monitorPolls, pr.logBytes, pr.buildDuration, pr.outcomes, pr.sweepResults, pr.orphansFound)
	})
	return pr
}

func (p *PrometheusRecorder) IncLaunch() {
	if p == nil || p.launches == nil {
		return
	}
	p.launches.Inc()
}

func (p *PrometheusRecorder) IncMonitorPoll() {
	if p == nil || p.monitorPolls == nil {
		return
	}
	p.monitorPolls.Inc()
}

func (p *PrometheusRecorder) AddLogBytes(n int64) {
	if p == nil || p.logBytes == nil || n <= 0 {
		return
	}
	p.logBytes.Add(float64(n))
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOutcome(outcome OutcomeLabel) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncSweepResult(result SweepLabel) {
	if p == nil || p.sweepResults == nil {
		return
	}
	p.sweepResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetOrphansFound(n int) {
	if p == nil || p.orphansFound == nil {
		return
	}
	p.orphansFound.Set(float64(n))
}
