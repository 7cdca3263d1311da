// Package monitor watches a detached build until it reaches a terminal
// state. The monitor only ever observes: no code path here sends a signal to
// the build, so stopping the monitor (interrupt, timeout) always leaves the
// build running.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
	"git.home.luguber.info/inful/buildsafe/internal/metrics"
	"git.home.luguber.info/inful/buildsafe/internal/process"
	"git.home.luguber.info/inful/buildsafe/internal/retry"
)

// DefaultPollInterval paces liveness checks when nothing else wakes the loop.
const DefaultPollInterval = 3 * time.Second

// Target identifies the build under observation. Exit is non-nil only when
// this process launched the build itself and can reap a real exit code;
// re-attached monitors leave it nil and rely on log markers and artifacts.
type Target struct {
	PID     int
	LogPath string
	Exit    <-chan launch.Exit
}

// Options tunes one monitoring session.
type Options struct {
	PollInterval   time.Duration
	Timeout        time.Duration // 0 means monitor until the build ends
	TailLines      int
	SuccessMarkers []string
	FailureMarkers []string
	Retry          retry.Policy // applied to transient log read failures

	// Artifact evidence for classification when the exit code is out of
	// reach and the log carries no markers. SkipHTMLProbe trusts a grown
	// count without parsing the newest page first.
	ArtifactDir   string
	ArtifactGlob  string
	Before        artifact.Snapshot
	SkipHTMLProbe bool

	// Receipt identity, written on confirmed success when ReceiptDir is set.
	ReceiptDir string
	JobID      string
	Commit     string

	Recorder metrics.Recorder
}

// Outcome is the terminal result of a monitoring session.
type Outcome struct {
	State    job.State
	ExitCode *int // nil when the code could not be reaped
	Reason   string
	Tail     []string
	Elapsed  time.Duration
	Delta    *artifact.Delta
	LogBytes int64
}

// session carries the loop state for one Run call.
type session struct {
	target   Target
	opts     Options
	rec      metrics.Recorder
	tailer   *Tailer
	start    time.Time
	logBytes int64
	signaled bool
}

// Run monitors the build to a terminal state. Context cancellation stops
// monitoring immediately and returns ctx.Err(); the build is left untouched.
func Run(ctx context.Context, target Target, opts Options) (*Outcome, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Retry.Validate() != nil {
		opts.Retry = retry.DefaultPolicy()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	m := &session{
		target: target,
		opts:   opts,
		rec:    rec,
		tailer: NewTailer(target.LogPath, opts.TailLines, opts.SuccessMarkers, opts.FailureMarkers),
		start:  time.Now(),
	}

	slog.Info("Monitoring build",
		logfields.PID(target.PID),
		logfields.LogPath(target.LogPath),
		slog.Duration("poll_interval", opts.PollInterval))

	watcher, wake, err := watchLog(target.LogPath)
	if err != nil {
		slog.Debug("Log watcher unavailable, relying on polls",
			logfields.LogPath(target.LogPath), logfields.Error(err))
	} else {
		defer func() {
			_ = watcher.Close()
		}()
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	var timeoutC <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	// Pick up anything the build wrote before monitoring began.
	m.readLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutC:
			m.readLog(ctx)
			return m.timedOut(), nil

		case exit := <-target.Exit:
			m.readLog(ctx)
			return m.classify(&exit), nil

		case <-wake:
			m.readLog(ctx)

		case <-ticker.C:
			rec.IncMonitorPoll()
			m.readLog(ctx)
			if !process.IsAlive(target.PID) {
				if exit, ok := m.awaitExit(); ok {
					m.readLog(ctx)
					return m.classify(&exit), nil
				}
				m.readLog(ctx)
				return m.classify(nil), nil
			}
		}
	}
}

// awaitExit gives the reaper a moment to deliver the real exit status after
// the liveness check noticed the death first.
func (m *session) awaitExit() (launch.Exit, bool) {
	if m.target.Exit == nil {
		return launch.Exit{}, false
	}
	select {
	case exit := <-m.target.Exit:
		return exit, true
	case <-time.After(2 * time.Second):
		return launch.Exit{}, false
	}
}

// readLog drains newly appended log bytes, retrying transient failures per
// the backoff policy. A read failure never aborts monitoring; it only thins
// the evidence available at classification.
func (m *session) readLog(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		n, err := m.tailer.Poll()
		if err == nil {
			if n > 0 {
				m.logBytes += n
				m.rec.AddLogBytes(n)
			}
			return
		}
		if attempt >= m.opts.Retry.MaxRetries {
			slog.Warn("Log read failed after retries",
				logfields.LogPath(m.target.LogPath), logfields.Error(err))
			return
		}
		slog.Debug("Log read failed, retrying",
			logfields.LogPath(m.target.LogPath), logfields.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.Retry.Delay(attempt + 1)):
		}
	}
}

// timedOut builds the outcome for a monitor that gave up waiting. The build
// itself keeps running; only the observation ends.
func (m *session) timedOut() *Outcome {
	m.rec.IncOutcome(metrics.OutcomeTimedOut)
	out := &Outcome{
		State:    job.StateTimedOut,
		Reason:   "monitor timeout elapsed with the build still running",
		Tail:     m.tailer.Tail(),
		Elapsed:  time.Since(m.start),
		LogBytes: m.logBytes,
	}
	slog.Warn("Monitor timeout, leaving build running",
		logfields.PID(m.target.PID),
		logfields.LogPath(m.target.LogPath),
		logfields.DurationMS(float64(out.Elapsed.Milliseconds())))
	return out
}
