package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	"git.home.luguber.info/inful/buildsafe/internal/config"
	"git.home.luguber.info/inful/buildsafe/internal/envcheck"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/history"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
	"git.home.luguber.info/inful/buildsafe/internal/metrics"
	"git.home.luguber.info/inful/buildsafe/internal/monitor"
	"git.home.luguber.info/inful/buildsafe/internal/notify"
	"git.home.luguber.info/inful/buildsafe/internal/provenance"
	"git.home.luguber.info/inful/buildsafe/internal/report"
	"git.home.luguber.info/inful/buildsafe/internal/retry"
	"git.home.luguber.info/inful/buildsafe/internal/verify"
	"git.home.luguber.info/inful/buildsafe/internal/workspace"
)

// recordRetention is how long terminal job records are kept before launch-time
// housekeeping removes them.
const recordRetention = 30 * 24 * time.Hour

// RunCmd implements the 'run' command.
type RunCmd struct {
	Workdir string   `arg:"" help:"Directory the build runs in" type:"existingdir"`
	Command string   `arg:"" help:"Build command to execute"`
	Args    []string `arg:"" optional:"" passthrough:"" help:"Arguments for the build command"`

	Verify       bool          `help:"Run the configured verification command after a successful build"`
	Timeout      time.Duration `help:"Stop watching after this long; the build keeps running"`
	PollInterval time.Duration `name:"poll-interval" help:"Liveness poll interval"`
	LogFile      string        `name:"log-file" help:"Build log path (default <workdir>/.buildsafe/build.log)"`
	Append       bool          `help:"Append to an existing log instead of truncating"`
	DetachOnly   bool          `name:"detach-only" help:"Launch detached and exit without monitoring"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunSupervised(ctx, cfg, r)
}

// RunSupervised launches the build detached from the terminal and, unless
// --detach-only was given, watches it to a terminal state. Cancelling ctx
// abandons the watch without touching the build.
func RunSupervised(ctx context.Context, cfg *config.Config, r *RunCmd) error {
	warnFragileEnvironment()

	ws := workspace.NewManager(r.Workdir)
	if err := ws.Create(); err != nil {
		return bserrors.WorkdirInvalid(r.Workdir, err)
	}
	if err := ws.Prune(recordRetention); err != nil {
		slog.Debug("Job record housekeeping failed", logfields.Error(err))
	}

	spec := launch.Spec{
		Workdir:    r.Workdir,
		Command:    r.Command,
		Args:       r.Args,
		Env:        cfg.Launch.Env,
		NodeHeapMB: cfg.Launch.NodeHeapMB,
		LogPath:    firstNonEmpty(r.LogFile, cfg.Launch.LogFile),
		AppendLog:  r.Append || cfg.Launch.AppendLog,
	}

	j := job.New(r.Workdir, r.Command, r.Args)
	j.SupervisorPID = os.Getpid()
	j.Env = cfg.Launch.Env
	j.Git = provenance.Capture(r.Workdir)
	spec.JobID = j.ID

	if err := launch.Preflight(&spec); err != nil {
		return err
	}
	j.LogPath = spec.LogPath

	artifactDir := resolveArtifactDir(r.Workdir, cfg)
	before, err := artifact.Take(artifactDir, cfg.Artifacts.Glob)
	if err != nil {
		slog.Warn("Could not snapshot artifacts before launch", logfields.Error(err))
	}
	j.ArtifactsBefore = before.Count

	rec, stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	pub := newPublisher(cfg)
	defer func() {
		_ = pub.Close()
	}()

	store := openHistory(cfg, ws)
	if store != nil {
		defer func() {
			_ = store.Close()
		}()
	}

	handle, err := launch.Launch(spec)
	if err != nil {
		return err
	}
	rec.IncLaunch()

	j.State = job.StateRunning
	j.StartedAt = time.Now()
	j.PID = handle.PID
	saveJob(j)
	recordHistory(ctx, store, j)
	pub.JobStarted(j)

	fmt.Printf("Build started: pid %d, log %s\n", handle.PID, handle.LogPath)

	if r.DetachOnly {
		if err := handle.Release(); err != nil {
			slog.Warn("Could not release build process handle", logfields.Error(err))
		}
		fmt.Printf("Detached. Watch later with: buildsafe attach --pid %d\n", handle.PID)
		return nil
	}

	target := monitor.Target{PID: handle.PID, LogPath: handle.LogPath, Exit: handle.Wait()}
	out, err := monitor.Run(ctx, target, monitorOptions(cfg, artifactDir, before, ws, j, rec, r.PollInterval, r.Timeout))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("Supervisor interrupted. Build %d still runs detached; log: %s\n", handle.PID, handle.LogPath)
			fmt.Printf("Re-attach with: buildsafe attach --pid %d\n", handle.PID)
			return bserrors.SupervisorInterrupted(handle.PID)
		}
		return err
	}

	finishJob(j, out)
	saveJob(j)
	recordHistory(ctx, store, j)
	pub.JobFinished(j)
	writeReport(ws, j)

	return concludeRun(ctx, cfg, r.Verify, r.Workdir, j, out)
}

// concludeRun translates the monitoring outcome into user output and the
// process exit status.
func concludeRun(ctx context.Context, cfg *config.Config, verifyAfter bool, workdir string, j *job.Job, out *monitor.Outcome) error {
	switch out.State {
	case job.StateSucceeded:
		fmt.Printf("Build succeeded in %s (%s)\n", out.Elapsed.Round(time.Second), out.Reason)
		if verifyAfter {
			return runVerification(ctx, cfg, workdir)
		}
		return nil

	case job.StateFailed:
		fmt.Printf("Build failed (%s); log: %s\n", out.Reason, j.LogPath)
		printTail(out.Tail)
		if out.ExitCode != nil {
			return &bserrors.ChildExitError{Code: *out.ExitCode}
		}
		return bserrors.BuildFailed(errors.New(out.Reason))

	case job.StateTimedOut:
		fmt.Printf("Still running after %s: pid %d, log %s\n", out.Elapsed.Round(time.Second), j.PID, j.LogPath)
		fmt.Printf("Re-attach with: buildsafe attach --pid %d\n", j.PID)
		return bserrors.MonitorTimedOut(j.PID)

	default:
		fmt.Printf("Build outcome unknown (%s); log: %s\n", out.Reason, j.LogPath)
		printTail(out.Tail)
		return bserrors.OutcomeUnknown(j.PID, errors.New(out.Reason))
	}
}

func runVerification(ctx context.Context, cfg *config.Config, workdir string) error {
	res, err := verify.Run(ctx, workdir, cfg.Verify)
	if err != nil {
		return err
	}
	if res.Passed {
		fmt.Printf("Verification passed in %s\n", res.Elapsed.Round(time.Second))
		return nil
	}
	if res.TimedOut {
		fmt.Println("Verification timed out")
	} else if res.Output != "" {
		fmt.Println(res.Output)
	}
	return bserrors.VerificationFailed(res.ExitCode)
}

func monitorOptions(cfg *config.Config, artifactDir string, before artifact.Snapshot, ws *workspace.Manager, j *job.Job, rec metrics.Recorder, pollOverride, timeoutOverride time.Duration) monitor.Options {
	opts := monitor.Options{
		PollInterval:   cfg.Monitor.PollIntervalDuration(),
		Timeout:        cfg.Monitor.TimeoutDuration(),
		TailLines:      cfg.Monitor.TailLines,
		SuccessMarkers: cfg.Monitor.SuccessMarkers,
		FailureMarkers: cfg.Monitor.FailureMarkers,
		Retry:          retryPolicy(cfg),
		ArtifactDir:    artifactDir,
		ArtifactGlob:   cfg.Artifacts.Glob,
		Before:         before,
		SkipHTMLProbe:  cfg.Artifacts.SkipHTMLProbe,
		ReceiptDir:     ws.Path(),
		JobID:          j.ID,
		Recorder:       rec,
	}
	if j.Git != nil {
		opts.Commit = j.Git.Commit
	}
	if pollOverride > 0 {
		opts.PollInterval = pollOverride
	}
	if timeoutOverride > 0 {
		opts.Timeout = timeoutOverride
	}
	return opts
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.NewPolicy(
		cfg.Monitor.RetryBackoff,
		cfg.Monitor.RetryInitialDuration(),
		cfg.Monitor.RetryMaxDuration(),
		cfg.Monitor.MaxRetries,
	)
}

// resolveArtifactDir anchors the configured artifact directory to the workdir
// unless it is already absolute.
func resolveArtifactDir(workdir string, cfg *config.Config) string {
	dir := cfg.Artifacts.Dir
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workdir, dir)
}

func warnFragileEnvironment() {
	env := envcheck.Detect()
	if !env.Fragile() {
		return
	}
	slog.Warn("Fragile terminal environment; the build will be detached",
		"signals", strings.Join(env.Signals, "; "))
	for _, rec := range env.Recommendations {
		slog.Info("Recommendation", "setting", rec.Setting, "reason", rec.Reason)
	}
}

func startMetrics(cfg *config.Config) (metrics.Recorder, func()) {
	if cfg.Metrics == nil || !cfg.Metrics.Enabled {
		return metrics.NoopRecorder{}, func() {}
	}

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	srv, err := metrics.StartServer(cfg.Metrics.Addr, cfg.Metrics.Path, reg)
	if err != nil {
		slog.Warn("Metrics endpoint unavailable", logfields.Error(err))
		return rec, func() {}
	}
	slog.Debug("Metrics endpoint listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)

	return rec, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func newPublisher(cfg *config.Config) notify.Publisher {
	pub, err := notify.New(cfg.Notify)
	if err != nil {
		slog.Warn("Notifications unavailable", logfields.Error(err))
		return notify.NoopPublisher{}
	}
	return pub
}

// openHistory returns the run-history store, or nil when history is disabled
// or unavailable. Builds never fail because bookkeeping does.
func openHistory(cfg *config.Config, ws *workspace.Manager) *history.Store {
	if cfg.History == nil || !cfg.History.Enabled {
		return nil
	}
	path := cfg.History.Path
	if path == "" {
		path = ws.HistoryPath()
	}
	store, err := history.Open(path)
	if err != nil {
		slog.Warn("History store unavailable", logfields.Error(err))
		return nil
	}
	return store
}

func recordHistory(ctx context.Context, store *history.Store, j *job.Job) {
	if store == nil {
		return
	}
	if err := store.Record(ctx, j); err != nil {
		slog.Warn("Could not record run history", logfields.JobID(j.ID), logfields.Error(err))
	}
}

func saveJob(j *job.Job) {
	if err := j.Save(); err != nil {
		slog.Warn("Could not persist job record", logfields.JobID(j.ID), logfields.Error(err))
	}
}

func finishJob(j *job.Job, out *monitor.Outcome) {
	j.State = out.State
	j.EndedAt = time.Now()
	j.ExitCode = out.ExitCode
	j.Reason = out.Reason
	j.LogTail = out.Tail
	if out.Delta != nil {
		j.ArtifactsAfter = out.Delta.After.Count
	}
}

func writeReport(ws *workspace.Manager, j *job.Job) {
	if err := report.Write(ws.Path(), j); err != nil {
		slog.Warn("Could not write build report", logfields.Error(err))
	}
}

func printTail(tail []string) {
	if len(tail) == 0 {
		return
	}
	fmt.Println("Last log lines:")
	for _, line := range tail {
		fmt.Printf("  %s\n", line)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
