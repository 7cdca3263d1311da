package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
	"git.home.luguber.info/inful/buildsafe/internal/monitor"
	"git.home.luguber.info/inful/buildsafe/internal/process"
	"git.home.luguber.info/inful/buildsafe/internal/workspace"
)

// AttachCmd implements the 'attach' command: re-attach the monitor to a
// build that is already running detached, typically after the original
// supervisor was interrupted or timed out.
type AttachCmd struct {
	PID     int           `required:"" help:"Process id of the detached build"`
	LogFile string        `name:"log-file" help:"Build log path when no job record names one"`
	Timeout time.Duration `help:"Stop watching after this long; the build keeps running"`
}

func (a *AttachCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunAttach(ctx, cfg, a)
}

// RunAttach watches an already-detached build from the current directory.
// Without the original process handle no exit code can be reaped; the
// outcome comes from log markers and the artifact delta.
func RunAttach(ctx context.Context, cfg *config.Config, a *AttachCmd) error {
	workdir, err := workingDir()
	if err != nil {
		return err
	}

	ws := workspace.NewManager(workdir)
	if err := ws.Create(); err != nil {
		return bserrors.WorkdirInvalid(workdir, err)
	}

	j := findJobForPID(workdir, a.PID)
	fresh := j == nil
	if fresh {
		j = job.New(workdir, "unknown", nil)
		j.PID = a.PID
		j.StartedAt = time.Now()
	}
	j.State = job.StateRunning
	j.SupervisorPID = os.Getpid()
	j.LogPath = firstNonEmpty(a.LogFile, j.LogPath, launch.DefaultLogPath(workdir))

	artifactDir := resolveArtifactDir(workdir, cfg)
	before := artifact.Snapshot{
		Dir:     artifactDir,
		Glob:    cfg.Artifacts.Glob,
		Count:   j.ArtifactsBefore,
		TakenAt: j.StartedAt,
	}
	if fresh {
		if snap, err := artifact.Take(artifactDir, cfg.Artifacts.Glob); err == nil {
			before = snap
			j.ArtifactsBefore = snap.Count
		}
	}

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

	// Claiming the record keeps the sweeper off this build while we watch.
	saveJob(j)
	recordHistory(ctx, store, j)

	if !process.IsAlive(a.PID) {
		slog.Info("Process already finished; classifying from remaining evidence", logfields.PID(a.PID))
	}
	fmt.Printf("Watching build: pid %d, log %s\n", a.PID, j.LogPath)

	target := monitor.Target{PID: a.PID, LogPath: j.LogPath}
	out, err := monitor.Run(ctx, target, monitorOptions(cfg, artifactDir, before, ws, j, rec, 0, a.Timeout))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("Detached again. Build %d keeps running; log: %s\n", a.PID, j.LogPath)
			return bserrors.SupervisorInterrupted(a.PID)
		}
		return err
	}

	finishJob(j, out)
	saveJob(j)
	recordHistory(ctx, store, j)
	pub.JobFinished(j)
	writeReport(ws, j)

	return concludeRun(ctx, cfg, false, workdir, j, out)
}

// findJobForPID locates the job record of a detached build, preferring the
// most recent record still marked running.
func findJobForPID(workdir string, pid int) *job.Job {
	jobs, err := job.List(workdir)
	if err != nil {
		slog.Debug("Could not read job records", logfields.Error(err))
		return nil
	}
	var fallback *job.Job
	for _, j := range jobs {
		if j.PID != pid {
			continue
		}
		if j.State == job.StateRunning {
			return j
		}
		if fallback == nil {
			fallback = j
		}
	}
	return fallback
}
