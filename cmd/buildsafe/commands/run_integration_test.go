//go:build unix

package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/process"
)

// fastConfig returns defaults tightened for tests that watch real children.
func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Monitor.PollInterval = "50ms"
	cfg.Artifacts.StabilityWindow = "100ms"
	return cfg
}

// latestRecord returns the newest job record of a workdir.
func latestRecord(t *testing.T, workdir string) *job.Job {
	t.Helper()
	jobs, err := job.List(workdir)
	require.NoError(t, err)
	require.NotEmpty(t, jobs, "expected a job record")
	return jobs[0]
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })
	require.NoError(t, os.Chdir(dir))
}

func TestRunSupervisedSucceeds(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	r := &RunCmd{
		Workdir: dir,
		Command: "sh",
		Args: []string{"-c",
			"mkdir -p build && printf '<html><head><title>Home</title></head><body><p>hi</p></body></html>' > build/index.html && echo done"},
		PollInterval: 50 * time.Millisecond,
	}

	require.NoError(t, RunSupervised(context.Background(), cfg, r))

	rec := latestRecord(t, dir)
	assert.Equal(t, job.StateSucceeded, rec.State)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
	assert.Equal(t, 0, rec.ArtifactsBefore)
	assert.Equal(t, 1, rec.ArtifactsAfter, "the build wrote one page")

	dataDir := filepath.Join(dir, ".buildsafe")
	receipt, err := artifact.LoadReceipt(dataDir)
	require.NoError(t, err)
	require.NotNil(t, receipt, "success must leave a receipt")
	assert.Equal(t, rec.ID, receipt.JobID)

	_, err = os.Stat(filepath.Join(dataDir, "report.md"))
	assert.NoError(t, err, "report.md written after the run")
	_, err = os.Stat(filepath.Join(dataDir, "report.html"))
	assert.NoError(t, err, "report.html written after the run")
}

func TestRunSupervisedMirrorsBuildExitCode(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	r := &RunCmd{
		Workdir:      dir,
		Command:      "sh",
		Args:         []string{"-c", "echo 'ERROR: x' 1>&2; exit 2"},
		PollInterval: 50 * time.Millisecond,
	}

	err := RunSupervised(context.Background(), cfg, r)
	require.Error(t, err)

	var child *bserrors.ChildExitError
	require.True(t, errors.As(err, &child))
	assert.Equal(t, 2, child.Code)
	assert.Equal(t, 2, bserrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	rec := latestRecord(t, dir)
	assert.Equal(t, job.StateFailed, rec.State)
	assert.Contains(t, strings.Join(rec.LogTail, "\n"), "ERROR: x", "stderr must land in the log tail")
}

func TestRunSupervisedTimeoutLeavesBuildRunning(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	r := &RunCmd{
		Workdir:      dir,
		Command:      "sh",
		Args:         []string{"-c", "sleep 10"},
		Timeout:      300 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	}

	err := RunSupervised(context.Background(), cfg, r)
	require.Error(t, err)
	assert.True(t, bserrors.IsCategory(err, bserrors.CategoryTimeout))
	assert.Equal(t, 5, bserrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	rec := latestRecord(t, dir)
	defer func() { _ = process.Kill(rec.PID) }()

	assert.Equal(t, job.StateTimedOut, rec.State)
	assert.True(t, process.IsAlive(rec.PID), "timeout ends the watch, not the build")
}

func TestRunSupervisedInterruptLeavesBuildRunning(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	r := &RunCmd{
		Workdir:      dir,
		Command:      "sh",
		Args:         []string{"-c", "sleep 10"},
		PollInterval: 50 * time.Millisecond,
	}

	err := RunSupervised(ctx, cfg, r)
	require.Error(t, err)
	assert.True(t, bserrors.IsCategory(err, bserrors.CategoryTimeout))

	rec := latestRecord(t, dir)
	defer func() { _ = process.Kill(rec.PID) }()

	// The record still says running so a later attach or sweep can find it.
	assert.Equal(t, job.StateRunning, rec.State)
	assert.True(t, process.IsAlive(rec.PID), "interrupt must not signal the build")
}

func TestRunSupervisedDetachOnly(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	r := &RunCmd{
		Workdir:    dir,
		Command:    "sh",
		Args:       []string{"-c", "sleep 5"},
		DetachOnly: true,
	}

	require.NoError(t, RunSupervised(context.Background(), cfg, r))

	rec := latestRecord(t, dir)
	defer func() { _ = process.Kill(rec.PID) }()

	assert.Equal(t, job.StateRunning, rec.State)
	assert.True(t, process.IsAlive(rec.PID))
}

func TestRunSupervisedSetupErrorBeforeSpawn(t *testing.T) {
	dir := t.TempDir()
	cfg := fastConfig(t)

	r := &RunCmd{
		Workdir: dir,
		Command: "definitely-not-a-real-command-zzz",
	}

	err := RunSupervised(context.Background(), cfg, r)
	require.Error(t, err)
	assert.True(t, bserrors.IsCategory(err, bserrors.CategorySetup))
	assert.Equal(t, 3, bserrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestRunAttachClassifiesFinishedBuild(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	workdir, err := os.Getwd()
	require.NoError(t, err)

	cfg := fastConfig(t)

	logPath := filepath.Join(workdir, "detached.log")
	require.NoError(t, os.WriteFile(logPath, []byte("building...\nGenerated static files\n"), 0o644))

	// A child that has already exited stands in for the orphaned build.
	probe := startExitedChild(t, workdir)

	a := &AttachCmd{PID: probe, LogFile: logPath}
	require.NoError(t, RunAttach(context.Background(), cfg, a))

	rec := latestRecord(t, workdir)
	assert.Equal(t, job.StateSucceeded, rec.State)
	assert.Nil(t, rec.ExitCode, "a re-attached monitor cannot reap an exit code")
	assert.Contains(t, rec.Reason, "success marker")
}

// startExitedChild spawns a short-lived process and waits for it to finish,
// returning a pid that is definitely dead.
func startExitedChild(t *testing.T, dir string) int {
	t.Helper()
	spec := RunCmd{Workdir: dir, Command: "sh", Args: []string{"-c", "true"}, DetachOnly: true}
	cfg := fastConfig(t)
	require.NoError(t, RunSupervised(context.Background(), cfg, &spec))
	rec := latestRecord(t, dir)

	deadline := time.After(5 * time.Second)
	for process.IsAlive(rec.PID) {
		select {
		case <-deadline:
			t.Fatal("child never exited")
		case <-time.After(20 * time.Millisecond):
		}
	}
	return rec.PID
}

func TestRunRecoverNothingToRecover(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg := fastConfig(t)
	r := &RecoverCmd{Pattern: []string{"buildsafe-test-nonexistent-zzz"}}

	require.NoError(t, RunRecover(context.Background(), cfg, r))
}

func TestHistoryRecordedAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	workdir, err := os.Getwd()
	require.NoError(t, err)

	cfg := fastConfig(t)
	r := &RunCmd{
		Workdir:      workdir,
		Command:      "sh",
		Args:         []string{"-c", "true"},
		PollInterval: 50 * time.Millisecond,
	}
	require.NoError(t, RunSupervised(context.Background(), cfg, r))

	h := &HistoryCmd{Limit: 5}
	root := &CLI{Config: "buildsafe.yaml"}
	require.NoError(t, h.Run(&Global{}, root))
}
