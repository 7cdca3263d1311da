//go:build unix

package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/process"
)

var markerSeq atomic.Int64

// launchMarkedSleep starts a detached shell script whose cmdline carries a
// unique marker, so sweep patterns in tests can never match an unrelated
// process on the host or a dying child from an earlier test.
func launchMarkedSleep(t *testing.T, dir string) (pid int, marker string) {
	t.Helper()
	marker = fmt.Sprintf("buildsafe-sweep-test-%d-%d", os.Getpid(), markerSeq.Add(1))
	script := filepath.Join(dir, marker+".sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 30\n"), 0o755))

	spec := &launch.Spec{Workdir: dir, Command: "sh", Args: []string{script}}
	require.NoError(t, launch.Preflight(spec))
	handle, err := launch.Launch(*spec)
	require.NoError(t, err)
	require.NoError(t, handle.Release())

	t.Cleanup(func() { _ = process.Kill(handle.PID) })
	return handle.PID, marker
}

func TestCompilePatternsRejectsInvalid(t *testing.T) {
	_, err := compilePatterns([]string{"docusaurus build", "te[st"})
	require.Error(t, err)
	assert.True(t, bserrors.IsCategory(err, bserrors.CategoryValidation))

	_, err = compilePatterns(nil)
	require.Error(t, err)
	assert.True(t, bserrors.IsCategory(err, bserrors.CategoryValidation))
}

func TestMatchPattern(t *testing.T) {
	compiled, err := compilePatterns([]string{"docusaurus build", "npm run build"})
	require.NoError(t, err)

	assert.Equal(t, "docusaurus build",
		matchPattern("node /srv/docs/node_modules/.bin/docusaurus build", compiled))
	assert.Equal(t, "npm run build", matchPattern("npm run build", compiled))
	assert.Empty(t, matchPattern("vim notes.md", compiled))
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "node", firstToken("/usr/bin/node docusaurus build"))
	assert.Equal(t, "sh", firstToken("sh"))
}

func TestAncestorSetContainsParent(t *testing.T) {
	ancestors := ancestorSet(os.Getpid())
	assert.True(t, ancestors[os.Getppid()], "parent %d missing from %v", os.Getppid(), ancestors)
}

func TestListProcessesIncludesSelf(t *testing.T) {
	procs, err := listProcesses()
	require.NoError(t, err)
	require.NotEmpty(t, procs)

	self := os.Getpid()
	found := false
	for _, p := range procs {
		if p.PID == self {
			found = true
			assert.NotEmpty(t, p.Cmdline)
			break
		}
	}
	assert.True(t, found, "own pid %d not in process table", self)
}

func TestParentOfSelf(t *testing.T) {
	assert.Equal(t, os.Getppid(), parentOf(os.Getpid()))
}

func TestSelectTargetsExcludesSelfAndSession(t *testing.T) {
	s := &Sweeper{}
	compiled, err := compilePatterns([]string{"."})
	require.NoError(t, err)

	procs := []ProcessRecord{
		{PID: os.Getpid(), Cmdline: "anything at all"},
		{PID: os.Getppid(), Cmdline: "the invoking shell"},
	}
	matched, protected := s.selectTargets(procs, compiled)
	assert.Empty(t, matched)
	assert.Empty(t, protected)
}

func TestProtectedSessionsRequireLiveSupervisor(t *testing.T) {
	dir := t.TempDir()

	alive := job.New(dir, "npm", []string{"run", "build"})
	alive.State = job.StateRunning
	alive.PID = 4242
	alive.SupervisorPID = os.Getpid() // this test process is alive
	require.NoError(t, alive.Save())

	dead := job.New(dir, "npm", []string{"run", "build"})
	dead.State = job.StateRunning
	dead.PID = 4343
	dead.SupervisorPID = 1 << 30 // no such process
	require.NoError(t, dead.Save())

	s := &Sweeper{Workdir: dir}
	guarded := s.protectedSessions()
	assert.True(t, guarded[4242], "job with live supervisor must be guarded")
	assert.False(t, guarded[4343], "job with dead supervisor must be sweepable")
}

func TestSweepTerminatesOrphan(t *testing.T) {
	dir := t.TempDir()
	pid, marker := launchMarkedSleep(t, dir)

	s := &Sweeper{
		Workdir:      dir,
		ArtifactDir:  filepath.Join(dir, "build"),
		ArtifactGlob: "*.html",
		Patterns:     []string{marker},
		Grace:        2 * time.Second,
	}

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Matched, 1)
	assert.Equal(t, pid, report.Matched[0].PID)
	assert.False(t, report.LikelyComplete)
	require.Len(t, report.Results, 1)
	assert.Contains(t, []Action{ActionTerminated, ActionKilled}, report.Results[0].Action)
	assert.Equal(t, 1, report.Cleaned())

	assert.True(t, process.WaitForExit(pid, 3*time.Second), "orphan still alive after sweep")
}

func TestSweepIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, marker := launchMarkedSleep(t, dir)

	s := &Sweeper{
		Workdir:  dir,
		Patterns: []string{marker},
		Grace:    2 * time.Second,
	}

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// A second sweep finds nothing and succeeds.
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Matched)
	assert.Empty(t, report.Results)
}

func TestSweepSparesActiveJob(t *testing.T) {
	dir := t.TempDir()
	pid, marker := launchMarkedSleep(t, dir)

	record := job.New(dir, "sh", nil)
	record.State = job.StateRunning
	record.PID = pid
	record.SupervisorPID = os.Getpid()
	require.NoError(t, record.Save())

	s := &Sweeper{
		Workdir:  dir,
		Patterns: []string{marker},
		Grace:    time.Second,
	}

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Matched)
	require.Len(t, report.Protected, 1)
	assert.Equal(t, pid, report.Protected[0].PID)
	assert.True(t, process.IsAlive(pid), "protected job was killed")
}

func TestSweepAsksBeforeKillingCompleteBuild(t *testing.T) {
	dir := t.TempDir()
	pid, marker := launchMarkedSleep(t, dir)

	// A success receipt marks the build output as complete.
	require.NoError(t, artifact.WriteReceipt(job.DataDir(dir), artifact.Receipt{
		JobID:      "done-earlier",
		FinishedAt: time.Now(),
	}))

	s := &Sweeper{
		Workdir:      dir,
		ArtifactDir:  filepath.Join(dir, "build"),
		ArtifactGlob: "*.html",
		Patterns:     []string{marker},
		Grace:        time.Second,
	}

	// Without confirmation everything is spared.
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.LikelyComplete)
	require.Len(t, report.Results, 1)
	assert.Equal(t, ActionSpared, report.Results[0].Action)
	assert.True(t, process.IsAlive(pid))

	// An explicit yes proceeds.
	s.AssumeYes = true
	report, err = s.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Results)
	assert.NotEqual(t, ActionSpared, report.Results[0].Action)
	assert.True(t, process.WaitForExit(pid, 3*time.Second))
}

func TestSweepConfirmCallback(t *testing.T) {
	dir := t.TempDir()
	_, marker := launchMarkedSleep(t, dir)

	require.NoError(t, artifact.WriteReceipt(job.DataDir(dir), artifact.Receipt{
		JobID:      "done-earlier",
		FinishedAt: time.Now(),
	}))

	var prompted string
	s := &Sweeper{
		Workdir:  dir,
		Patterns: []string{marker},
		Grace:    time.Second,
		Confirm: func(prompt string) bool {
			prompted = prompt
			return false
		},
	}

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, prompted, "looks complete")
	require.Len(t, report.Results, 1)
	assert.Equal(t, ActionSpared, report.Results[0].Action)
}

func TestTerminateVanishedProcess(t *testing.T) {
	action, err := terminate(1<<30, time.Second)
	require.NoError(t, err)
	assert.Equal(t, ActionVanished, action)
}
