//go:build unix

// Package integration exercises supervision behavior that only shows up
// across real process boundaries: a supervisor process is killed outright
// and the detached build it launched must keep running until a recovery
// sweep collects it. The test binary re-executes itself as the supervisor
// so the kill lands on a separate process, not on the test harness.
package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/process"
	"git.home.luguber.info/inful/buildsafe/internal/sweep"
)

const (
	helperWorkdirEnv = "BUILDSAFE_HELPER_WORKDIR"
	helperMarkerEnv  = "BUILDSAFE_HELPER_MARKER"
)

func TestMain(m *testing.M) {
	if dir := os.Getenv(helperWorkdirEnv); dir != "" {
		runHelperSupervisor(dir, os.Getenv(helperMarkerEnv))
		return
	}
	os.Exit(m.Run())
}

// runHelperSupervisor plays the supervisor role in a child process: launch a
// detached build, report its PID on stdout, then linger so the test can kill
// this process while the build is still running. The marker goes into the
// build's argv so the sweep tests can match it without touching anything
// else on the machine.
func runHelperSupervisor(dir, marker string) {
	// The trailing exit keeps the shell from exec-replacing itself with
	// sleep, so the marker stays visible in the process table.
	spec := launch.Spec{
		Workdir: dir,
		Command: "sh",
		Args:    []string{"-c", "sleep 60; exit 0 # " + marker},
	}
	if err := launch.Preflight(&spec); err != nil {
		fmt.Fprintln(os.Stderr, "helper preflight:", err)
		os.Exit(1)
	}
	handle, err := launch.Launch(spec)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper launch:", err)
		os.Exit(1)
	}
	_ = handle.Release()
	fmt.Println(handle.PID)

	// Stay alive until killed. Exiting here would prove nothing.
	time.Sleep(time.Minute)
}

// orphanedBuild starts the helper supervisor, reads back the PID of the
// detached build it launched, then SIGKILLs the supervisor. What remains is
// exactly the situation the sweeper exists for: a live build nobody owns.
func orphanedBuild(t *testing.T) (childPID int, workdir, marker string) {
	t.Helper()

	workdir = t.TempDir()
	marker = fmt.Sprintf("buildsafe-it-%d-%d", os.Getpid(), time.Now().UnixNano())

	sup := exec.Command(os.Args[0])
	sup.Env = append(os.Environ(),
		helperWorkdirEnv+"="+workdir,
		helperMarkerEnv+"="+marker)
	sup.Stderr = os.Stderr
	out, err := sup.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, sup.Start())

	_, err = fmt.Fscan(out, &childPID)
	require.NoError(t, err, "helper supervisor should report the build pid")
	require.Greater(t, childPID, 0)

	t.Cleanup(func() { _ = process.Kill(childPID) })

	require.True(t, process.IsAlive(childPID), "build should be running before the supervisor dies")

	require.NoError(t, sup.Process.Kill())
	_, _ = sup.Process.Wait()

	return childPID, workdir, marker
}

func TestDetachedBuildSurvivesSupervisorKill(t *testing.T) {
	childPID, workdir, _ := orphanedBuild(t)

	// The supervisor is gone. Give reparenting a moment, then check the
	// build is still alive and still in its own session.
	time.Sleep(300 * time.Millisecond)
	require.True(t, process.IsAlive(childPID), "detached build must survive its supervisor")

	sid := process.SessionID(childPID)
	require.NotEqual(t, -1, sid)
	require.NotEqual(t, process.SessionID(os.Getpid()), sid,
		"build must not share the test session, or a sweep from here would spare it")

	// Launch redirected the build's output before the supervisor died.
	_, err := os.Stat(launch.DefaultLogPath(workdir))
	require.NoError(t, err, "build log should exist")
}

func TestSweepCollectsOrphanAfterSupervisorDeath(t *testing.T) {
	childPID, workdir, marker := orphanedBuild(t)

	require.True(t, process.IsAlive(childPID))

	sw := &sweep.Sweeper{
		Workdir:         workdir,
		ArtifactDir:     filepath.Join(workdir, "build"),
		ArtifactGlob:    "**/*.html",
		Patterns:        []string{regexp.QuoteMeta(marker)},
		Grace:           3 * time.Second,
		StabilityWindow: 100 * time.Millisecond,
	}
	report, err := sw.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Matched, 1, "only the freshly orphaned build should match")
	require.Equal(t, childPID, report.Matched[0].PID)
	require.Empty(t, report.Protected)
	require.False(t, report.LikelyComplete, "no artifacts were produced")
	require.Equal(t, 1, report.Cleaned())

	require.True(t, process.WaitForExit(childPID, 3*time.Second),
		"orphan should be gone after the sweep")
}
