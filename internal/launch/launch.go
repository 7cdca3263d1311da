// Package launch starts build processes fully detached from the invoking
// terminal. A launched build survives terminal closure, SSH disconnects, and
// the death of the supervisor itself.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/job"
)

// DefaultLogName is the log file used when no override is configured.
const DefaultLogName = "build.log"

// Spec describes one build process to launch.
type Spec struct {
	Workdir    string
	Command    string
	Args       []string
	Env        map[string]string // extra variables for the child only
	NodeHeapMB int               // >0 injects NODE_OPTIONS=--max-old-space-size
	LogPath    string            // empty means <workdir>/.buildsafe/build.log
	AppendLog  bool
	JobID      string
}

// Result reports a successfully launched build.
type Result struct {
	PID       int
	Command   string // resolved absolute path
	LogPath   string
	StartedAt time.Time
}

// Exit is the reaped status of a supervised child.
type Exit struct {
	Code int   // exit code, -1 when the child was terminated by a signal
	Err  error // non-nil only when reaping itself failed
}

// Handle wraps a launched child. The child runs in its own session either
// way; the handle only decides whether this process can still reap its exit
// status. Call Wait to supervise or Release to walk away.
type Handle struct {
	Result
	cmd  *exec.Cmd
	once sync.Once
	exit chan Exit
}

// Wait reaps the child in the background and returns a channel delivering
// its exit status. The channel is buffered so the reaper never blocks when
// monitoring stops first. Must not be combined with Release.
func (h *Handle) Wait() <-chan Exit {
	h.once.Do(func() {
		h.exit = make(chan Exit, 1)
		go func() {
			err := h.cmd.Wait()
			code := -1
			if h.cmd.ProcessState != nil {
				code = h.cmd.ProcessState.ExitCode()
			}
			if _, ok := err.(*exec.ExitError); ok {
				// A nonzero exit is an outcome, not a reaping failure.
				err = nil
			}
			h.exit <- Exit{Code: code, Err: err}
		}()
	})
	return h.exit
}

// Release drops the process handle so the child runs fully unsupervised.
// After Release the exit code can never be reaped by this process.
func (h *Handle) Release() error {
	return h.cmd.Process.Release()
}

// DefaultLogPath returns the log location used when none is configured.
func DefaultLogPath(workdir string) string {
	return filepath.Join(job.DataDir(workdir), DefaultLogName)
}

// Preflight validates the spec and resolves the command and log path in
// place. Every failure here is a setup error: nothing has been spawned and
// nothing will be retried.
func Preflight(spec *Spec) error {
	info, err := os.Stat(spec.Workdir)
	if err != nil {
		return bserrors.WorkdirInvalid(spec.Workdir, err)
	}
	if !info.IsDir() {
		return bserrors.WorkdirInvalid(spec.Workdir, fmt.Errorf("not a directory"))
	}

	resolved, err := resolveCommand(spec.Workdir, spec.Command)
	if err != nil {
		return bserrors.CommandNotFound(spec.Command, err)
	}
	spec.Command = resolved

	if spec.LogPath == "" {
		spec.LogPath = DefaultLogPath(spec.Workdir)
	}
	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
		return bserrors.LogFileError(spec.LogPath, err)
	}
	// Probe writability without clobbering existing content.
	probe, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return bserrors.LogFileError(spec.LogPath, err)
	}
	_ = probe.Close()

	return nil
}

// resolveCommand locates the build command: absolute paths are verified,
// workdir-relative paths are tried next, then PATH lookup.
func resolveCommand(workdir, command string) (string, error) {
	if filepath.IsAbs(command) {
		if _, err := os.Stat(command); err != nil {
			return "", err
		}
		return command, nil
	}

	local := filepath.Join(workdir, command)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return filepath.Abs(local)
	}

	return exec.LookPath(command)
}

// Launch spawns the build in its own session with output redirected to the
// log file. The new session means the child keeps running regardless of what
// happens to this process or its terminal. Preflight must have succeeded on
// the spec first.
func Launch(spec Spec) (*Handle, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if spec.AppendLog {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	logFile, err := os.OpenFile(spec.LogPath, flags, 0644)
	if err != nil {
		return nil, bserrors.LogFileError(spec.LogPath, err)
	}
	// The child holds its own descriptor after Start; ours closes either way.
	defer logFile.Close()

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Workdir
	cmd.Env = childEnv(spec)
	cmd.SysProcAttr = detachedSysProcAttr()

	// No terminal: reads see EOF, all output lands in the log file.
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return nil, bserrors.SpawnFailed(spec.Command, err)
	}

	return &Handle{
		Result: Result{
			PID:       cmd.Process.Pid,
			Command:   spec.Command,
			LogPath:   spec.LogPath,
			StartedAt: time.Now(),
		},
		cmd: cmd,
	}, nil
}

// childEnv builds the child environment: the parent environment, then spec
// overrides, then the node heap cap. The parent's own environment is never
// mutated.
func childEnv(spec Spec) []string {
	env := os.Environ()
	for key, value := range spec.Env {
		env = append(env, key+"="+value)
	}
	if spec.NodeHeapMB > 0 {
		env = append(env, fmt.Sprintf("NODE_OPTIONS=--max-old-space-size=%d", spec.NodeHeapMB))
	}
	if spec.JobID != "" {
		env = append(env, "BUILDSAFE_JOB_ID="+spec.JobID)
	}
	return env
}
