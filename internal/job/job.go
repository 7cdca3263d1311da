// Package job defines the supervised build job model and its on-disk records.
// A job record outlives the supervisor process so that later invocations can
// re-attach to a detached build or recognize it as orphaned.
package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DataDirName is the per-workdir directory holding buildsafe state.
const DataDirName = ".buildsafe"

// JobsDir is the directory name within the data dir that contains job records.
const JobsDir = "jobs"

// State represents the lifecycle state of a supervised build.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateUnknown   State = "unknown"
)

// IsTerminal reports whether the state ends monitoring. TimedOut is terminal
// for the monitor even though the build itself may still be running.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateUnknown:
		return true
	default:
		return false
	}
}

// GitInfo captures the provenance of the supervised workdir at launch time.
type GitInfo struct {
	Commit string `json:"commit"`
	Branch string `json:"branch,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Job represents one supervised build invocation.
type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	State     State     `json:"state"`

	// Launch parameters
	Workdir string            `json:"workdir"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	LogPath string            `json:"log_path"`

	// Process identity
	PID           int `json:"pid,omitempty"`
	SupervisorPID int `json:"supervisor_pid,omitempty"`

	// Outcome evidence
	ExitCode        *int     `json:"exit_code,omitempty"`
	ArtifactsBefore int      `json:"artifacts_before"`
	ArtifactsAfter  int      `json:"artifacts_after,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Error           string   `json:"error,omitempty"`
	LogTail         []string `json:"log_tail,omitempty"`

	Git *GitInfo `json:"git,omitempty"`
}

// New creates a pending job for the given launch parameters.
func New(workdir, command string, args []string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		State:     StatePending,
		Workdir:   workdir,
		Command:   command,
		Args:      args,
	}
}

// CommandLine returns the command with its arguments as one display string.
func (j *Job) CommandLine() string {
	line := j.Command
	for _, a := range j.Args {
		line += " " + a
	}
	return line
}

// Duration returns the elapsed wall time, using now for unfinished jobs.
func (j *Job) Duration() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	end := j.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(j.StartedAt)
}

// DataDir returns the buildsafe state directory for a workdir.
func DataDir(workdir string) string {
	return filepath.Join(workdir, DataDirName)
}

// jobsDir returns the job record directory for a workdir.
func jobsDir(workdir string) string {
	return filepath.Join(DataDir(workdir), JobsDir)
}

// recordPath returns the path of a specific job record.
func recordPath(workdir, id string) string {
	return filepath.Join(jobsDir(workdir), id+".json")
}

// Save persists the job record atomically (write temp, rename into place).
func (j *Job) Save() error {
	dir := jobsDir(j.Workdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	tmp := recordPath(j.Workdir, j.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write job record: %w", err)
	}
	if err := os.Rename(tmp, recordPath(j.Workdir, j.ID)); err != nil {
		return fmt.Errorf("failed to finalize job record: %w", err)
	}
	return nil
}

// Load reads a job record by ID.
func Load(workdir, id string) (*Job, error) {
	data, err := os.ReadFile(recordPath(workdir, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read job record: %w", err)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to parse job record: %w", err)
	}
	return &j, nil
}

// List returns all job records for a workdir, newest first.
func List(workdir string) ([]*Job, error) {
	entries, err := os.ReadDir(jobsDir(workdir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	var jobs []*Job
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		j, err := Load(workdir, id)
		if err != nil {
			continue // skip unreadable records
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// LatestRunning returns the most recent job record still marked running,
// or nil when none exists.
func LatestRunning(workdir string) (*Job, error) {
	jobs, err := List(workdir)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.State == StateRunning {
			return j, nil
		}
	}
	return nil, nil
}

// CleanupOld removes terminal job records older than maxAge. Running records
// are never removed. Returns the number of records deleted.
func CleanupOld(workdir string, maxAge time.Duration) (int, error) {
	jobs, err := List(workdir)
	if err != nil {
		return 0, err
	}
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, j := range jobs {
		if !j.State.IsTerminal() {
			continue
		}
		if j.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(recordPath(workdir, j.ID)); err == nil {
			removed++
		}
	}
	return removed, nil
}
