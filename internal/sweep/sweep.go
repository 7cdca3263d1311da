// Package sweep finds and cleans up orphaned build processes. An orphan is a
// build whose supervisor died underneath it: the process keeps consuming
// memory long after anyone cares about its output. The sweeper matches
// processes by command-line pattern, spares anything a live supervisor still
// owns, and asks before killing a build whose artifacts look complete.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
	"git.home.luguber.info/inful/buildsafe/internal/metrics"
	"git.home.luguber.info/inful/buildsafe/internal/process"
)

// ProcessRecord is one live process captured during enumeration. Records are
// ephemeral: they describe the process table at scan time and nothing more.
type ProcessRecord struct {
	PID     int
	Cmdline string
	RSSKB   int64
	Pattern string // the pattern that matched
}

// Action is the per-process result of a sweep.
type Action string

const (
	ActionTerminated Action = "terminated" // exited after the graceful signal
	ActionKilled     Action = "killed"     // survived the grace period, force-killed
	ActionVanished   Action = "vanished"   // gone before a signal landed (benign)
	ActionSpared     Action = "spared"     // left running pending confirmation
	ActionFailed     Action = "failed"     // could not be signaled
)

// ProcessResult pairs a record with what the sweep did about it.
type ProcessResult struct {
	Record ProcessRecord
	Action Action
	Err    error
}

// Report summarizes one sweep.
type Report struct {
	Matched        []ProcessRecord
	Protected      []ProcessRecord
	LikelyComplete bool
	CompleteReason string
	Results        []ProcessResult
}

// Cleaned reports how many processes the sweep actually removed.
func (r *Report) Cleaned() int {
	n := 0
	for _, res := range r.Results {
		switch res.Action {
		case ActionTerminated, ActionKilled, ActionVanished:
			n++
		}
	}
	return n
}

// Sweeper holds the parameters of a recovery sweep.
type Sweeper struct {
	Workdir         string   // where job records and the data dir live
	ArtifactDir     string   // build output directory
	ArtifactGlob    string
	Patterns        []string // regular expressions matched against full cmdlines
	Grace           time.Duration
	StabilityWindow time.Duration

	// AssumeYes skips confirmation for likely-complete builds. Confirm is
	// consulted otherwise; a nil Confirm means never confirmed (the safe
	// non-interactive default).
	AssumeYes bool
	Confirm   func(prompt string) bool

	Recorder metrics.Recorder
}

// Run performs one sweep. The returned error is non-nil only for internal
// failures (bad pattern, cannot enumerate processes); finding nothing to
// recover is a success.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	rec := s.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	compiled, err := compilePatterns(s.Patterns)
	if err != nil {
		return nil, err
	}

	procs, err := listProcesses()
	if err != nil {
		return nil, bserrors.ProcessScanError(err)
	}

	matched, protected := s.selectTargets(procs, compiled)
	rec.SetOrphansFound(len(matched))

	report := &Report{Matched: matched, Protected: protected}
	if len(matched) == 0 {
		slog.Info("Nothing to recover", slog.Int("scanned", len(procs)))
		return report, nil
	}

	report.LikelyComplete, report.CompleteReason = artifact.LikelyComplete(
		ctx, job.DataDir(s.Workdir), s.ArtifactDir, s.ArtifactGlob, s.StabilityWindow)

	if report.LikelyComplete && !s.confirmed(report) {
		for _, m := range matched {
			report.Results = append(report.Results, ProcessResult{Record: m, Action: ActionSpared})
			rec.IncSweepResult(metrics.SweepSpared)
		}
		slog.Info("Build looks complete, leaving processes untouched",
			slog.String("reason", report.CompleteReason),
			slog.Int("matched", len(matched)))
		return report, nil
	}

	for _, m := range matched {
		action, err := terminate(m.PID, s.Grace)
		report.Results = append(report.Results, ProcessResult{Record: m, Action: action, Err: err})
		rec.IncSweepResult(sweepLabel(action))

		switch action {
		case ActionFailed:
			slog.Warn("Failed to terminate process",
				logfields.PID(m.PID), logfields.Pattern(m.Pattern), logfields.Error(err))
		case ActionVanished:
			slog.Debug("Process vanished before termination", logfields.PID(m.PID))
		default:
			slog.Info("Terminated orphaned build process",
				logfields.PID(m.PID),
				logfields.Pattern(m.Pattern),
				slog.Int64("rss_kb", m.RSSKB),
				slog.String("action", string(action)))
		}
	}
	return report, nil
}

// confirmed decides whether a likely-complete build may be terminated.
func (s *Sweeper) confirmed(report *Report) bool {
	if s.AssumeYes {
		return true
	}
	if s.Confirm == nil {
		return false
	}
	prompt := fmt.Sprintf("build output looks complete (%s); terminate %d matching process(es) anyway?",
		report.CompleteReason, len(report.Matched))
	return s.Confirm(prompt)
}

// selectTargets filters the process table down to sweep candidates. The
// sweeper's own process, its ancestors, anything sharing its session, and
// other buildsafe binaries are silently dropped; processes belonging to a
// live supervisor's active job are reported as protected.
func (s *Sweeper) selectTargets(procs []ProcessRecord, patterns []*regexp.Regexp) (matched, protected []ProcessRecord) {
	self := os.Getpid()
	ownSession := process.SessionID(self)
	ancestors := ancestorSet(self)
	ownBinary := ownExecutableName()
	guarded := s.protectedSessions()

	for _, p := range procs {
		pattern := matchPattern(p.Cmdline, patterns)
		if pattern == "" {
			continue
		}
		p.Pattern = pattern

		if p.PID == self || ancestors[p.PID] {
			continue
		}
		if firstToken(p.Cmdline) == ownBinary {
			continue
		}
		sid := process.SessionID(p.PID)
		if sid != -1 && sid == ownSession {
			continue
		}
		if guarded[p.PID] || (sid != -1 && guarded[sid]) {
			protected = append(protected, p)
			continue
		}
		matched = append(matched, p)
	}
	return matched, protected
}

// protectedSessions collects the session leaders of jobs whose supervisor is
// still alive. A detached build leads its own session, so guarding the
// session covers every process the build spawned underneath itself.
func (s *Sweeper) protectedSessions() map[int]bool {
	guarded := make(map[int]bool)
	if s.Workdir == "" {
		return guarded
	}
	jobs, err := job.List(s.Workdir)
	if err != nil {
		slog.Debug("Could not read job records for active-job protection",
			logfields.Workdir(s.Workdir), logfields.Error(err))
		return guarded
	}
	for _, j := range jobs {
		if j.State != job.StateRunning || j.PID <= 0 {
			continue
		}
		if j.SupervisorPID > 0 && process.IsAlive(j.SupervisorPID) {
			guarded[j.PID] = true
		}
	}
	return guarded
}

// compilePatterns compiles the cmdline patterns, rejecting invalid ones
// before any process is touched.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, bserrors.ValidationFailed("recover.patterns", "at least one process pattern is required")
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, bserrors.ValidationFailed("recover.patterns", fmt.Sprintf("invalid pattern %q: %v", p, err))
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchPattern returns the source of the first pattern matching the cmdline.
func matchPattern(cmdline string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if re.MatchString(cmdline) {
			return re.String()
		}
	}
	return ""
}

// ancestorSet walks the parent chain of pid so the sweeper can never target
// the shell or terminal that invoked it.
func ancestorSet(pid int) map[int]bool {
	ancestors := make(map[int]bool)
	current := pid
	for i := 0; i < 64; i++ {
		parent := parentOf(current)
		if parent <= 1 {
			break
		}
		ancestors[parent] = true
		current = parent
	}
	return ancestors
}

// ownExecutableName returns the basename this binary runs as.
func ownExecutableName() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Base(os.Args[0])
	}
	return filepath.Base(exe)
}

// firstToken returns the basename of the leading cmdline token.
func firstToken(cmdline string) string {
	for i := 0; i < len(cmdline); i++ {
		if cmdline[i] == ' ' {
			return filepath.Base(cmdline[:i])
		}
	}
	return filepath.Base(cmdline)
}

// sweepLabel maps actions to metric labels.
func sweepLabel(a Action) metrics.SweepLabel {
	switch a {
	case ActionTerminated, ActionKilled:
		return metrics.SweepTerminated
	case ActionVanished:
		return metrics.SweepVanished
	case ActionSpared:
		return metrics.SweepSpared
	default:
		return metrics.SweepFailed
	}
}
