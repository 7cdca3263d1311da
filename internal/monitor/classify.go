package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/artifact"
	"git.home.luguber.info/inful/buildsafe/internal/job"
	"git.home.luguber.info/inful/buildsafe/internal/launch"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
	"git.home.luguber.info/inful/buildsafe/internal/metrics"
)

// classify turns the accumulated evidence into a terminal outcome once the
// build has exited. Evidence ranks: reaped exit code, then log markers, then
// artifact delta. Anything weaker is Unknown, never a guessed failure.
func (m *session) classify(exit *launch.Exit) *Outcome {
	out := &Outcome{
		State:    job.StateUnknown,
		Tail:     m.tailer.Tail(),
		Elapsed:  time.Since(m.start),
		LogBytes: m.logBytes,
	}

	if m.opts.ArtifactDir != "" {
		after, err := artifact.Take(m.opts.ArtifactDir, m.opts.ArtifactGlob)
		if err == nil {
			out.Delta = &artifact.Delta{Before: m.opts.Before, After: after}
		}
	}

	m.decide(exit, out)

	m.rec.ObserveBuildDuration(out.Elapsed)
	m.rec.IncOutcome(outcomeLabel(out.State))
	m.writeReceipt(out)

	slog.Info("Build reached terminal state",
		logfields.PID(m.target.PID),
		logfields.JobState(string(out.State)),
		logfields.DurationMS(float64(out.Elapsed.Milliseconds())),
		slog.String("reason", out.Reason))
	return out
}

// decide fills State, ExitCode, and Reason on the outcome.
func (m *session) decide(exit *launch.Exit, out *Outcome) {
	if exit != nil && exit.Err == nil {
		if exit.Code >= 0 {
			code := exit.Code
			out.ExitCode = &code
			if code == 0 {
				out.State = job.StateSucceeded
				out.Reason = "exit code 0"
			} else {
				out.State = job.StateFailed
				out.Reason = fmt.Sprintf("exit code %d", code)
			}
			return
		}
		// Signal deaths carry no exit code; markers may still tell the story.
		m.signaled = true
	}

	verdict, line := m.tailer.Verdict()
	switch verdict {
	case verdictSuccess:
		out.State = job.StateSucceeded
		out.Reason = fmt.Sprintf("success marker in log: %q", trimLine(line))
		return
	case verdictFailure:
		out.State = job.StateFailed
		out.Reason = fmt.Sprintf("failure marker in log: %q", trimLine(line))
		return
	}

	if m.signaled {
		out.State = job.StateFailed
		out.Reason = "terminated by signal with no success evidence"
		return
	}

	if out.Delta != nil && out.Delta.Grew() {
		if !m.opts.SkipHTMLProbe {
			if probe, err := artifact.ProbeNewest(m.opts.ArtifactDir); err == nil && probe != nil && !probe.Healthy() {
				out.Reason = "artifacts grew but the newest page is structurally incomplete"
				return
			}
		}
		out.State = job.StateSucceeded
		out.Reason = fmt.Sprintf("artifact count grew %d to %d", out.Delta.Before.Count, out.Delta.After.Count)
		return
	}

	out.Reason = "no exit code, no log markers, artifacts unchanged"
}

// writeReceipt persists the success receipt when the outcome warrants one.
func (m *session) writeReceipt(out *Outcome) {
	if out.State != job.StateSucceeded || m.opts.ReceiptDir == "" {
		return
	}
	count := 0
	if out.Delta != nil {
		count = out.Delta.After.Count
	}
	receipt := artifact.Receipt{
		JobID:         m.opts.JobID,
		FinishedAt:    time.Now(),
		ArtifactCount: count,
		Commit:        m.opts.Commit,
	}
	if err := artifact.WriteReceipt(m.opts.ReceiptDir, receipt); err != nil {
		slog.Warn("Failed to write success receipt", logfields.Error(err))
	}
}

// outcomeLabel maps terminal job states to metric labels.
func outcomeLabel(s job.State) metrics.OutcomeLabel {
	switch s {
	case job.StateSucceeded:
		return metrics.OutcomeSucceeded
	case job.StateFailed:
		return metrics.OutcomeFailed
	case job.StateTimedOut:
		return metrics.OutcomeTimedOut
	default:
		return metrics.OutcomeUnknown
	}
}

// trimLine bounds marker lines quoted into reasons.
func trimLine(line string) string {
	const max = 120
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
