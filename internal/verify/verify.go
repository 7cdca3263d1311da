// Package verify runs the configured post-build verification command.
//
// The command is opaque, typically a link checker. Only its exit status is
// consumed: zero passes, anything else fails. Output is captured so a
// failure can say why.
package verify

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
	"git.home.luguber.info/inful/buildsafe/internal/logfields"
)

// outputCap bounds how much combined output a Result carries.
const outputCap = 4096

// Result captures one verification run.
type Result struct {
	Passed   bool
	TimedOut bool
	ExitCode int
	Elapsed  time.Duration
	Output   string
}

// Run executes the verification command from cfg inside workdir. Setup
// problems (no command configured, binary missing) return an error; a
// command that runs and fails returns a Result with Passed false.
func Run(ctx context.Context, workdir string, cfg *config.VerifyConfig) (*Result, error) {
	if cfg == nil || len(cfg.Command) == 0 {
		return nil, bserrors.ValidationFailed("verify.command", "no verification command configured")
	}

	name := cfg.Command[0]
	if _, err := exec.LookPath(name); err != nil {
		return nil, bserrors.CommandNotFound(name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()

	cmd := exec.CommandContext(ctx, name, cfg.Command[1:]...)
	cmd.Dir = workdir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Info("Running verification command",
		logfields.Command(strings.Join(cfg.Command, " ")),
		logfields.Workdir(workdir))

	start := time.Now()
	err := cmd.Run()
	if cmd.ProcessState == nil {
		return nil, bserrors.SpawnFailed(name, err)
	}

	res := &Result{
		Passed:   err == nil,
		TimedOut: ctx.Err() != nil,
		ExitCode: cmd.ProcessState.ExitCode(),
		Elapsed:  time.Since(start),
		Output:   lastBytes(output.String(), outputCap),
	}

	switch {
	case res.Passed:
		slog.Info("Verification passed",
			logfields.DurationMS(float64(res.Elapsed.Milliseconds())))
	case res.TimedOut:
		slog.Warn("Verification timed out", "timeout", cfg.TimeoutDuration())
	default:
		slog.Warn("Verification failed", logfields.ExitCode(res.ExitCode))
	}

	return res, nil
}

func lastBytes(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
