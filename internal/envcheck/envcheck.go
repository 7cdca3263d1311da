// Package envcheck classifies the terminal environment a build is launched
// from. The classification is advisory: a fragile environment produces a
// warning, never a refusal, because the launcher detaches the build anyway.
package envcheck

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Classification buckets terminal environments by how likely they are to kill
// child processes when the terminal goes away.
type Classification string

const (
	// FragileInteractive marks terminals that commonly disappear mid-build:
	// IDE-embedded panes, plain SSH sessions, ordinary terminal windows.
	FragileInteractive Classification = "fragile-interactive"
	// RobustInteractive marks multiplexed terminals (tmux, screen) that
	// survive window and connection loss.
	RobustInteractive Classification = "robust-interactive"
	// NonInteractive marks CI runners, cron, and other pipelines without a tty.
	NonInteractive Classification = "non-interactive"
)

// Recommendation names a missing protective setting.
type Recommendation struct {
	Setting string
	Reason  string
}

// Report is the result of environment detection.
type Report struct {
	Classification  Classification
	Signals         []string
	Recommendations []Recommendation
}

// Fragile reports whether the environment warrants a pre-launch warning.
func (r *Report) Fragile() bool {
	return r.Classification == FragileInteractive
}

// Detect classifies the current process environment.
func Detect() *Report {
	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	stderrTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return Classify(os.Getenv, stdoutTTY, stderrTTY)
}

// Classify derives a report from environment lookups and tty state. It is a
// pure function so tests can drive it with synthetic environments.
func Classify(getenv func(string) string, stdoutTTY, stderrTTY bool) *Report {
	r := &Report{}

	if getenv("CI") != "" {
		r.Classification = NonInteractive
		r.Signals = append(r.Signals, "CI environment variable is set")
		appendHeapRecommendation(r, getenv)
		return r
	}

	if !stdoutTTY && !stderrTTY {
		r.Classification = NonInteractive
		r.Signals = append(r.Signals, "no terminal attached to stdout or stderr")
		appendHeapRecommendation(r, getenv)
		return r
	}

	if getenv("TMUX") != "" {
		r.Classification = RobustInteractive
		r.Signals = append(r.Signals, "running inside tmux")
		appendHeapRecommendation(r, getenv)
		return r
	}
	if getenv("STY") != "" {
		r.Classification = RobustInteractive
		r.Signals = append(r.Signals, "running inside GNU screen")
		appendHeapRecommendation(r, getenv)
		return r
	}

	r.Classification = FragileInteractive
	switch prog := strings.ToLower(getenv("TERM_PROGRAM")); {
	case strings.Contains(prog, "vscode"):
		r.Signals = append(r.Signals, "IDE-embedded terminal (VS Code)")
	case prog != "":
		r.Signals = append(r.Signals, "terminal program: "+getenv("TERM_PROGRAM"))
	}
	if getenv("SSH_TTY") != "" || getenv("SSH_CONNECTION") != "" {
		r.Signals = append(r.Signals, "SSH session: build dies with the connection unless detached")
	}
	if len(r.Signals) == 0 {
		r.Signals = append(r.Signals, "plain terminal window without a multiplexer")
	}

	r.Recommendations = append(r.Recommendations, Recommendation{
		Setting: "tmux or screen",
		Reason:  "a multiplexer keeps the terminal alive if the window or connection drops",
	})
	appendHeapRecommendation(r, getenv)

	return r
}

// appendHeapRecommendation flags a missing node heap cap. Documentation builds
// routinely exceed the default V8 heap on large sites.
func appendHeapRecommendation(r *Report, getenv func(string) string) {
	if strings.Contains(getenv("NODE_OPTIONS"), "--max-old-space-size") {
		return
	}
	r.Recommendations = append(r.Recommendations, Recommendation{
		Setting: "launch.node_heap_mb (NODE_OPTIONS=--max-old-space-size)",
		Reason:  "large documentation builds exhaust the default node heap",
	})
}
