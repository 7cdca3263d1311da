package envcheck

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func envFrom(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestClassifyCI(t *testing.T) {
	r := Classify(envFrom(map[string]string{"CI": "true"}), false, false)
	assert.Equal(t, NonInteractive, r.Classification)
	assert.False(t, r.Fragile())
}

func TestClassifyNoTTY(t *testing.T) {
	r := Classify(envFrom(nil), false, false)
	assert.Equal(t, NonInteractive, r.Classification)
}

func TestClassifyTmux(t *testing.T) {
	r := Classify(envFrom(map[string]string{"TMUX": "/tmp/tmux-1000/default,123,0"}), true, true)
	assert.Equal(t, RobustInteractive, r.Classification)
	assert.False(t, r.Fragile())
}

func TestClassifyScreen(t *testing.T) {
	r := Classify(envFrom(map[string]string{"STY": "1234.pts-0.host"}), true, true)
	assert.Equal(t, RobustInteractive, r.Classification)
}

func TestClassifyVSCode(t *testing.T) {
	r := Classify(envFrom(map[string]string{"TERM_PROGRAM": "vscode"}), true, true)
	assert.Equal(t, FragileInteractive, r.Classification)
	assert.True(t, r.Fragile())
	assert.Contains(t, r.Signals[0], "VS Code")
}

func TestClassifySSHWithoutMultiplexer(t *testing.T) {
	r := Classify(envFrom(map[string]string{"SSH_TTY": "/dev/pts/3"}), true, true)
	assert.Equal(t, FragileInteractive, r.Classification)

	var sawSSH bool
	for _, s := range r.Signals {
		if strings.Contains(s, "SSH") {
			sawSSH = true
		}
	}
	assert.True(t, sawSSH, "expected an SSH signal, got %v", r.Signals)
}

func TestClassifyPlainTerminal(t *testing.T) {
	r := Classify(envFrom(nil), true, true)
	assert.Equal(t, FragileInteractive, r.Classification)
	assert.NotEmpty(t, r.Signals)
	// Fragile environments always get the multiplexer recommendation.
	assert.NotEmpty(t, r.Recommendations)
}

func TestHeapRecommendation(t *testing.T) {
	withCap := Classify(envFrom(map[string]string{
		"TMUX":         "set",
		"NODE_OPTIONS": "--max-old-space-size=8192",
	}), true, true)
	for _, rec := range withCap.Recommendations {
		assert.NotContains(t, rec.Setting, "node_heap_mb")
	}

	withoutCap := Classify(envFrom(map[string]string{"TMUX": "set"}), true, true)
	var sawHeap bool
	for _, rec := range withoutCap.Recommendations {
		if rec.Setting == "launch.node_heap_mb (NODE_OPTIONS=--max-old-space-size)" {
			sawHeap = true
		}
	}
	assert.True(t, sawHeap)
}
