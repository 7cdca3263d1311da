//go:build unix

package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
)

func TestRunWithoutCommand(t *testing.T) {
	_, err := Run(t.Context(), t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected an error for a nil config")
	}
	if !bserrors.IsCategory(err, bserrors.CategoryValidation) {
		t.Errorf("expected a validation error, got %v", err)
	}

	_, err = Run(t.Context(), t.TempDir(), &config.VerifyConfig{})
	if err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestRunCommandNotFound(t *testing.T) {
	cfg := &config.VerifyConfig{Command: []string{"buildsafe-no-such-verifier"}}
	_, err := Run(t.Context(), t.TempDir(), cfg)
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	if !bserrors.IsCategory(err, bserrors.CategorySetup) {
		t.Errorf("expected a setup error, got %v", err)
	}
}

func TestRunPassingCommand(t *testing.T) {
	workdir := t.TempDir()
	if err := os.WriteFile(filepath.Join(workdir, "links.txt"), []byte("all good\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.VerifyConfig{Command: []string{"sh", "-c", "cat links.txt"}}
	res, err := Run(t.Context(), workdir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Errorf("expected pass, got %+v", res)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "all good") {
		t.Errorf("expected captured output, got %q", res.Output)
	}
}

func TestRunFailingCommand(t *testing.T) {
	cfg := &config.VerifyConfig{Command: []string{"sh", "-c", "echo 3 broken links >&2; exit 3"}}
	res, err := Run(t.Context(), t.TempDir(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Error("expected failure")
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "3 broken links") {
		t.Errorf("expected stderr in output, got %q", res.Output)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := &config.VerifyConfig{Command: []string{"sleep", "10"}, Timeout: "100ms"}
	res, err := Run(t.Context(), t.TempDir(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Error("expected failure on timeout")
	}
	if !res.TimedOut {
		t.Errorf("expected TimedOut, got %+v", res)
	}
}

func TestLastBytes(t *testing.T) {
	if got := lastBytes("  short  ", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("x", 50) + "tail"
	if got := lastBytes(long, 10); got != "xxxxxxtail" {
		t.Errorf("got %q", got)
	}
}
