package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	"git.home.luguber.info/inful/buildsafe/internal/notify"
	"git.home.luguber.info/inful/buildsafe/internal/sweep"
)

// RecoverCmd implements the 'recover' command: find build processes that
// lost their supervisor and clean them up.
type RecoverCmd struct {
	Yes         bool          `help:"Terminate likely-complete builds without asking"`
	Pattern     []string      `help:"Process patterns (regular expressions) to hunt instead of the configured ones"`
	ArtifactDir string        `name:"artifact-dir" help:"Build output directory checked for completeness"`
	Every       time.Duration `help:"Keep sweeping on this interval until interrupted"`
}

func (r *RecoverCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunRecover(ctx, cfg, r)
}

// RunRecover sweeps once, or on a schedule when --every is set.
func RunRecover(ctx context.Context, cfg *config.Config, r *RecoverCmd) error {
	workdir, err := workingDir()
	if err != nil {
		return err
	}

	patterns := cfg.Recover.Patterns
	if len(r.Pattern) > 0 {
		patterns = r.Pattern
	}

	artifactDir := resolveArtifactDir(workdir, cfg)
	if r.ArtifactDir != "" {
		artifactDir = r.ArtifactDir
		if !filepath.IsAbs(artifactDir) {
			artifactDir = filepath.Join(workdir, artifactDir)
		}
	}

	rec, stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	pub := newPublisher(cfg)
	defer func() {
		_ = pub.Close()
	}()

	s := &sweep.Sweeper{
		Workdir:         workdir,
		ArtifactDir:     artifactDir,
		ArtifactGlob:    cfg.Artifacts.Glob,
		Patterns:        patterns,
		Grace:           cfg.Recover.GraceDuration(),
		StabilityWindow: cfg.Artifacts.StabilityDuration(),
		AssumeYes:       r.Yes,
		Confirm:         promptYesNo,
		Recorder:        rec,
	}

	if r.Every > 0 {
		fmt.Printf("Sweeping every %s until interrupted\n", r.Every)
		return sweep.RunEvery(ctx, s, r.Every, func(rep *sweep.Report) {
			publishSweep(pub, rep)
		})
	}

	rep, err := s.Run(ctx)
	if err != nil {
		return err
	}
	publishSweep(pub, rep)
	printSweepReport(rep)
	return nil
}

// promptYesNo asks on the terminal; anything but an explicit yes declines.
// Without a terminal there is nobody to ask, so the answer is no.
func promptYesNo(prompt string) bool {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func publishSweep(pub notify.Publisher, rep *sweep.Report) {
	for _, res := range rep.Results {
		pub.Swept(res.Record.PID, res.Record.Cmdline, string(res.Action))
	}
}

func printSweepReport(rep *sweep.Report) {
	if len(rep.Matched) == 0 {
		fmt.Println("No orphaned build processes found")
		return
	}

	if rep.LikelyComplete {
		fmt.Printf("Build output looks complete: %s\n", rep.CompleteReason)
	}
	for _, res := range rep.Results {
		if res.Err != nil {
			fmt.Printf("  %-10s pid %-8d %s (%v)\n", res.Action, res.Record.PID, trimCmdline(res.Record.Cmdline), res.Err)
			continue
		}
		fmt.Printf("  %-10s pid %-8d %s\n", res.Action, res.Record.PID, trimCmdline(res.Record.Cmdline))
	}
	fmt.Printf("Cleaned up %d of %d matching process(es)\n", rep.Cleaned(), len(rep.Matched))
	if len(rep.Protected) > 0 {
		fmt.Printf("Left %d process(es) alone: they belong to builds under active supervision\n", len(rep.Protected))
	}
}

func trimCmdline(cmdline string) string {
	const maxLen = 80
	if len(cmdline) <= maxLen {
		return cmdline
	}
	return cmdline[:maxLen] + "..."
}
