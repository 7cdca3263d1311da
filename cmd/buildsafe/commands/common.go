package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildsafe/internal/config"
	bserrors "git.home.luguber.info/inful/buildsafe/internal/errors"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"buildsafe.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Launch a build detached from the terminal and watch it to completion"`
	Attach  AttachCmd  `cmd:"" help:"Re-attach the monitor to an already-running detached build"`
	Recover RecoverCmd `cmd:"" help:"Find and clean up orphaned build processes"`
	Env     EnvCmd     `cmd:"" help:"Classify the current terminal environment"`
	History HistoryCmd `cmd:"" help:"List recent supervised builds"`
	Init    InitCmd    `cmd:"" help:"Write a starter configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// LoadConfig resolves the effective configuration for a command and applies
// its logging section. A missing file at the default path falls back to
// built-in defaults; an explicitly named file must exist.
func LoadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return nil, bserrors.Wrap(err, bserrors.CategoryConfig, bserrors.SeverityFatal, "failed to load configuration")
	}
	ApplyLogging(cfg, root.Verbose)
	return cfg, nil
}

// ApplyLogging reconfigures the default logger from the config file.
// --verbose always wins over the configured level.
func ApplyLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// workingDir resolves the directory commands without a workdir argument
// operate on.
func workingDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", bserrors.WorkdirInvalid(".", err)
	}
	return dir, nil
}
