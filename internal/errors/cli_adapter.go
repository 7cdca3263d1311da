package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ChildExitError reports a supervised build that finished with its own non-zero
// exit code. The CLI mirrors this code so callers see the build's real status.
type ChildExitError struct {
	Code int
}

func (e *ChildExitError) Error() string {
	return fmt.Sprintf("build exited with code %d", e.Code)
}

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	var child *ChildExitError
	if errors.As(err, &child) {
		return child.Code
	}

	if bse, ok := err.(*BuildsafeError); ok {
		return a.exitCodeFromBuildsafe(bse)
	}

	return 1
}

// exitCodeFromBuildsafe maps BuildsafeError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromBuildsafe(err *BuildsafeError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategorySetup, CategoryLaunch:
		return 3 // Failed before or during spawn; build never ran
	case CategoryMonitor:
		return 4 // Outcome could not be determined
	case CategoryTimeout:
		return 5 // Monitor gave up; build still running
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryRecover, CategoryHistory, CategoryInternal:
		return 10 // Internal error
	case CategoryBuild:
		return 1 // Build failed; real code unknown
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if bse, ok := err.(*BuildsafeError); ok {
		return a.formatBuildsafe(bse)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatBuildsafe formats a BuildsafeError for display.
func (a *CLIErrorAdapter) formatBuildsafe(err *BuildsafeError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation, CategorySetup:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if bse, ok := err.(*BuildsafeError); ok {
		return bse.Category == CategoryInternal ||
			bse.Category == CategoryRecover ||
			bse.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if bse, ok := err.(*BuildsafeError); ok {
		level := a.slogLevelFromSeverity(bse.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(bse.Category)),
		}
		if bse.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(nil, level, bse.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts BuildsafeError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
