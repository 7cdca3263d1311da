// Package errors provides a lightweight structured error type (BuildsafeError)
// for category-based classification and retry semantics across the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a buildsafe error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Pre-spawn and spawn errors; never caused by the build itself
	CategorySetup  ErrorCategory = "setup"
	CategoryLaunch ErrorCategory = "launch"

	// Supervised build outcomes
	CategoryBuild   ErrorCategory = "build"
	CategoryMonitor ErrorCategory = "monitor"
	CategoryTimeout ErrorCategory = "timeout"

	// Recovery and infrastructure errors
	CategoryRecover  ErrorCategory = "recover"
	CategoryHistory  ErrorCategory = "history"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// BuildsafeError is a structured error with category, retryability, and context
type BuildsafeError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BuildsafeError
type ContextFields map[string]any

// Error implements the error interface
func (e *BuildsafeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BuildsafeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BuildsafeError) WithContext(key string, value any) *BuildsafeError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BuildsafeError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new BuildsafeError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Retryable creates a new retryable BuildsafeError
func Retryable(category ErrorCategory, severity ErrorSeverity, message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: true,
	}
}

// WrapRetryable creates a new retryable BuildsafeError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if bse, ok := err.(*BuildsafeError); ok {
		return bse.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if bse, ok := err.(*BuildsafeError); ok {
		return bse.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a BuildsafeError
func GetCategory(err error) ErrorCategory {
	if bse, ok := err.(*BuildsafeError); ok {
		return bse.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (invalid CLI usage)
func ValidationError(message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  CategoryValidation,
		Severity:  SeverityWarning,
		Message:   message,
		Retryable: false,
	}
}

// SetupError creates a new setup error (preflight failure before any process spawned)
func SetupError(message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  CategorySetup,
		Severity:  SeverityFatal,
		Message:   message,
		Retryable: false,
	}
}

// WrapError wraps an existing error with a new BuildsafeError
func WrapError(err error, category ErrorCategory, message string) *BuildsafeError {
	return &BuildsafeError{
		Category:  category,
		Severity:  SeverityError,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}
