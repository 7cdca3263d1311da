package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *BuildsafeError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *BuildsafeError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *BuildsafeError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Launch errors

func WorkdirInvalid(path string, cause error) *BuildsafeError {
	return Wrap(cause, CategorySetup, SeverityFatal, "working directory not usable").
		WithContext("path", path)
}

func CommandNotFound(command string, cause error) *BuildsafeError {
	return Wrap(cause, CategorySetup, SeverityFatal, "command not found").
		WithContext("command", command)
}

func LogFileError(path string, cause error) *BuildsafeError {
	return Wrap(cause, CategorySetup, SeverityFatal, "log file not writable").
		WithContext("path", path)
}

func SpawnFailed(command string, cause error) *BuildsafeError {
	return Wrap(cause, CategoryLaunch, SeverityFatal, "failed to start build process").
		WithContext("command", command)
}

// Monitor errors

func BuildFailed(cause error) *BuildsafeError {
	return Wrap(cause, CategoryBuild, SeverityError, "build failed")
}

func OutcomeUnknown(pid int, cause error) *BuildsafeError {
	return Wrap(cause, CategoryMonitor, SeverityWarning, "build outcome could not be determined").
		WithContext("pid", pid)
}

func MonitorTimedOut(pid int) *BuildsafeError {
	return New(CategoryTimeout, SeverityWarning, "monitoring window elapsed; build still running").
		WithContext("pid", pid)
}

func SupervisorInterrupted(pid int) *BuildsafeError {
	return New(CategoryTimeout, SeverityWarning, "monitoring interrupted; build still running").
		WithContext("pid", pid)
}

func VerificationFailed(exitCode int) *BuildsafeError {
	return New(CategoryBuild, SeverityError, "verification failed").
		WithContext("exit_code", exitCode)
}

func LogReadError(path string, cause error) *BuildsafeError {
	return WrapRetryable(cause, CategoryMonitor, SeverityWarning, "log read failed").
		WithContext("path", path)
}

// Recovery errors

func ProcessScanError(cause error) *BuildsafeError {
	return Wrap(cause, CategoryRecover, SeverityFatal, "process enumeration failed")
}

func TerminationError(pid int, cause error) *BuildsafeError {
	return Wrap(cause, CategoryRecover, SeverityError, "failed to terminate process").
		WithContext("pid", pid)
}

// Internal errors

func HistoryError(operation string, cause error) *BuildsafeError {
	return Wrap(cause, CategoryHistory, SeverityError, "history store operation failed").
		WithContext("operation", operation)
}

func InternalError(message string, cause error) *BuildsafeError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
