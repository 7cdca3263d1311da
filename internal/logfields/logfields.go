package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobState   = "job_state"
	KeyPID        = "pid"
	KeyCommand    = "command"
	KeyWorkdir    = "workdir"
	KeyLogPath    = "log_path"
	KeyPath       = "path"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyArtifacts  = "artifacts"
	KeyPattern    = "pattern"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobState(s string) slog.Attr     { return slog.String(KeyJobState, s) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Workdir(d string) slog.Attr      { return slog.String(KeyWorkdir, d) }
func LogPath(p string) slog.Attr      { return slog.String(KeyLogPath, p) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func ExitCode(c int) slog.Attr        { return slog.Int(KeyExitCode, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Artifacts(n int) slog.Attr       { return slog.Int(KeyArtifacts, n) }
func Pattern(p string) slog.Attr      { return slog.String(KeyPattern, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
