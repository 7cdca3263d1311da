package config

import (
	"time"

	"git.home.luguber.info/inful/buildsafe/internal/foundation/normalization"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, RetryBackoffLinear)

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	mode, err := retryBackoffNormalizer.Parse(raw)
	if err != nil {
		return ""
	}
	return mode
}

// parseDurationDefault parses a duration string, falling back when empty or invalid.
// Validation reports invalid strings before this is ever consulted.
func parseDurationDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// PollIntervalDuration returns the parsed poll interval.
func (m MonitorConfig) PollIntervalDuration() time.Duration {
	return parseDurationDefault(m.PollInterval, 3*time.Second)
}

// TimeoutDuration returns the parsed monitoring timeout; 0 means no timeout.
func (m MonitorConfig) TimeoutDuration() time.Duration {
	return parseDurationDefault(m.Timeout, 0)
}

// RetryInitialDuration returns the parsed initial retry delay.
func (m MonitorConfig) RetryInitialDuration() time.Duration {
	return parseDurationDefault(m.RetryInitialDelay, time.Second)
}

// RetryMaxDuration returns the parsed retry delay cap.
func (m MonitorConfig) RetryMaxDuration() time.Duration {
	return parseDurationDefault(m.RetryMaxDelay, 30*time.Second)
}

// StabilityDuration returns the parsed artifact stability window.
func (a ArtifactConfig) StabilityDuration() time.Duration {
	return parseDurationDefault(a.StabilityWindow, 2*time.Second)
}

// GraceDuration returns the parsed SIGTERM-to-SIGKILL grace period.
func (r RecoverConfig) GraceDuration() time.Duration {
	return parseDurationDefault(r.GracePeriod, 5*time.Second)
}

// TimeoutDuration returns the parsed verifier timeout.
func (v VerifyConfig) TimeoutDuration() time.Duration {
	return parseDurationDefault(v.Timeout, 10*time.Minute)
}
