package config

import "fmt"

// ConfigDefaultApplier applies defaults for a specific configuration domain.
type ConfigDefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains
type CompositeDefaultApplier struct {
	appliers []ConfigDefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []ConfigDefaultApplier{
			&LoggingDefaultApplier{},
			&LaunchDefaultApplier{},
			&MonitorDefaultApplier{},
			&ArtifactDefaultApplier{},
			&RecoverDefaultApplier{},
			&HistoryDefaultApplier{},
			&NotifyDefaultApplier{},
			&MetricsDefaultApplier{},
			&VerifyDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// LoggingDefaultApplier handles logging configuration defaults.
type LoggingDefaultApplier struct{}

func (l *LoggingDefaultApplier) Domain() string { return "logging" }

func (l *LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	} else {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	} else {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}
	return nil
}

// LaunchDefaultApplier handles launch configuration defaults.
type LaunchDefaultApplier struct{}

func (l *LaunchDefaultApplier) Domain() string { return "launch" }

func (l *LaunchDefaultApplier) ApplyDefaults(cfg *Config) error {
	// LogFile stays empty here; the effective default depends on the workdir
	// and is resolved at launch time.
	if cfg.Launch.NodeHeapMB < 0 {
		cfg.Launch.NodeHeapMB = 0
	}
	return nil
}

// MonitorDefaultApplier handles monitor configuration defaults.
type MonitorDefaultApplier struct{}

func (m *MonitorDefaultApplier) Domain() string { return "monitor" }

func (m *MonitorDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Monitor.PollInterval == "" {
		cfg.Monitor.PollInterval = "3s"
	}
	if cfg.Monitor.TailLines <= 0 {
		cfg.Monitor.TailLines = 40
	}
	if len(cfg.Monitor.SuccessMarkers) == 0 {
		cfg.Monitor.SuccessMarkers = []string{
			"Generated static files",
			"[SUCCESS]",
			"Compiled successfully",
		}
	}
	if len(cfg.Monitor.FailureMarkers) == 0 {
		cfg.Monitor.FailureMarkers = []string{
			"[ERROR]",
			"Build failed",
			"error Command failed",
		}
	}

	if cfg.Monitor.MaxRetries < 0 {
		cfg.Monitor.MaxRetries = 0
	}
	if cfg.Monitor.MaxRetries == 0 { // default 2 retries (3 total attempts) unless explicitly set >0
		cfg.Monitor.MaxRetries = 2
	}

	if cfg.Monitor.RetryBackoff == "" {
		cfg.Monitor.RetryBackoff = RetryBackoffLinear
	} else {
		cfg.Monitor.RetryBackoff = NormalizeRetryBackoff(string(cfg.Monitor.RetryBackoff))
		if cfg.Monitor.RetryBackoff == "" { // fallback to default if unknown
			cfg.Monitor.RetryBackoff = RetryBackoffLinear
		}
	}

	if cfg.Monitor.RetryInitialDelay == "" {
		cfg.Monitor.RetryInitialDelay = "1s"
	}
	if cfg.Monitor.RetryMaxDelay == "" {
		cfg.Monitor.RetryMaxDelay = "30s"
	}

	return nil
}

// ArtifactDefaultApplier handles artifact configuration defaults.
type ArtifactDefaultApplier struct{}

func (a *ArtifactDefaultApplier) Domain() string { return "artifacts" }

func (a *ArtifactDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "build"
	}
	if cfg.Artifacts.Glob == "" {
		cfg.Artifacts.Glob = "*.html"
	}
	if cfg.Artifacts.StabilityWindow == "" {
		cfg.Artifacts.StabilityWindow = "2s"
	}
	return nil
}

// RecoverDefaultApplier handles sweeper configuration defaults.
type RecoverDefaultApplier struct{}

func (r *RecoverDefaultApplier) Domain() string { return "recover" }

func (r *RecoverDefaultApplier) ApplyDefaults(cfg *Config) error {
	if len(cfg.Recover.Patterns) == 0 {
		cfg.Recover.Patterns = []string{
			"docusaurus build",
			"npm run build",
			"yarn build",
		}
	}
	if cfg.Recover.GracePeriod == "" {
		cfg.Recover.GracePeriod = "5s"
	}
	return nil
}

// HistoryDefaultApplier handles history store configuration defaults.
type HistoryDefaultApplier struct{}

func (h *HistoryDefaultApplier) Domain() string { return "history" }

func (h *HistoryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.History == nil {
		cfg.History = &HistoryConfig{Enabled: true}
	}
	// Path stays empty here; the effective default depends on the workdir.
	return nil
}

// NotifyDefaultApplier handles NATS notification configuration defaults.
type NotifyDefaultApplier struct{}

func (n *NotifyDefaultApplier) Domain() string { return "notify" }

func (n *NotifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify == nil {
		cfg.Notify = &NotifyConfig{Enabled: false}
	}
	if cfg.Notify.URL == "" {
		cfg.Notify.URL = "nats://localhost:4222"
	}
	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = "buildsafe.builds"
	}
	if cfg.Notify.Stream == "" {
		cfg.Notify.Stream = "BUILDSAFE"
	}
	return nil
}

// MetricsDefaultApplier handles metrics configuration defaults.
type MetricsDefaultApplier struct{}

func (m *MetricsDefaultApplier) Domain() string { return "metrics" }

func (m *MetricsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{Enabled: false}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9321"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

// VerifyDefaultApplier handles verifier configuration defaults.
type VerifyDefaultApplier struct{}

func (v *VerifyDefaultApplier) Domain() string { return "verify" }

func (v *VerifyDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Verify == nil {
		cfg.Verify = &VerifyConfig{}
	}
	if cfg.Verify.Timeout == "" {
		cfg.Verify.Timeout = "10m"
	}
	return nil
}
