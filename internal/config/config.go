package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the config file probed when --config is not given.
const DefaultConfigPath = "buildsafe.yaml"

// Config represents the application configuration.
type Config struct {
	Version   string         `yaml:"version"`
	Logging   LoggingConfig  `yaml:"logging,omitempty"`
	Launch    LaunchConfig   `yaml:"launch,omitempty"`
	Monitor   MonitorConfig  `yaml:"monitor,omitempty"`
	Artifacts ArtifactConfig `yaml:"artifacts,omitempty"`
	Recover   RecoverConfig  `yaml:"recover,omitempty"`
	History   *HistoryConfig `yaml:"history,omitempty"`
	Notify    *NotifyConfig  `yaml:"notify,omitempty"`
	Metrics   *MetricsConfig `yaml:"metrics,omitempty"`
	Verify    *VerifyConfig  `yaml:"verify,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// LaunchConfig holds knobs for how the build process is spawned.
type LaunchConfig struct {
	// LogFile overrides the default log location (<workdir>/.buildsafe/build.log).
	LogFile string `yaml:"log_file,omitempty"`
	// AppendLog keeps prior log content instead of truncating on launch.
	AppendLog bool `yaml:"append_log,omitempty"`
	// NodeHeapMB, when >0, injects NODE_OPTIONS=--max-old-space-size=<n> into the
	// child environment. 0 leaves NODE_OPTIONS untouched.
	NodeHeapMB int `yaml:"node_heap_mb,omitempty"`
	// Env lists extra environment variables for the child only.
	Env map[string]string `yaml:"env,omitempty"`
}

// MonitorConfig holds polling and outcome-classification settings.
type MonitorConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty"` // duration string (default 3s)
	Timeout      string `yaml:"timeout,omitempty"`       // duration string; empty or 0 means no timeout
	TailLines    int    `yaml:"tail_lines,omitempty"`    // log lines kept for the final summary (default 40)
	// Markers scanned in log output when no exit code is obtainable.
	SuccessMarkers []string `yaml:"success_markers,omitempty"`
	FailureMarkers []string `yaml:"failure_markers,omitempty"`
	// Retry policy fields for transient log read failures.
	MaxRetries        int              `yaml:"max_retries,omitempty"`         // retries after first failure (default 2)
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff,omitempty"`       // fixed|linear|exponential (default linear)
	RetryInitialDelay string           `yaml:"retry_initial_delay,omitempty"` // duration string (default 1s)
	RetryMaxDelay     string           `yaml:"retry_max_delay,omitempty"`     // cap for growth (default 30s)
}

// ArtifactConfig describes where build output lands and how completion is probed.
type ArtifactConfig struct {
	Dir             string `yaml:"dir,omitempty"`              // relative to workdir (default "build")
	Glob            string `yaml:"glob,omitempty"`             // file pattern counted (default "*.html")
	StabilityWindow string `yaml:"stability_window,omitempty"` // re-check delay for the stable-count heuristic (default 2s)
	SkipHTMLProbe   bool   `yaml:"skip_html_probe,omitempty"`  // skip parsing the newest page before trusting a count-based verdict
}

// RecoverConfig holds settings for the orphaned-process sweeper.
type RecoverConfig struct {
	// Patterns are substrings matched against full process command lines.
	Patterns    []string `yaml:"patterns,omitempty"`
	GracePeriod string   `yaml:"grace_period,omitempty"` // SIGTERM to SIGKILL delay (default 5s)
}

// HistoryConfig controls the SQLite run-history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // default <workdir>/.buildsafe/history.db
}

// NotifyConfig controls optional NATS lifecycle event publishing.
type NotifyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
	Stream        string `yaml:"stream,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint during monitoring.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// VerifyConfig describes the external verification command run after a
// successful build (for example a link checker). The command is opaque;
// only its exit status is consumed.
type VerifyConfig struct {
	Command []string `yaml:"command,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"` // duration string (default 10m)
}

// Load loads a configuration file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate version when present; absent means current
	if config.Version != "" && !strings.HasPrefix(config.Version, "1.") {
		return nil, fmt.Errorf("unsupported configuration version: %s (expected 1.x)", config.Version)
	}

	applyEnvOverrides(&config)

	// Apply defaults
	if err := applyDefaults(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Validate configuration
	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads configPath when it exists. A missing file at the default
// location yields a fully-defaulted config; a missing file at an explicitly
// requested location is an error.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if configPath == DefaultConfigPath {
			return Default()
		}
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}
	return Load(configPath)
}

// Default returns a configuration with every default applied and no file read.
func Default() (*Config, error) {
	config := &Config{}
	applyEnvOverrides(config)
	if err := applyDefaults(config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	exampleConfig := Config{
		Version: "1.0",
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Launch: LaunchConfig{
			NodeHeapMB: 8192,
		},
		Monitor: MonitorConfig{
			PollInterval:      "3s",
			TailLines:         40,
			SuccessMarkers:    []string{"Generated static files", "[SUCCESS]"},
			FailureMarkers:    []string{"[ERROR]", "Build failed"},
			MaxRetries:        2,
			RetryBackoff:      RetryBackoffLinear,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "30s",
		},
		Artifacts: ArtifactConfig{
			Dir:             "build",
			Glob:            "*.html",
			StabilityWindow: "2s",
		},
		Recover: RecoverConfig{
			Patterns:    []string{"docusaurus build", "npm run build"},
			GracePeriod: "5s",
		},
		History: &HistoryConfig{Enabled: true},
		Notify: &NotifyConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "buildsafe.builds",
			Stream:        "BUILDSAFE",
		},
		Metrics: &MetricsConfig{
			Enabled: false,
			Addr:    ":9321",
			Path:    "/metrics",
		},
		Verify: &VerifyConfig{
			Command: []string{"npm", "run", "check-links"},
			Timeout: "10m",
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyDefaults applies default values to configuration
func applyDefaults(config *Config) error {
	applier := NewDefaultApplier()
	return applier.ApplyDefaults(config)
}
