package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Logging.Level != LogLevelInfo { t.Fatalf("logging level default: %v", cfg.Logging.Level) }
	if cfg.Logging.Format != LogFormatText { t.Fatalf("logging format default: %v", cfg.Logging.Format) }
	if cfg.Monitor.PollInterval != "3s" { t.Fatalf("poll_interval default: %v", cfg.Monitor.PollInterval) }
	if cfg.Monitor.TailLines != 40 { t.Fatalf("tail_lines default: %d", cfg.Monitor.TailLines) }
	if cfg.Monitor.MaxRetries != 2 { t.Fatalf("max_retries default: %d", cfg.Monitor.MaxRetries) }
	if cfg.Monitor.RetryBackoff != RetryBackoffLinear { t.Fatalf("retry_backoff default: %v", cfg.Monitor.RetryBackoff) }
	if cfg.Artifacts.Dir != "build" { t.Fatalf("artifacts dir default: %v", cfg.Artifacts.Dir) }
	if cfg.Artifacts.Glob != "*.html" { t.Fatalf("artifacts glob default: %v", cfg.Artifacts.Glob) }
	if cfg.Recover.GracePeriod != "5s" { t.Fatalf("grace_period default: %v", cfg.Recover.GracePeriod) }
	if len(cfg.Recover.Patterns) == 0 { t.Fatalf("expected default recover patterns") }
	if cfg.History == nil || !cfg.History.Enabled { t.Fatalf("history should default enabled") }
	if cfg.Notify == nil || cfg.Notify.Enabled { t.Fatalf("notify should default disabled") }
	if cfg.Metrics == nil || cfg.Metrics.Enabled { t.Fatalf("metrics should default disabled") }
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildsafe.yaml")
	raw := `version: "1.0"
logging:
  level: DEBUG
monitor:
  poll_interval: 1s
  timeout: 2h
  success_markers: ["done"]
artifacts:
  dir: public
recover:
  patterns: ["hugo --gc"]
  grace_period: 1s
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != LogLevelDebug {
		t.Fatalf("level not normalized: %v", cfg.Logging.Level)
	}
	if got := cfg.Monitor.PollIntervalDuration().String(); got != "1s" {
		t.Fatalf("poll interval: %v", got)
	}
	if got := cfg.Monitor.TimeoutDuration().String(); got != "2h0m0s" {
		t.Fatalf("timeout: %v", got)
	}
	if len(cfg.Monitor.SuccessMarkers) != 1 || cfg.Monitor.SuccessMarkers[0] != "done" {
		t.Fatalf("success markers overridden incorrectly: %v", cfg.Monitor.SuccessMarkers)
	}
	// Omitted sections still get defaults
	if len(cfg.Monitor.FailureMarkers) == 0 {
		t.Fatalf("failure markers should default")
	}
	if cfg.Artifacts.Dir != "public" {
		t.Fatalf("artifacts dir: %v", cfg.Artifacts.Dir)
	}
	if cfg.Recover.GraceDuration().String() != "1s" {
		t.Fatalf("grace: %v", cfg.Recover.GraceDuration())
	}
}

func TestLoadRejectsBadDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildsafe.yaml")
	raw := `monitor:
  poll_interval: banana
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid poll_interval")
	}
}

func TestLoadRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildsafe.yaml")
	if err := os.WriteFile(path, []byte("version: \"9.0\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported version")
	}
}

func TestLoadOrDefaultMissingExplicitPath(t *testing.T) {
	if _, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicit missing config should error")
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildsafe.yaml")

	if err := Init(path, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(path, false); err == nil {
		t.Fatalf("second Init without force should fail")
	}
	if err := Init(path, true); err != nil {
		t.Fatalf("Init force: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Init: %v", err)
	}
	if cfg.Launch.NodeHeapMB != 8192 {
		t.Fatalf("example node_heap_mb: %d", cfg.Launch.NodeHeapMB)
	}
}

func TestEnvExpansionInConfig(t *testing.T) {
	t.Setenv("BUILDSAFE_TEST_DIR", "expanded-out")
	dir := t.TempDir()
	path := filepath.Join(dir, "buildsafe.yaml")
	raw := `artifacts:
  dir: ${BUILDSAFE_TEST_DIR}
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Artifacts.Dir != "expanded-out" {
		t.Fatalf("env not expanded: %v", cfg.Artifacts.Dir)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BUILDSAFE_LOG_LEVEL", "warn")
	t.Setenv("BUILDSAFE_NODE_HEAP_MB", "4096")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Logging.Level != LogLevelWarn {
		t.Fatalf("BUILDSAFE_LOG_LEVEL not applied: %v", cfg.Logging.Level)
	}
	if cfg.Launch.NodeHeapMB != 4096 {
		t.Fatalf("BUILDSAFE_NODE_HEAP_MB not applied: %d", cfg.Launch.NodeHeapMB)
	}
}

func TestValidationRelationships(t *testing.T) {
	var cfg Config
	raw := `monitor:
  retry_initial_delay: 10s
  retry_max_delay: 1s
`
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := ValidateConfig(&cfg); err == nil {
		t.Fatalf("expected max < initial delay to fail validation")
	}
}

func TestNormalizeRetryBackoff(t *testing.T) {
	if NormalizeRetryBackoff("ExPoNeNtIaL") != RetryBackoffExponential {
		t.Fatalf("case-insensitive normalize failed")
	}
	if NormalizeRetryBackoff("spiral") != "" {
		t.Fatalf("unknown mode should normalize to empty")
	}
}
