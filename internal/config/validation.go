package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	validator := newConfigurationValidator(cfg)
	return validator.validate()
}

// configurationValidator coordinates validation across all configuration domains.
type configurationValidator struct {
	config *Config
}

// newConfigurationValidator creates a comprehensive configuration validator.
func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

// validate performs comprehensive configuration validation using domain-specific methods.
func (cv *configurationValidator) validate() error {
	if err := cv.validateLaunch(); err != nil {
		return err
	}
	if err := cv.validateMonitor(); err != nil {
		return err
	}
	if err := cv.validateArtifacts(); err != nil {
		return err
	}
	if err := cv.validateRecover(); err != nil {
		return err
	}
	if err := cv.validateNotify(); err != nil {
		return err
	}
	if err := cv.validateMetrics(); err != nil {
		return err
	}
	if err := cv.validateVerify(); err != nil {
		return err
	}
	return nil
}

// validateLaunch validates launch configuration settings.
func (cv *configurationValidator) validateLaunch() error {
	if cv.config.Launch.NodeHeapMB < 0 {
		return fmt.Errorf("launch.node_heap_mb cannot be negative: %d", cv.config.Launch.NodeHeapMB)
	}
	for key := range cv.config.Launch.Env {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("launch.env contains an empty variable name")
		}
		if strings.Contains(key, "=") {
			return fmt.Errorf("launch.env variable name must not contain '=': %s", key)
		}
	}
	return nil
}

// validateMonitor validates monitor configuration settings.
func (cv *configurationValidator) validateMonitor() error {
	poll, err := time.ParseDuration(cv.config.Monitor.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid monitor.poll_interval: %s: %w", cv.config.Monitor.PollInterval, err)
	}
	if poll <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive: %s", cv.config.Monitor.PollInterval)
	}

	if cv.config.Monitor.Timeout != "" {
		if _, err := time.ParseDuration(cv.config.Monitor.Timeout); err != nil {
			return fmt.Errorf("invalid monitor.timeout: %s: %w", cv.config.Monitor.Timeout, err)
		}
	}

	if err := cv.validateRetryBackoff(); err != nil {
		return err
	}
	if err := cv.validateRetryDelays(); err != nil {
		return err
	}
	if err := cv.validateMaxRetries(); err != nil {
		return err
	}

	return nil
}

// validateRetryBackoff validates the retry backoff strategy.
func (cv *configurationValidator) validateRetryBackoff() error {
	if _, err := retryBackoffNormalizer.Parse(string(cv.config.Monitor.RetryBackoff)); err != nil {
		return fmt.Errorf("invalid monitor.retry_backoff: %w", err)
	}
	return nil
}

// validateRetryDelays validates retry delay durations and their relationship.
func (cv *configurationValidator) validateRetryDelays() error {
	initDur, err := time.ParseDuration(cv.config.Monitor.RetryInitialDelay)
	if err != nil {
		return fmt.Errorf("invalid monitor.retry_initial_delay: %s: %w", cv.config.Monitor.RetryInitialDelay, err)
	}

	maxDur, err := time.ParseDuration(cv.config.Monitor.RetryMaxDelay)
	if err != nil {
		return fmt.Errorf("invalid monitor.retry_max_delay: %s: %w", cv.config.Monitor.RetryMaxDelay, err)
	}

	if maxDur < initDur {
		return fmt.Errorf("monitor.retry_max_delay (%s) must be >= monitor.retry_initial_delay (%s)",
			cv.config.Monitor.RetryMaxDelay, cv.config.Monitor.RetryInitialDelay)
	}

	return nil
}

func (cv *configurationValidator) validateMaxRetries() error {
	if cv.config.Monitor.MaxRetries < 0 {
		return fmt.Errorf("monitor.max_retries cannot be negative: %d", cv.config.Monitor.MaxRetries)
	}
	return nil
}

// validateArtifacts validates artifact probing settings.
func (cv *configurationValidator) validateArtifacts() error {
	if _, err := time.ParseDuration(cv.config.Artifacts.StabilityWindow); err != nil {
		return fmt.Errorf("invalid artifacts.stability_window: %s: %w", cv.config.Artifacts.StabilityWindow, err)
	}
	if strings.Contains(cv.config.Artifacts.Dir, "..") {
		return fmt.Errorf("artifacts.dir must not contain '..': %s", cv.config.Artifacts.Dir)
	}
	return nil
}

// validateRecover validates sweeper settings.
func (cv *configurationValidator) validateRecover() error {
	grace, err := time.ParseDuration(cv.config.Recover.GracePeriod)
	if err != nil {
		return fmt.Errorf("invalid recover.grace_period: %s: %w", cv.config.Recover.GracePeriod, err)
	}
	if grace < 0 {
		return fmt.Errorf("recover.grace_period cannot be negative: %s", cv.config.Recover.GracePeriod)
	}
	for _, p := range cv.config.Recover.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("recover.patterns must not contain empty entries")
		}
	}
	return nil
}

// validateNotify validates NATS notification settings.
func (cv *configurationValidator) validateNotify() error {
	if cv.config.Notify == nil || !cv.config.Notify.Enabled {
		return nil
	}
	if cv.config.Notify.URL == "" {
		return fmt.Errorf("notify.url is required when notify.enabled is true")
	}
	if cv.config.Notify.SubjectPrefix == "" {
		return fmt.Errorf("notify.subject_prefix is required when notify.enabled is true")
	}
	return nil
}

// validateMetrics validates Prometheus endpoint settings.
func (cv *configurationValidator) validateMetrics() error {
	if cv.config.Metrics == nil || !cv.config.Metrics.Enabled {
		return nil
	}
	if cv.config.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics.enabled is true")
	}
	return nil
}

// validateVerify validates verifier settings.
func (cv *configurationValidator) validateVerify() error {
	if cv.config.Verify == nil {
		return nil
	}
	if _, err := time.ParseDuration(cv.config.Verify.Timeout); err != nil {
		return fmt.Errorf("invalid verify.timeout: %s: %w", cv.config.Verify.Timeout, err)
	}
	for _, arg := range cv.config.Verify.Command {
		if strings.TrimSpace(arg) == "" {
			return fmt.Errorf("verify.command must not contain empty arguments")
		}
	}
	return nil
}
