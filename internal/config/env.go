package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// loadEnvFile loads environment variables from the first .env file found.
// Existing environment values always win over file values.
func loadEnvFile() error {
	envPaths := []string{".env", ".env.local"}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("loading %s: %w", envPath, err)
		}
		fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
		return nil
	}

	return fmt.Errorf("no .env file found")
}

// applyEnvOverrides layers BUILDSAFE_* variables over file values. Overrides
// run before defaults so normalization treats them like any other input.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUILDSAFE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = NormalizeLogLevel(v)
	}
	if v := os.Getenv("BUILDSAFE_NODE_HEAP_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Launch.NodeHeapMB = n
		}
	}
}
