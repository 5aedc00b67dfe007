// Package config provides configuration loading, validation, and secret
// management for the pipeline. It handles JSON config files with environment
// variable substitution and a YAML runbook describing the producer workers.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Project config constants.
const (
	ProjectConfigDir      = ".siteforge"
	ProjectConfigFilename = "config.json"
	SchemaVersion         = "1.0"
)

// Defaults applied when the config file omits a value.
const (
	DefaultMaxIterations     = 3
	DefaultStallTimeoutSec   = 600 // 10 minutes, fail-fast
	DefaultRotationHours     = 24
	DefaultDatabaseName      = "siteforge.db"
	DefaultBackupDirName     = "backups"
	DefaultLogDirName        = "logs"
	DefaultRetryAttempts     = 3
	DefaultBackoffMultiplier = 2.0
)

// Config is the main pipeline configuration.
type Config struct {
	SchemaVersion string `json:"schema_version"`
	TargetURL     string `json:"target_url"`
	WorkDir       string `json:"workdir"`
	RunbookPath   string `json:"runbook,omitempty"`

	MaxIterations int `json:"max_iterations"`
	// StallTimeoutSec bounds each phase's producer call. Zero takes the
	// fail-fast default; a negative value waits indefinitely.
	StallTimeoutSec       int    `json:"stall_timeout_sec"`
	EventLogRotationHours int    `json:"event_log_rotation_hours"`
	DatabasePath          string `json:"database_path"`
	BackupDir             string `json:"backup_dir"`
	LogDir                string `json:"log_dir"`

	MaxRetryAttempts       int     `json:"max_retry_attempts"`
	RetryBackoffMultiplier float64 `json:"retry_backoff_multiplier"`

	// Per-model spend guards for live runs. Zero means unlimited.
	MaxTokensPerMinute int     `json:"max_tokens_per_minute,omitempty"`
	DailyBudgetUSD     float64 `json:"daily_budget_usd,omitempty"`

	// MetricsAddr exposes Prometheus metrics at host:port/metrics when set.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// Live switches from canned demo producers to real LLM producers.
	Live bool `json:"live"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig loads and validates configuration from a JSON file with
// environment variable substitution.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace ${ENV_VAR} placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Keep the placeholder if the env var is unset
	})

	var config Config
	if err := json.Unmarshal([]byte(dataStr), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a ready-to-run configuration for workDir.
func DefaultConfig(targetURL, workDir string) *Config {
	config := &Config{
		SchemaVersion: SchemaVersion,
		TargetURL:     targetURL,
		WorkDir:       workDir,
	}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.SchemaVersion == "" {
		config.SchemaVersion = SchemaVersion
	}
	if config.WorkDir == "" {
		config.WorkDir = "."
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.StallTimeoutSec == 0 {
		config.StallTimeoutSec = DefaultStallTimeoutSec
	}
	if config.EventLogRotationHours <= 0 {
		config.EventLogRotationHours = DefaultRotationHours
	}
	if config.DatabasePath == "" {
		config.DatabasePath = joinWorkDir(config.WorkDir, DefaultDatabaseName)
	}
	if config.BackupDir == "" {
		config.BackupDir = joinWorkDir(config.WorkDir, DefaultBackupDirName)
	}
	if config.LogDir == "" {
		config.LogDir = joinWorkDir(config.WorkDir, DefaultLogDirName)
	}
	if config.MaxRetryAttempts <= 0 {
		config.MaxRetryAttempts = DefaultRetryAttempts
	}
	if config.RetryBackoffMultiplier <= 0 {
		config.RetryBackoffMultiplier = DefaultBackoffMultiplier
	}
}

func validateConfig(config *Config) error {
	if config.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if config.MaxIterations > 100 {
		return fmt.Errorf("max_iterations %d is unreasonably large (max 100)", config.MaxIterations)
	}
	return nil
}

// StallTimeout converts the configured seconds into the controller's
// duration: zero when waiting indefinitely.
func (c *Config) StallTimeout() time.Duration {
	if c.StallTimeoutSec < 0 {
		return 0
	}
	return time.Duration(c.StallTimeoutSec) * time.Second
}

func joinWorkDir(workDir, name string) string {
	return filepath.Join(workDir, ProjectConfigDir, name)
}
