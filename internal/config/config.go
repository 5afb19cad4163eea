// Package config handles configuration loading and management for conductor.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for conductor.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Health    HealthConfig    `mapstructure:"health"`
	Events    EventsConfig    `mapstructure:"events"`
	State     StateConfig     `mapstructure:"state"`
	Keywords  KeywordsConfig  `mapstructure:"keywords"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SchedulerConfig holds dispatch loop settings.
type SchedulerConfig struct {
	// PollInterval bounds how long the dispatch loop sleeps between ticks.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Breakers enables per-worker dispatch circuit breakers.
	Breakers bool `mapstructure:"breakers"`
}

// RetryConfig holds task retry settings.
type RetryConfig struct {
	// MaxRetries is the default retry budget per subtask.
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffEnabled turns delayed requeue on. Off means immediate requeue.
	BackoffEnabled bool `mapstructure:"backoff_enabled"`
	// BackoffInitial is the delay before the first delayed retry.
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	// BackoffMax caps the delay between retries.
	BackoffMax time.Duration `mapstructure:"backoff_max"`
	// BackoffMultiplier grows the delay per attempt.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
}

// HealthConfig holds worker health monitoring settings.
type HealthConfig struct {
	// HeartbeatInterval is the expected heartbeat period.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// DegradedAfter is the missed-interval count before degradation.
	DegradedAfter int `mapstructure:"degraded_after"`
	// FailedAfter is the missed-interval count before failure.
	FailedAfter int `mapstructure:"failed_after"`
}

// EventsConfig holds lifecycle event settings.
type EventsConfig struct {
	// Buffer is the subscriber channel capacity.
	Buffer int `mapstructure:"buffer"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database path. Empty uses the default XDG path.
	Path string `mapstructure:"path"`
	// SnapshotInterval is how often core state is persisted.
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// KeywordsConfig holds capability inference settings.
type KeywordsConfig struct {
	// Path points at a YAML keyword table overriding the built-in one.
	Path string `mapstructure:"path"`
	// Watch enables hot reload of the keyword table on file changes.
	Watch bool `mapstructure:"watch"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// DebugLog is the debug log file path. Empty disables debug logging.
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_*)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()
	v.BindEnv("state.path", "CONDUCTOR_STATE_PATH")
	v.BindEnv("keywords.path", "CONDUCTOR_KEYWORDS_PATH")
	v.BindEnv("logging.debug_log", "CONDUCTOR_DEBUG_LOG")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.State.Path = os.ExpandEnv(cfg.State.Path)
	cfg.Keywords.Path = os.ExpandEnv(cfg.Keywords.Path)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.State.Path = os.ExpandEnv(cfg.State.Path)
	cfg.Keywords.Path = os.ExpandEnv(cfg.Keywords.Path)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("scheduler.poll_interval", cfg.Scheduler.PollInterval.String())
	v.Set("scheduler.breakers", cfg.Scheduler.Breakers)
	v.Set("retry.max_retries", cfg.Retry.MaxRetries)
	v.Set("retry.backoff_enabled", cfg.Retry.BackoffEnabled)
	v.Set("retry.backoff_initial", cfg.Retry.BackoffInitial.String())
	v.Set("retry.backoff_max", cfg.Retry.BackoffMax.String())
	v.Set("retry.backoff_multiplier", cfg.Retry.BackoffMultiplier)
	v.Set("health.heartbeat_interval", cfg.Health.HeartbeatInterval.String())
	v.Set("health.degraded_after", cfg.Health.DegradedAfter)
	v.Set("health.failed_after", cfg.Health.FailedAfter)
	v.Set("events.buffer", cfg.Events.Buffer)
	v.Set("state.path", cfg.State.Path)
	v.Set("state.snapshot_interval", cfg.State.SnapshotInterval.String())
	v.Set("keywords.path", cfg.Keywords.Path)
	v.Set("keywords.watch", cfg.Keywords.Watch)
	v.Set("logging.debug_log", cfg.Logging.DebugLog)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.poll_interval", "100ms")
	v.SetDefault("scheduler.breakers", false)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff_enabled", false)
	v.SetDefault("retry.backoff_initial", "100ms")
	v.SetDefault("retry.backoff_max", "10s")
	v.SetDefault("retry.backoff_multiplier", 2.0)

	v.SetDefault("health.heartbeat_interval", "5s")
	v.SetDefault("health.degraded_after", 2)
	v.SetDefault("health.failed_after", 4)

	v.SetDefault("events.buffer", 256)

	v.SetDefault("state.path", "")
	v.SetDefault("state.snapshot_interval", "10s")

	v.SetDefault("keywords.path", "")
	v.SetDefault("keywords.watch", false)

	v.SetDefault("logging.debug_log", "")
}

// getUserConfigDir returns the XDG config directory for conductor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			PollInterval: 100 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			BackoffInitial:    100 * time.Millisecond,
			BackoffMax:        10 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Health: HealthConfig{
			HeartbeatInterval: 5 * time.Second,
			DegradedAfter:     2,
			FailedAfter:       4,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		State: StateConfig{
			SnapshotInterval: 10 * time.Second,
		},
	}
}
