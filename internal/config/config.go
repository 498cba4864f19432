package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete drover configuration
type Config struct {
	Store       StoreConfig              `mapstructure:"store"`
	Agent       AgentConfig              `mapstructure:"agent"`
	Classifier  ClassifierConfig         `mapstructure:"classifier"`
	Policy      PolicyConfig             `mapstructure:"policy"`
	Channels    map[string]ChannelConfig `mapstructure:"channels"`
	Retry       RetryConfig              `mapstructure:"retry"`
	Coordinator CoordinatorConfig        `mapstructure:"coordinator"`
	Logging     LoggingConfig            `mapstructure:"logging"`
}

// StoreConfig controls where the item store lives
type StoreConfig struct {
	// Root is the directory tree holding the state directories.
	// Supports ~ for home directory expansion.
	Root string `mapstructure:"root"`
}

// AgentConfig controls the decision agent loop
type AgentConfig struct {
	// Name identifies this agent; it names the claim subtree and the
	// audit log. Two agents sharing a store must use distinct names.
	Name string `mapstructure:"name"`
	// PollIntervalSeconds is how often the agent scans the intake (default: 10)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// Watch enables the intake directory watcher for low-latency pickup (default: true)
	Watch bool `mapstructure:"watch"`
}

// ClassifierConfig controls the external decision classifier
type ClassifierConfig struct {
	// Command is the shell command invoked per item; empty disables the
	// classifier and the agent decides by rules alone
	Command string `mapstructure:"command"`
	// TimeoutSeconds bounds one classifier invocation (default: 60)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PolicyConfig locates the decision policy document
type PolicyConfig struct {
	// Path is a YAML policy file; empty uses the built-in default policy
	Path string `mapstructure:"path"`
}

// ChannelConfig configures one publish channel
type ChannelConfig struct {
	// Command is the publisher shell command for this channel
	Command string `mapstructure:"command"`
	// TimeoutSeconds bounds one publish invocation (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// PollIntervalSeconds is the monitor poll interval (default: 15)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// RetryConfig controls publish retry and escalation
type RetryConfig struct {
	// MaxAttempts is the consecutive-failure bound before escalation (default: 3)
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelaySeconds is the first retry backoff (default: 1)
	BaseDelaySeconds int `mapstructure:"base_delay_seconds"`
	// MaxDelaySeconds caps the backoff growth (default: 60)
	MaxDelaySeconds int `mapstructure:"max_delay_seconds"`
	// Jitter is the random spread fraction 0..1 (default: 0.2)
	Jitter float64 `mapstructure:"jitter"`
}

// CoordinatorConfig controls the cross-channel coordinator
type CoordinatorConfig struct {
	// PollIntervalSeconds is how often tracked parents are re-checked (default: 30)
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	// StaleAfterHours flags parents pending longer than this (default: 24)
	StaleAfterHours int `mapstructure:"stale_after_hours"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where log files are written; empty logs to stderr
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Root: "~/.drover/store",
		},
		Agent: AgentConfig{
			Name:                "local",
			PollIntervalSeconds: 10,
			Watch:               true,
		},
		Classifier: ClassifierConfig{
			TimeoutSeconds: 60,
		},
		Channels: map[string]ChannelConfig{},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelaySeconds: 1,
			MaxDelaySeconds:  60,
			Jitter:           0.2,
		},
		Coordinator: CoordinatorConfig{
			PollIntervalSeconds: 30,
			StaleAfterHours:     24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// PollInterval returns the agent poll interval as a time.Duration
func (c *AgentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Timeout returns the classifier timeout as a time.Duration
func (c *ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the publish timeout as a time.Duration
func (c *ChannelConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the monitor poll interval as a time.Duration
func (c *ChannelConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// BaseDelay returns the first retry backoff as a time.Duration
func (c *RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the backoff cap as a time.Duration
func (c *RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

// PollInterval returns the coordinator poll interval as a time.Duration
func (c *CoordinatorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StaleAfter returns the stale-parent threshold as a time.Duration
func (c *CoordinatorConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterHours) * time.Hour
}

// ExpandedRoot returns the store root with ~ expanded
func (c *StoreConfig) ExpandedRoot() string {
	return expandHome(c.Root)
}

func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("store.root", defaults.Store.Root)

	viper.SetDefault("agent.name", defaults.Agent.Name)
	viper.SetDefault("agent.poll_interval_seconds", defaults.Agent.PollIntervalSeconds)
	viper.SetDefault("agent.watch", defaults.Agent.Watch)

	viper.SetDefault("classifier.command", defaults.Classifier.Command)
	viper.SetDefault("classifier.timeout_seconds", defaults.Classifier.TimeoutSeconds)

	viper.SetDefault("policy.path", defaults.Policy.Path)

	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.base_delay_seconds", defaults.Retry.BaseDelaySeconds)
	viper.SetDefault("retry.max_delay_seconds", defaults.Retry.MaxDelaySeconds)
	viper.SetDefault("retry.jitter", defaults.Retry.Jitter)

	viper.SetDefault("coordinator.poll_interval_seconds", defaults.Coordinator.PollIntervalSeconds)
	viper.SetDefault("coordinator.stale_after_hours", defaults.Coordinator.StaleAfterHours)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "drover")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".drover"
	}
	return filepath.Join(home, ".config", "drover")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
