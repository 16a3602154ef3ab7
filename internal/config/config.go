// ABOUTME: Configuration loading and parsing for windlass
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete windlass configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// FetchConfig holds remote retrieval configuration
type FetchConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`

	// GitHubAPIBase overrides the GitHub API endpoint, mainly for
	// proxied environments
	GitHubAPIBase string `yaml:"github_api_base"`
}

// SubscriptionsConfig holds subscription refresh configuration
type SubscriptionsConfig struct {
	RefreshInterval time.Duration `yaml:"-"`

	RefreshIntervalRaw string `yaml:"refresh_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultFetchTimeout applies when fetch.timeout is omitted.
const DefaultFetchTimeout = 30 * time.Second

// Load reads and validates the YAML configuration at path. ${VAR} references
// are substituted from the environment before parsing, and duration fields are
// converted from their string form.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Substitution happens on the raw text, before YAML sees it
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}

	return &cfg, nil
}

// expandEnvVars substitutes each ${VAR} occurrence with the value of VAR.
// Unset variables expand to the empty string rather than failing.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate reports the first problem with the configuration, or nil if it is
// usable as-is.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// parseDurations fills the time.Duration fields from their raw string
// counterparts, leaving fields that were omitted at zero
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Fetch.TimeoutRaw != "" {
		cfg.Fetch.Timeout, err = time.ParseDuration(cfg.Fetch.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing fetch.timeout %q: %w", cfg.Fetch.TimeoutRaw, err)
		}
	}

	if cfg.Subscriptions.RefreshIntervalRaw != "" {
		cfg.Subscriptions.RefreshInterval, err = time.ParseDuration(cfg.Subscriptions.RefreshIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing subscriptions.refresh_interval %q: %w", cfg.Subscriptions.RefreshIntervalRaw, err)
		}
	}

	return nil
}
