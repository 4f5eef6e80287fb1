// Package config loads the concierge service configuration from YAML
// with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grandcafe/concierge/internal/ratelimit"
)

// Config is the root configuration for the concierge service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Models  ModelsConfig  `yaml:"models"`
	Backend BackendConfig `yaml:"backend"`
	Storage StorageConfig `yaml:"storage"`
	Limits  LimitsConfig  `yaml:"limits"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelsConfig selects and authenticates the model backend.
type ModelsConfig struct {
	// Provider is "anthropic" (default) or "openai" for compatible
	// gateways.
	Provider string `yaml:"provider"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`

	// TurnBudget is the wall-clock ceiling per assistant turn.
	TurnBudget time.Duration `yaml:"turn_budget"`

	// DelegationTimeout bounds one sub-agent run.
	DelegationTimeout time.Duration `yaml:"delegation_timeout"`
}

// BackendConfig points at the restaurant backend's internal tool API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	// Path is the sqlite database file; empty means in-memory stores.
	Path string `yaml:"path"`

	// SweepInterval is how often expired pending actions are swept.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LimitsConfig struct {
	Chat       ratelimit.Config `yaml:"chat"`
	Delegation ratelimit.Config `yaml:"delegation"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads, expands, and parses the configuration file, then applies
// defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given; the API
// key and backend address still come from the environment.
func Default() *Config {
	cfg := &Config{}
	cfg.Models.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Backend.BaseURL = os.Getenv("CONCIERGE_BACKEND_URL")
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Models.Provider == "" {
		cfg.Models.Provider = "anthropic"
	}
	if cfg.Models.MaxRetries == 0 {
		cfg.Models.MaxRetries = 3
	}
	if cfg.Models.RetryDelay == 0 {
		cfg.Models.RetryDelay = time.Second
	}
	if cfg.Models.TurnBudget == 0 {
		cfg.Models.TurnBudget = 60 * time.Second
	}
	if cfg.Models.DelegationTimeout == 0 {
		cfg.Models.DelegationTimeout = 45 * time.Second
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 20 * time.Second
	}
	if cfg.Storage.SweepInterval == 0 {
		cfg.Storage.SweepInterval = time.Minute
	}
	if cfg.Limits.Chat.PerMinute == 0 {
		cfg.Limits.Chat = ratelimit.DefaultChatConfig()
	}
	if cfg.Limits.Delegation.PerMinute == 0 {
		cfg.Limits.Delegation = ratelimit.DefaultDelegationConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 0.1
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Models.APIKey == "" {
		return errors.New("config: models.api_key is required (or ANTHROPIC_API_KEY)")
	}
	switch c.Models.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown models.provider %q", c.Models.Provider)
	}
	if c.Backend.BaseURL == "" {
		return errors.New("config: backend.base_url is required")
	}
	return nil
}
