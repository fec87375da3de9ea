package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Sim      SimConfig      `json:"sim" yaml:"sim"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP listener parameters.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// WebhookRate caps signal ingestion, in requests per second.
	// WebhookBurst is the token-bucket burst size.
	WebhookRate  float64 `json:"webhook_rate" yaml:"webhook_rate"`
	WebhookBurst int     `json:"webhook_burst" yaml:"webhook_burst"`
}

// DatabaseConfig selects the order store.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "memory"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// SimConfig contains mock-broker timing and outcome parameters. Durations
// are strings like "2s" or "500ms".
type SimConfig struct {
	ExecutionLatency string  `json:"execution_latency" yaml:"execution_latency"`
	HoldingPeriod    string  `json:"holding_period" yaml:"holding_period"`
	WinMin           float64 `json:"win_min" yaml:"win_min"`
	WinMax           float64 `json:"win_max" yaml:"win_max"`
	LossMin          float64 `json:"loss_min" yaml:"loss_min"`
	LossMax          float64 `json:"loss_max" yaml:"loss_max"`
}

// ParseExecutionLatency converts the execution latency string to a Duration.
func (s SimConfig) ParseExecutionLatency() (time.Duration, error) {
	return time.ParseDuration(s.ExecutionLatency)
}

// ParseHoldingPeriod converts the holding period string to a Duration.
func (s SimConfig) ParseHoldingPeriod() (time.Duration, error) {
	return time.ParseDuration(s.HoldingPeriod)
}

// LoggingConfig contains logging parameters.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // logrus level name
	Format string `json:"format" yaml:"format"` // "json" or "text"
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.WebhookRate <= 0 {
		return fmt.Errorf("server.webhook_rate must be positive")
	}
	if c.Server.WebhookBurst <= 0 {
		return fmt.Errorf("server.webhook_burst must be positive")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "memory" {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory'")
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		return fmt.Errorf("database.path required for sqlite driver")
	}
	if d, err := c.Sim.ParseExecutionLatency(); err != nil || d < 0 {
		return fmt.Errorf("sim.execution_latency must be a non-negative duration")
	}
	if d, err := c.Sim.ParseHoldingPeriod(); err != nil || d < 0 {
		return fmt.Errorf("sim.holding_period must be a non-negative duration")
	}
	if c.Sim.WinMin <= 0 || c.Sim.WinMax < c.Sim.WinMin {
		return fmt.Errorf("sim win range must satisfy 0 < win_min <= win_max")
	}
	if c.Sim.LossMin <= 0 || c.Sim.LossMax < c.Sim.LossMin {
		return fmt.Errorf("sim loss range must satisfy 0 < loss_min <= loss_max")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			WebhookRate:  10,
			WebhookBurst: 20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./signals.db",
		},
		Sim: SimConfig{
			ExecutionLatency: "2s",
			HoldingPeriod:    "5s",
			WinMin:           10,
			WinMax:           50,
			LossMin:          10,
			LossMax:          50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
