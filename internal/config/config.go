package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration. Defaults are applied by
// Normalize; the CLI layer populates it from viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Model    ModelConfig    `mapstructure:"model"`
	Delegate DelegateConfig `mapstructure:"delegate"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ModelConfig configures the generation service used for both the parent
// conversation and delegated runs.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"` // "mock" is built in; real providers are injected
	Name        string  `mapstructure:"name"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// DelegateConfig carries the product-tuning constants for delegated runs.
// These are deliberately configuration, not algorithmic constants.
type DelegateConfig struct {
	StepBudget             int `mapstructure:"step_budget"`              // hard ceiling on generation steps
	SubstantialOutputChars int `mapstructure:"substantial_output_chars"` // minimum trimmed output length counted as substantial
	MaxTaskChars           int `mapstructure:"max_task_chars"`
	MaxContextChars        int `mapstructure:"max_context_chars"`
	MaxParallel            int `mapstructure:"max_parallel"` // concurrent delegated runs per parent step
}

// StreamConfig configures event fan-out.
type StreamConfig struct {
	SinkBuffer        int           `mapstructure:"sink_buffer"`   // per-client channel depth
	HistoryLimit      int           `mapstructure:"history_limit"` // events retained per session for replay
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Model: ModelConfig{
			Provider:    "mock",
			Name:        "parley-dev",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Delegate: DelegateConfig{
			StepBudget:             8,
			SubstantialOutputChars: 25,
			MaxTaskChars:           2000,
			MaxContextChars:        5000,
			MaxParallel:            3,
		},
		Stream: StreamConfig{
			SinkBuffer:        128,
			HistoryLimit:      1000,
			HeartbeatInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Normalize fills zero values with defaults and validates the result.
func (c *Config) Normalize() error {
	def := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = def.Server.AllowedOrigins
	}
	if c.Model.Provider == "" {
		c.Model.Provider = def.Model.Provider
	}
	if c.Model.Name == "" {
		c.Model.Name = def.Model.Name
	}
	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = def.Model.MaxTokens
	}
	if c.Delegate.StepBudget <= 0 {
		c.Delegate.StepBudget = def.Delegate.StepBudget
	}
	if c.Delegate.SubstantialOutputChars <= 0 {
		c.Delegate.SubstantialOutputChars = def.Delegate.SubstantialOutputChars
	}
	if c.Delegate.MaxTaskChars <= 0 {
		c.Delegate.MaxTaskChars = def.Delegate.MaxTaskChars
	}
	if c.Delegate.MaxContextChars <= 0 {
		c.Delegate.MaxContextChars = def.Delegate.MaxContextChars
	}
	if c.Delegate.MaxParallel <= 0 {
		c.Delegate.MaxParallel = def.Delegate.MaxParallel
	}
	if c.Stream.SinkBuffer <= 0 {
		c.Stream.SinkBuffer = def.Stream.SinkBuffer
	}
	if c.Stream.HistoryLimit <= 0 {
		c.Stream.HistoryLimit = def.Stream.HistoryLimit
	}
	if c.Stream.HeartbeatInterval <= 0 {
		c.Stream.HeartbeatInterval = def.Stream.HeartbeatInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}

	if c.Delegate.MaxTaskChars > c.Delegate.MaxContextChars {
		return fmt.Errorf("delegate.max_task_chars (%d) must not exceed delegate.max_context_chars (%d)",
			c.Delegate.MaxTaskChars, c.Delegate.MaxContextChars)
	}
	return nil
}
