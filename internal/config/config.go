package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Hearth configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Upstream completion provider
	Upstream UpstreamConfig `json:"upstream" mapstructure:"upstream"`

	// Admission control
	RateLimit RateLimitConfig `json:"rate_limit" mapstructure:"rate_limit"`

	// Rolling session memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Response cache
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Persona prompts
	Prompt PromptConfig `json:"prompt" mapstructure:"prompt"`

	// Quote corpus
	Quotes QuotesConfig `json:"quotes" mapstructure:"quotes"`

	// Durable chat log
	ChatLog ChatLogConfig `json:"chat_log" mapstructure:"chat_log"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string `json:"host" mapstructure:"host"`
	Port          int    `json:"port" mapstructure:"port"`
	AllowedOrigin string `json:"allowed_origin" mapstructure:"allowed_origin"`
	HistoryLimit  int    `json:"history_limit" mapstructure:"history_limit"`
}

// UpstreamConfig holds completion provider configuration
type UpstreamConfig struct {
	Vendor      string  `json:"vendor" mapstructure:"vendor"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`

	// Retry policy for upstream calls
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS int `json:"base_delay_ms" mapstructure:"base_delay_ms"`
}

// RateLimitConfig holds admission control settings
type RateLimitConfig struct {
	Limit         int `json:"limit" mapstructure:"limit"`
	WindowSeconds int `json:"window_seconds" mapstructure:"window_seconds"`
}

// Window returns the sliding window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// MemoryConfig holds rolling memory settings
type MemoryConfig struct {
	Exchanges        int `json:"exchanges" mapstructure:"exchanges"`
	IdleSweepMinutes int `json:"idle_sweep_minutes" mapstructure:"idle_sweep_minutes"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// PromptConfig holds persona prompt settings
type PromptConfig struct {
	Dir            string `json:"dir" mapstructure:"dir"`
	DefaultPersona string `json:"default_persona" mapstructure:"default_persona"`
	ChildName      string `json:"child_name" mapstructure:"child_name"`
	SampleCount    int    `json:"sample_count" mapstructure:"sample_count"`
	MaxQuotes      int    `json:"max_quotes" mapstructure:"max_quotes"`
}

// QuotesConfig holds quote corpus settings
type QuotesConfig struct {
	Path  string `json:"path" mapstructure:"path"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// ChatLogConfig holds durable chat log settings
type ChatLogConfig struct {
	Enabled           bool   `json:"enabled" mapstructure:"enabled"`
	Path              string `json:"path" mapstructure:"path"`
	RetentionDays     int    `json:"retention_days" mapstructure:"retention_days"`
	MaxMessages       int    `json:"max_messages" mapstructure:"max_messages"`
	RetentionSchedule string `json:"retention_schedule" mapstructure:"retention_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          3002,
			AllowedOrigin: "*",
			HistoryLimit:  200,
		},
		Upstream: UpstreamConfig{
			Vendor:      "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   300,
			MaxAttempts: 3,
			BaseDelayMS: 500,
		},
		RateLimit: RateLimitConfig{
			Limit:         10,
			WindowSeconds: 60,
		},
		Memory: MemoryConfig{
			Exchanges:        6,
			IdleSweepMinutes: 60,
		},
		Cache: CacheConfig{
			Capacity: 200,
		},
		Prompt: PromptConfig{
			DefaultPersona: "daddy",
			SampleCount:    3,
			MaxQuotes:      4,
		},
		Quotes: QuotesConfig{
			Watch: true,
		},
		ChatLog: ChatLogConfig{
			Enabled:           true,
			RetentionDays:     90,
			MaxMessages:       200,
			RetentionSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config with the API key
// redacted.
func (c *Config) String() string {
	clone := *c
	if clone.Upstream.APIKey != "" {
		clone.Upstream.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validator := NewValidator()

	if err := validator.ValidateVendor(c.Upstream.Vendor); err != nil {
		return err
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream api_key is required")
	}
	if err := validator.ValidateAPIKey(c.Upstream.APIKey, c.Upstream.Vendor); err != nil {
		return err
	}
	if c.Upstream.Model == "" {
		return fmt.Errorf("upstream model is required")
	}

	if c.RateLimit.Limit < 0 {
		return fmt.Errorf("rate_limit.limit must not be negative")
	}
	if c.Memory.Exchanges < 0 {
		return fmt.Errorf("memory.exchanges must not be negative")
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must not be negative")
	}

	if err := validator.ValidatePersona(c.Prompt.DefaultPersona); err != nil {
		return err
	}

	if c.ChatLog.Enabled && c.ChatLog.RetentionSchedule != "" {
		if err := validator.ValidateSchedule(c.ChatLog.RetentionSchedule); err != nil {
			return err
		}
	}

	return nil
}
