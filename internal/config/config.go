// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Agent  AgentConfig  `mapstructure:"agent" yaml:"agent"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ServerConfig tunes the inbound HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LLMProvider defines the supported model gateway providers.
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the model gateway client and the fallback chain.
// Models is ordered: the first entry is the primary model, the rest are
// tried in sequence when an earlier one fails.
type LLMConfig struct {
	Provider           LLMProvider   `mapstructure:"provider" yaml:"provider"`
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey             string        `mapstructure:"api_key" yaml:"-"`
	Models             []string      `mapstructure:"models" yaml:"models"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxRetriesPerModel int           `mapstructure:"max_retries_per_model" yaml:"max_retries_per_model"`
	Temperature        float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RateLimit          float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// AgentConfig holds the decision pipeline knobs: page compaction budgets,
// prompt windows, repair threshold, and per-task state retention.
type AgentConfig struct {
	MaxSteps            int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxElements         int           `mapstructure:"max_elements" yaml:"max_elements"`
	MaxContentChars     int           `mapstructure:"max_content_chars" yaml:"max_content_chars"`
	ExtractionMode      string        `mapstructure:"extraction_mode" yaml:"extraction_mode"`
	HistoryWindow       int           `mapstructure:"history_window" yaml:"history_window"`
	MemoryWindow        int           `mapstructure:"memory_window" yaml:"memory_window"`
	SimilarityThreshold int           `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	StateTTL            time.Duration `mapstructure:"state_ttl" yaml:"state_ttl"`
	MaxTrackedTasks     int           `mapstructure:"max_tracked_tasks" yaml:"max_tracked_tasks"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "iwa")
	v.SetDefault("logger.log_file", "iwa.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- LLM --
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "http://localhost:8000/v1")
	v.SetDefault("llm.models", []string{"gpt-4.1", "gpt-4o", "gpt-4.1-mini"})
	v.SetDefault("llm.request_timeout", "55s")
	v.SetDefault("llm.max_retries_per_model", 2)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.rate_limit", 4.0)

	// -- Agent --
	v.SetDefault("agent.max_steps", 30)
	v.SetDefault("agent.max_elements", 150)
	v.SetDefault("agent.max_content_chars", 12000)
	v.SetDefault("agent.extraction_mode", "all_fields")
	v.SetDefault("agent.history_window", 10)
	v.SetDefault("agent.memory_window", 6)
	v.SetDefault("agent.similarity_threshold", 62)
	v.SetDefault("agent.state_ttl", "30m")
	v.SetDefault("agent.max_tracked_tasks", 256)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("llm.api_key", "IWA_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("IWA_LLM_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the model gateway settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("provider must be one of: openai, gemini")
	}
	if l.Provider == ProviderOpenAI && l.BaseURL == "" {
		return fmt.Errorf("base_url is required for the openai provider")
	}
	if len(l.Models) == 0 {
		return fmt.Errorf("models must list at least one model")
	}
	if l.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be a positive duration")
	}
	if l.MaxRetriesPerModel < 0 {
		return fmt.Errorf("max_retries_per_model must not be negative")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be a positive number of requests per second")
	}
	return nil
}

// Validate checks the decision pipeline settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.MaxElements <= 0 {
		return fmt.Errorf("max_elements must be a positive integer")
	}
	if a.MaxContentChars <= 0 {
		return fmt.Errorf("max_content_chars must be a positive integer")
	}
	switch a.ExtractionMode {
	case "all_fields", "input_fields", "links_only":
	default:
		return fmt.Errorf("extraction_mode must be one of: all_fields, input_fields, links_only")
	}
	if a.HistoryWindow <= 0 {
		return fmt.Errorf("history_window must be a positive integer")
	}
	if a.MemoryWindow <= 0 {
		return fmt.Errorf("memory_window must be a positive integer")
	}
	if a.SimilarityThreshold < 0 || a.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity_threshold must be between 0 and 100")
	}
	if a.StateTTL <= 0 {
		return fmt.Errorf("state_ttl must be a positive duration")
	}
	if a.MaxTrackedTasks <= 0 {
		return fmt.Errorf("max_tracked_tasks must be a positive integer")
	}
	return nil
}
