package config

import (
	"time"
)

// Config represents the complete configuration for servoskull
type Config struct {
	// Server holds the HTTP and websocket transport settings
	Server ServerConfig `yaml:"server" json:"server"`

	// API configures the upstream AI provider
	API APIConfig `yaml:"api" json:"api"`

	// Assistant holds model names, prompts and generation limits
	Assistant AssistantConfig `yaml:"assistant" json:"assistant"`

	// Session bounds conversation state
	Session SessionConfig `yaml:"session" json:"session"`

	// Storage configures the conversation archive
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig defines the listener and websocket hub
type ServerConfig struct {
	Addr    string `yaml:"addr" json:"addr" validate:"required"`
	HubPath string `yaml:"hub_path" json:"hub_path" validate:"required,startswith=/"`

	// AllowedOrigins is matched against the Origin header. Empty allows any.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins,omitempty"`

	MaxMessageBytes int64 `yaml:"max_message_bytes" json:"max_message_bytes" validate:"gt=0"`

	// DetailedErrors includes the underlying error text in receiveError frames
	DetailedErrors bool `yaml:"detailed_errors" json:"detailed_errors"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// APIConfig holds API-related configuration
type APIConfig struct {
	Provider     string        `yaml:"provider" json:"provider" validate:"provider"`
	BaseURL      string        `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	APIKey       string        `yaml:"api_key" json:"api_key,omitempty"`
	APIKeyEnvVar string        `yaml:"api_key_env_var" json:"api_key_env_var,omitempty"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	Retry          RetryConfig          `yaml:"retry" json:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" json:"rate_limit"`
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay" validate:"gte=0"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
}

// CircuitBreakerConfig defines when upstream calls are short-circuited
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout" validate:"gt=0"`
}

// RateLimitConfig defines client-side rate limiting. Zero requests per
// minute disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=0"`
	BurstSize         int `yaml:"burst_size" json:"burst_size" validate:"gte=0"`
}

// AssistantConfig holds the models and prompts used for every exchange
type AssistantConfig struct {
	AssistantModel     string  `yaml:"assistant_model" json:"assistant_model" validate:"required"`
	TranscriptionModel string  `yaml:"transcription_model" json:"transcription_model" validate:"required"`
	VoiceModel         string  `yaml:"voice_model" json:"voice_model" validate:"required"`
	Voice              string  `yaml:"voice" json:"voice" validate:"required"`
	SystemPrompt       string  `yaml:"system_prompt" json:"system_prompt"`
	VoicePrompt        string  `yaml:"voice_prompt" json:"voice_prompt,omitempty"`
	MaxTokens          int     `yaml:"max_tokens" json:"max_tokens" validate:"min=1,max=4096"`
	Temperature        float32 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`

	// SpeakReplies adds synthesized audio to replies to text messages
	SpeakReplies bool `yaml:"speak_replies" json:"speak_replies"`
}

// SessionConfig bounds per-connection history
type SessionConfig struct {
	// HistoryWindow is the number of recent turns sent as context
	HistoryWindow int `yaml:"history_window" json:"history_window" validate:"min=1"`

	// MaxTurns caps retained turns per session. Zero keeps everything.
	MaxTurns int `yaml:"max_turns" json:"max_turns" validate:"min=0"`
}

// StorageConfig defines the conversation archive
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	DatabasePath string `yaml:"database_path" json:"database_path" validate:"required_if=Enabled true"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"log_level"`

	// Format is the output format (text, json)
	Format string `yaml:"format" json:"format" validate:"log_format"`
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	SystemConfig  string
	UserConfig    string
	ProjectConfig string

	// EnvironmentPrefix for env var overrides
	EnvironmentPrefix string
}

// ConfigSource indicates where a configuration file came from
type ConfigSource string

const (
	SourceSystem   ConfigSource = "system"
	SourceUser     ConfigSource = "user"
	SourceProject  ConfigSource = "project"
	SourceExplicit ConfigSource = "explicit"
)
