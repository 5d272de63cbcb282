package config

import (
	"time"
)

const (
	DefaultEnvPrefix    = "SERVOSKULL"
	DefaultAPIKeyEnvVar = "OPENAI_API_KEY"

	// FrontendURIEnvVar names an extra allowed websocket origin.
	FrontendURIEnvVar = "FRONTEND_URI"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			HubPath:         "/interactionHub",
			MaxMessageBytes: 1 << 20,
			DetailedErrors:  true,
			ShutdownTimeout: 10 * time.Second,
		},

		API: APIConfig{
			Provider:     "openai",
			BaseURL:      "https://api.openai.com/v1",
			APIKeyEnvVar: DefaultAPIKeyEnvVar,
			Timeout:      60 * time.Second,
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: 2 * time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},

		Assistant: AssistantConfig{
			AssistantModel:     "gpt-4o",
			TranscriptionModel: "whisper-1",
			VoiceModel:         "tts-1",
			Voice:              "alloy",
			SystemPrompt:       "You are a helpful assistant that can see through the user's webcam and hear them speak. Answer concisely.",
			MaxTokens:          1000,
			Temperature:        0.7,
		},

		Session: SessionConfig{
			HistoryWindow: 10,
			MaxTurns:      1000,
		},

		Storage: StorageConfig{
			Enabled:      false,
			DatabasePath: DefaultDatabasePath(),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
