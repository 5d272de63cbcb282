package upstream

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	APIKey  string        // provider API key
	BaseURL string        // base URL including the /v1 suffix
	Logger  *slog.Logger  // logger for debugging
	Timeout time.Duration // per-request HTTP timeout

	AssistantModel     string  // chat completion model
	TranscriptionModel string  // speech-to-text model
	VoiceModel         string  // text-to-speech model
	Voice              string  // text-to-speech voice
	VoicePrompt        string  // delivery instructions for speech
	MaxTokens          int     // completion token cap
	Temperature        float32 // sampling temperature

	// HTTPClient overrides the client built from Timeout. Tests use it to
	// point at an httptest server.
	HTTPClient *http.Client
}
