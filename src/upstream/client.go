// Package upstream talks to the OpenAI-compatible provider that backs chat,
// transcription and speech.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second

	defaultAssistantModel     = "gpt-4o"
	defaultTranscriptionModel = "whisper-1"
	defaultVoiceModel         = "tts-1"
	defaultVoice              = "alloy"
	defaultMaxTokens          = 1000
)

// MultimodalRequest is one chat turn sent to the provider. ImageData is a
// data URL; PreviousContext becomes the system message.
type MultimodalRequest struct {
	Transcript      string
	ImageData       string
	PreviousContext string
}

// HasImage reports whether the request carries an image.
func (r MultimodalRequest) HasImage() bool {
	return r.ImageData != ""
}

// Client is the provider surface the gateway depends on.
type Client interface {
	// ProcessMultimodal returns the assistant reply for req.
	ProcessMultimodal(ctx context.Context, req MultimodalRequest) (string, error)
	// TranscribeAudio returns the transcript of audio. filename carries the
	// container extension the provider uses to pick a decoder.
	TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error)
	// GenerateSpeech returns encoded audio for text.
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

var _ Client = (*OpenAIClient)(nil)

// OpenAIClient implements Client on top of go-openai.
type OpenAIClient struct {
	config Config
	api    *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a new provider client.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.AssistantModel == "" {
		config.AssistantModel = defaultAssistantModel
	}
	if config.TranscriptionModel == "" {
		config.TranscriptionModel = defaultTranscriptionModel
	}
	if config.VoiceModel == "" {
		config.VoiceModel = defaultVoiceModel
	}
	if config.Voice == "" {
		config.Voice = defaultVoice
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	apiConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	apiConfig.HTTPClient = httpClient

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClient{
		config: config,
		api:    openai.NewClientWithConfig(apiConfig),
		logger: logger.With("component", "openai_client"),
	}, nil
}

// ProcessMultimodal sends a chat completion with an optional image part.
func (c *OpenAIClient) ProcessMultimodal(ctx context.Context, req MultimodalRequest) (string, error) {
	logger := c.logger.With("method", "ProcessMultimodal", "model", c.config.AssistantModel)
	logger.Debug("sending chat completion request", "has_image", req.HasImage(), "context_length", len(req.PreviousContext))

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.PreviousContext != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.PreviousContext,
		})
	}
	messages = append(messages, userMessage(req))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.AssistantModel,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: requestTemperature(c.config.Temperature),
	})
	if err != nil {
		err = classifyError(err)
		logFailure(logger, "chat completion failed", err)
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		logger.Error("chat completion returned no choices")
		return "", ErrEmptyResponse
	}

	logger.Info("chat completion successful",
		"usage_prompt", resp.Usage.PromptTokens,
		"usage_total", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

// logFailure logs rate limiting as a warning; the retry policy waits it out.
func logFailure(logger *slog.Logger, msg string, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimit() {
		logger.Warn(msg, "rate_limited", true, "error", err)
		return
	}
	logger.Error(msg, "error", err)
}

// requestTemperature keeps an explicit zero on the wire. go-openai omits a
// zero Temperature and the provider would fall back to its own default.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func userMessage(req MultimodalRequest) openai.ChatCompletionMessage {
	if !req.HasImage() {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Transcript,
		}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Transcript},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: req.ImageData},
			},
		},
	}
}

// TranscribeAudio uploads audio for speech-to-text.
func (c *OpenAIClient) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	logger := c.logger.With("method", "TranscribeAudio", "model", c.config.TranscriptionModel)
	logger.Debug("sending transcription request", "bytes", len(audio), "filename", filename)

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		err = classifyError(err)
		logFailure(logger, "transcription failed", err)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// GenerateSpeech synthesizes text as mp3 audio.
func (c *OpenAIClient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	logger := c.logger.With("method", "GenerateSpeech", "model", c.config.VoiceModel)
	logger.Debug("sending speech request", "characters", len(text))

	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.config.VoiceModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.config.Voice),
		Instructions:   c.config.VoicePrompt,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		err = classifyError(err)
		logFailure(logger, "speech synthesis failed", err)
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyResponse
	}
	return audio, nil
}
