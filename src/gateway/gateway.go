// Package gateway is the stateless facade between conversation state and the
// AI provider. It validates inputs, shapes requests and classifies failures.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/elee1766/servoskull/src/media"
	"github.com/elee1766/servoskull/src/session"
	"github.com/elee1766/servoskull/src/upstream"
)

const defaultAudioFilename = "audio.webm"

// DefaultSystemPrompt is used when none is configured.
const DefaultSystemPrompt = "You are a helpful assistant that can see through the user's webcam and hear them speak. Answer concisely."

// Config holds gateway settings.
type Config struct {
	SystemPrompt string
	Logger       *slog.Logger
}

// Gateway turns transcripts, images and audio into provider calls.
type Gateway struct {
	client       upstream.Client
	systemPrompt string
	logger       *slog.Logger
}

// New creates a gateway over client.
func New(client upstream.Client, cfg Config) *Gateway {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:       client,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger.With("component", "ai_gateway"),
	}
}

// CompleteChat returns the assistant reply to transcript, optionally looking
// at image, given the recent history.
func (g *Gateway) CompleteChat(ctx context.Context, transcript, image string, history []session.Turn) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", &ValidationError{Field: "text", Message: "must not be empty"}
	}

	req := upstream.MultimodalRequest{
		Transcript:      transcript,
		PreviousContext: BuildContext(g.systemPrompt, history),
	}
	if image != "" {
		payload, err := media.Decode(image)
		if err != nil {
			return "", &ValidationError{Field: "image", Message: err.Error()}
		}
		if !payload.IsImage() {
			return "", &ValidationError{Field: "image", Message: "unsupported content type " + payload.MIMEType}
		}
		req.ImageData = payload.DataURL()
	}

	g.logger.Debug("completing chat", "has_image", req.HasImage(), "history_turns", len(history))

	reply, err := g.client.ProcessMultimodal(ctx, req)
	if err != nil {
		return "", &UpstreamError{Op: OpCompleteChat, Err: err}
	}
	return reply, nil
}

// Transcribe decodes base64 audio and returns its transcript. A silent
// recording yields an empty string and no error.
func (g *Gateway) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	payload, err := media.Decode(audioBase64)
	if err != nil {
		if errors.Is(err, media.ErrEmptyPayload) {
			return "", &ValidationError{Field: "audio", Message: "must not be empty"}
		}
		return "", &ValidationError{Field: "audio", Message: err.Error()}
	}

	if payload.IsImage() {
		return "", &ValidationError{Field: "audio", Message: "unsupported content type " + payload.MIMEType}
	}

	filename := defaultAudioFilename
	if payload.IsAudio() {
		filename = payload.Filename("audio", defaultAudioFilename)
	}
	g.logger.Debug("transcribing audio", "bytes", len(payload.Data), "mime_type", payload.MIMEType, "filename", filename)

	text, err := g.client.TranscribeAudio(ctx, payload.Data, filename)
	if err != nil {
		return "", &UpstreamError{Op: OpTranscribe, Err: err}
	}
	return strings.TrimSpace(text), nil
}

// SynthesizeSpeech returns encoded audio for text.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Message: "must not be empty"}
	}

	audio, err := g.client.GenerateSpeech(ctx, text)
	if err != nil {
		return nil, &UpstreamError{Op: OpSynthesizeSpeech, Err: err}
	}
	return audio, nil
}
