// Package hub relays client events to the AI gateway and pushes results back
// over the same connection.
package hub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/elee1766/servoskull/src/gateway"
	"github.com/elee1766/servoskull/src/resilience"
	"github.com/elee1766/servoskull/src/session"
)

// Error codes sent in receiveError frames.
const (
	CodeInvalidEvent            = "INVALID_EVENT"
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeMessageProcessingFailed = "MESSAGE_PROCESSING_FAILED"
	CodeAudioProcessingFailed   = "AUDIO_PROCESSING_FAILED"
	CodeSpeechSynthesisFailed   = "SPEECH_SYNTHESIS_FAILED"
	CodeUpstreamUnavailable     = "UPSTREAM_UNAVAILABLE"
)

var errorMessages = map[string]string{
	CodeInvalidEvent:            "The event could not be understood",
	CodeInvalidRequest:          "The request was invalid",
	CodeMessageProcessingFailed: "Failed to process message",
	CodeAudioProcessingFailed:   "Failed to process audio",
	CodeSpeechSynthesisFailed:   "Failed to synthesize speech",
	CodeUpstreamUnavailable:     "The AI service is temporarily unavailable",
}

// Gateway is the AI surface the hub needs.
type Gateway interface {
	CompleteChat(ctx context.Context, transcript, image string, history []session.Turn) (string, error)
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Sink delivers outbound frames to a connection.
type Sink interface {
	Push(ctx context.Context, connID string, msg Outbound) error
}

// Archiver persists a session before it is discarded.
type Archiver interface {
	ArchiveSession(ctx context.Context, connID string, s *session.Session) error
}

// Config holds hub settings.
type Config struct {
	// HistoryWindow is how many recent turns accompany each request.
	HistoryWindow int
	// SpeakReplies adds synthesized audio to text message replies.
	SpeakReplies bool
	// DetailedErrors includes the error text in receiveError frames.
	DetailedErrors bool
	Logger         *slog.Logger
}

// Hub processes connection events.
type Hub struct {
	sessions *session.Manager
	gateway  Gateway
	sink     Sink
	archiver Archiver
	cfg      Config
	logger   *slog.Logger
}

// New creates a hub.
func New(sessions *session.Manager, gw Gateway, sink Sink, cfg Config) *Hub {
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = session.DefaultRecentCount
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: sessions,
		gateway:  gw,
		sink:     sink,
		cfg:      cfg,
		logger:   logger.With("component", "hub"),
	}
}

// SetArchiver enables archiving of sessions on disconnect.
func (h *Hub) SetArchiver(a Archiver) {
	h.archiver = a
}

// Run handles events in arrival order until events is closed or ctx is done.
func (h *Hub) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := h.Handle(ctx, ev); err != nil {
				h.logger.Warn("failed to deliver frame", "connection_id", ev.ConnectionID, "event", ev.Type.String(), "error", err)
			}
		}
	}
}

// Handle processes a single event. Processing failures are reported to the
// client as receiveError; the returned error is only a delivery failure.
func (h *Hub) Handle(ctx context.Context, ev Event) error {
	logger := h.logger.With("connection_id", ev.ConnectionID, "event", ev.Type.String())

	switch ev.Type {
	case EventConnect:
		s := h.sessions.GetOrCreate(ev.ConnectionID)
		logger.Info("client connected", "session_id", s.ID())
		return nil
	case EventDisconnect:
		h.disconnect(ctx, ev.ConnectionID)
		logger.Info("client disconnected")
		return nil
	case EventMessage:
		return h.handleMessage(ctx, ev)
	case EventAudio:
		return h.handleAudio(ctx, ev)
	default:
		logger.Warn("invalid event", "error", ev.Err)
		return h.fail(ctx, ev.ConnectionID, CodeInvalidEvent, ev.Err)
	}
}

func (h *Hub) disconnect(ctx context.Context, connID string) {
	if h.archiver != nil {
		if s, ok := h.sessions.Get(connID); ok && s.Len() > 0 {
			if err := h.archiver.ArchiveSession(ctx, connID, s); err != nil {
				h.logger.Error("failed to archive session", "connection_id", connID, "session_id", s.ID(), "error", err)
			}
		}
	}
	h.sessions.Remove(connID)
}

func (h *Hub) handleMessage(ctx context.Context, ev Event) error {
	history := h.sessions.RecentMessages(ev.ConnectionID, h.cfg.HistoryWindow)

	reply, err := h.gateway.CompleteChat(ctx, ev.Text, ev.Image, history)
	if err != nil {
		return h.fail(ctx, ev.ConnectionID, CodeMessageProcessingFailed, err)
	}

	var audio []byte
	if h.cfg.SpeakReplies {
		audio, err = h.gateway.SynthesizeSpeech(ctx, reply)
		if err != nil {
			return h.fail(ctx, ev.ConnectionID, CodeSpeechSynthesisFailed, err)
		}
	}

	h.recordExchange(ev.ConnectionID, ev.Text, ev.Image, reply)
	return h.sink.Push(ctx, ev.ConnectionID, Outbound{Type: TypeReceiveResponse, Text: reply, Audio: audio})
}

func (h *Hub) handleAudio(ctx context.Context, ev Event) error {
	transcript, err := h.gateway.Transcribe(ctx, ev.Audio)
	if err != nil {
		return h.fail(ctx, ev.ConnectionID, CodeAudioProcessingFailed, err)
	}

	if err := h.sink.Push(ctx, ev.ConnectionID, Outbound{Type: TypeReceiveTranscription, Text: transcript}); err != nil {
		return err
	}
	if transcript == "" {
		h.logger.Debug("empty transcript, skipping reply", "connection_id", ev.ConnectionID)
		return nil
	}

	history := h.sessions.RecentMessages(ev.ConnectionID, h.cfg.HistoryWindow)
	reply, err := h.gateway.CompleteChat(ctx, transcript, ev.Image, history)
	if err != nil {
		return h.fail(ctx, ev.ConnectionID, CodeAudioProcessingFailed, err)
	}

	audio, err := h.gateway.SynthesizeSpeech(ctx, reply)
	if err != nil {
		return h.fail(ctx, ev.ConnectionID, CodeSpeechSynthesisFailed, err)
	}

	h.recordExchange(ev.ConnectionID, transcript, ev.Image, reply)
	return h.sink.Push(ctx, ev.ConnectionID, Outbound{Type: TypeReceiveResponse, Text: reply, Audio: audio})
}

// recordExchange appends the user and assistant turns together, only once the
// whole exchange has succeeded.
func (h *Hub) recordExchange(connID, userText, image, reply string) {
	h.sessions.AppendTurns(connID,
		session.Turn{Role: session.RoleUser, Content: userText, ImageData: image},
		session.Turn{Role: session.RoleAssistant, Content: reply},
	)
}

func (h *Hub) fail(ctx context.Context, connID, code string, err error) error {
	code = classify(code, err)
	h.logger.Error("event processing failed", "connection_id", connID, "code", code, "error", err)

	msg := Outbound{
		Type:    TypeReceiveError,
		Code:    code,
		Message: errorMessages[code],
	}
	if h.cfg.DetailedErrors && err != nil {
		msg.Detail = err.Error()
	}
	return h.sink.Push(ctx, connID, msg)
}

// classify narrows the fallback code for validation failures and an open
// circuit.
func classify(fallback string, err error) string {
	var vErr *gateway.ValidationError
	switch {
	case errors.As(err, &vErr):
		return CodeInvalidRequest
	case errors.Is(err, resilience.ErrCircuitOpen):
		return CodeUpstreamUnavailable
	}
	return fallback
}
