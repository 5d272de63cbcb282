// Package app wires the session manager, AI gateway, hub and archive into an
// HTTP handler.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/elee1766/servoskull/src/config"
	"github.com/elee1766/servoskull/src/gateway"
	"github.com/elee1766/servoskull/src/hub"
	"github.com/elee1766/servoskull/src/resilience"
	"github.com/elee1766/servoskull/src/session"
	"github.com/elee1766/servoskull/src/storage"
	"github.com/elee1766/servoskull/src/upstream"
)

// App represents the main application with all services
type App struct {
	Config   *config.Config
	Sessions *session.Manager
	Upstream *upstream.Resilient
	Gateway  *gateway.Gateway
	Hub      *hub.Hub
	Registry *hub.Registry
	Store    *storage.DB
	Logger   *slog.Logger

	ws *hub.WebSocketHandler
}

// Option customizes New.
type Option func(*options)

type options struct {
	client upstream.Client
}

// WithUpstreamClient replaces the OpenAI client, e.g. with a fake in tests.
func WithUpstreamClient(c upstream.Client) Option {
	return func(o *options) { o.client = c }
}

// New creates a new App instance with all services initialized
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		oai, err := upstream.NewOpenAIClient(upstream.Config{
			APIKey:             cfg.API.APIKey,
			BaseURL:            cfg.API.BaseURL,
			Logger:             logger,
			Timeout:            cfg.API.Timeout,
			AssistantModel:     cfg.Assistant.AssistantModel,
			TranscriptionModel: cfg.Assistant.TranscriptionModel,
			VoiceModel:         cfg.Assistant.VoiceModel,
			Voice:              cfg.Assistant.Voice,
			VoicePrompt:        cfg.Assistant.VoicePrompt,
			MaxTokens:          cfg.Assistant.MaxTokens,
			Temperature:        cfg.Assistant.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream client: %w", err)
		}
		client = oai
	}

	resilient := upstream.NewResilient(client, policyConfig(cfg.API, logger))

	sessions := session.NewManager(
		session.WithMaxTurns(cfg.Session.MaxTurns),
		session.WithLogger(logger),
	)

	gw := gateway.New(resilient, gateway.Config{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		Logger:       logger,
	})

	registry := hub.NewRegistry(logger)
	h := hub.New(sessions, gw, registry, hub.Config{
		HistoryWindow:  cfg.Session.HistoryWindow,
		SpeakReplies:   cfg.Assistant.SpeakReplies,
		DetailedErrors: cfg.Server.DetailedErrors,
		Logger:         logger,
	})

	a := &App{
		Config:   cfg,
		Sessions: sessions,
		Upstream: resilient,
		Gateway:  gw,
		Hub:      h,
		Registry: registry,
		Logger:   logger,
		ws: hub.NewWebSocketHandler(h, registry, hub.WebSocketConfig{
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			MaxMessageBytes: cfg.Server.MaxMessageBytes,
			Logger:          logger,
		}),
	}

	if cfg.Storage.Enabled {
		store, err := storage.Open(ctx, cfg.Storage.DatabasePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.Store = store
		h.SetArchiver(store)
	}

	return a, nil
}

func policyConfig(api config.APIConfig, logger *slog.Logger) resilience.Config {
	pc := resilience.Config{
		Name:              "upstream",
		MaxRetries:        api.Retry.MaxRetries,
		InitialDelay:      api.Retry.InitialDelay,
		MaxDelay:          api.Retry.MaxDelay,
		Multiplier:        api.Retry.Multiplier,
		RequestsPerMinute: api.RateLimit.RequestsPerMinute,
		BurstSize:         api.RateLimit.BurstSize,
		Retryable:         upstream.IsRetryable,
		Logger:            logger,
	}
	if api.CircuitBreaker.Enabled {
		pc.FailureThreshold = api.CircuitBreaker.FailureThreshold
		pc.OpenTimeout = api.CircuitBreaker.OpenTimeout
	}
	return pc
}

// Handler returns the HTTP surface: the websocket hub and a health probe.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.Config.Server.HubPath, a.ws)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	return mux
}

type healthResponse struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Breaker     string `json:"breaker"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Sessions:    a.Sessions.Count(),
		Connections: a.Registry.Count(),
		Breaker:     a.Upstream.State(),
	}
	status := http.StatusOK
	if resp.Breaker == "open" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.Logger.Warn("failed to write health response", "error", err)
	}
}

// Shutdown disconnects every client, waits for their handlers to archive
// their sessions (bounded by ctx), then closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.Registry.CloseAll()

	done := make(chan struct{})
	go func() {
		a.ws.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Logger.Warn("timed out waiting for connections to finish", "error", ctx.Err())
	}

	return a.Close()
}

// Close closes all resources held by the app
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
