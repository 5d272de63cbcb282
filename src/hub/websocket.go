package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when pushing to a connection that is gone.
var ErrConnectionClosed = errors.New("connection closed")

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 1 << 20
	eventBuffer            = 16
)

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Registry tracks live websocket connections and implements Sink.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*wsConn
	logger *slog.Logger
}

var _ Sink = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*wsConn),
		logger: logger.With("component", "ws_registry"),
	}
}

// Add registers conn under id.
func (r *Registry) Add(id string, conn *websocket.Conn) {
	r.mu.Lock()
	r.conns[id] = &wsConn{conn: conn}
	r.mu.Unlock()
}

// Remove unregisters id and closes its connection.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll sends a going-away close frame to every connection and closes it.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*wsConn)
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for id, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
		r.logger.Debug("closed connection", "connection_id", id)
	}
}

// Push writes msg to the connection. Writes to one connection are serialized.
func (r *Registry) Push(ctx context.Context, connID string, msg Outbound) error {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", msg.Type, err)
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		r.logger.Warn("ws send failed", "connection_id", connID, "error", err)
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

// WebSocketConfig holds transport settings.
type WebSocketConfig struct {
	// AllowedOrigins lists accepted Origin headers. Empty allows any.
	AllowedOrigins  []string
	MaxMessageBytes int64
	Logger          *slog.Logger
}

// WebSocketHandler upgrades HTTP requests and feeds frames to the hub.
type WebSocketHandler struct {
	hub             *Hub
	registry        *Registry
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	logger          *slog.Logger

	active sync.WaitGroup
}

// NewWebSocketHandler creates the transport for h. registry must be the sink
// h was built with.
func NewWebSocketHandler(h *Hub, registry *Registry, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:      h,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
		maxMessageBytes: cfg.MaxMessageBytes,
		logger:          logger.With("component", "ws_handler"),
	}
}

// ServeHTTP runs one connection until the client goes away.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	h.active.Add(1)
	defer h.active.Done()
	conn.SetReadLimit(h.maxMessageBytes)

	connID := uuid.NewString()
	h.registry.Add(connID, conn)
	defer h.registry.Remove(connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = h.hub.Handle(ctx, Event{Type: EventConnect, ConnectionID: connID})

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		// a read failure means the client is gone; abort in-flight calls
		defer cancel()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read failed", "connection_id", connID, "error", err)
				}
				return
			}
			ev := ParseEvent(connID, data)
			if msgType != websocket.TextMessage {
				ev = Event{Type: EventInvalid, ConnectionID: connID, Err: errors.New("binary frames are not supported")}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := h.hub.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("connection loop ended", "connection_id", connID, "error", err)
	}

	_ = h.hub.Handle(context.WithoutCancel(ctx), Event{Type: EventDisconnect, ConnectionID: connID})
}

// Wait blocks until every connection handler has returned.
func (h *WebSocketHandler) Wait() {
	h.active.Wait()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		set[normalizeOrigin(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(o string) string {
	o = strings.TrimRight(strings.TrimSpace(o), "/")
	if u, err := url.Parse(o); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.ToLower(u.Scheme + "://" + u.Host)
	}
	return strings.ToLower(o)
}
