package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/venturelab/sprint-copilot/internal/session"
	"github.com/venturelab/sprint-copilot/internal/shared"
)

// streamEndSentinel terminates every successful turn on the wire.
const streamEndSentinel = "--streaming ended--"

// chatFrame is one inbound client message on the chat websocket.
type chatFrame struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SprintItemID string `json:"sprint_item_id"`
}

// WebSocketHandler serves the bidirectional chat channel: the client sends
// chat frames, the server streams back raw text increments terminated by
// the completion sentinel (or a single error message) per turn.
type WebSocketHandler struct {
	registry      *session.Registry
	relay         *Relay
	limiter       *RateLimiter
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates the chat websocket handler.
func NewWebSocketHandler(registry *session.Registry, relay *Relay, limiter *RateLimiter, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		registry:      registry,
		relay:         relay,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsSink adapts the websocket connection to the relay's Sink.
type wsSink struct {
	ws *websocket.Conn
}

func (s *wsSink) WriteIncrement(ctx context.Context, text string) error {
	return s.ws.Write(ctx, websocket.MessageText, []byte(text))
}

func (s *wsSink) WriteDone(ctx context.Context) error {
	return s.ws.Write(ctx, websocket.MessageText, []byte(streamEndSentinel))
}

func (s *wsSink) WriteError(ctx context.Context, msg string) error {
	return s.ws.Write(ctx, websocket.MessageText, []byte(msg))
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept chat WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close chat websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("Chat WebSocket connected", "ip", r.RemoteAddr)
	h.messageLoop(ctx, ws)
	slog.Info("Chat WebSocket disconnected", "ip", r.RemoteAddr)
}

// messageLoop reads chat frames until the client disconnects. Turns run
// inline: the read loop does not accept the next frame until the current
// turn's terminal event is written, so one connection never has two turns
// in flight.
func (h *WebSocketHandler) messageLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, raw, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Chat WebSocket closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("Chat WebSocket read error", "error", err)
			}
			return
		}

		var frame chatFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.writeText(ctx, ws, "Error parsing message. Please try again.")
			continue
		}
		if frame.UserID == "" || frame.SessionID == "" || frame.Message == "" || frame.SprintItemID == "" {
			h.writeText(ctx, ws, "Missing required fields. Please try again.")
			continue
		}

		if !h.limiter.Allow(frame.UserID) {
			slog.Warn("Chat rate limit exceeded", "user_id", frame.UserID, "session_id", frame.SessionID)
			h.writeText(ctx, ws, "Rate limit exceeded. Please slow down.")
			continue
		}

		// Sessions are initialized lazily on the first message for an
		// unknown id.
		if _, created, err := h.registry.GetOrCreate(frame.SessionID, frame.UserID, frame.SprintItemID); err != nil {
			slog.Error("Failed to initialize session", "session_id", frame.SessionID, "error", err)
			h.writeText(ctx, ws, "Error initializing session. Please try again.")
			continue
		} else if created {
			slog.Info("Session initialized from chat", "session_id", frame.SessionID, "user_id", frame.UserID)
		}

		h.runTurn(ctx, ws, frame)
	}
}

func (h *WebSocketHandler) runTurn(ctx context.Context, ws *websocket.Conn, frame chatFrame) {
	err := h.relay.RunTurn(ctx, frame.SessionID, frame.Message, &wsSink{ws: ws})
	if err == nil {
		return
	}

	// Busy and not-found happen before any streaming starts, so the client
	// has not seen a terminal event yet. Engine and transport failures have
	// already been surfaced (or the transport is gone).
	switch shared.KindOf(err) {
	case shared.KindBusy:
		h.writeText(ctx, ws, "A response is already in progress for this session.")
	case shared.KindNotFound:
		h.writeText(ctx, ws, "Session not found. Please initialize chat first.")
	}
}

func (h *WebSocketHandler) writeText(ctx context.Context, ws *websocket.Conn, msg string) {
	if err := ws.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		slog.Debug("Failed to write chat message", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Chat WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
