package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/venturelab/sprint-copilot/internal/domain"
	"github.com/venturelab/sprint-copilot/internal/session"
	"github.com/venturelab/sprint-copilot/internal/tools"
)

// maxInitBodySize bounds the chat init request body (64KB).
const maxInitBodySize = 64 << 10

// Handler serves the resource and session lifecycle endpoints. All document
// reads pass through the tool dispatcher; the handler holds no document
// shape knowledge.
type Handler struct {
	dispatcher *tools.Dispatcher
	registry   *session.Registry
}

// NewHandler creates the API handler.
func NewHandler(dispatcher *tools.Dispatcher, registry *session.Registry) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   registry,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sprints", h.handleListSprints)
		r.Get("/sprints/{itemID}", h.handleGetSprintItem)
		r.Get("/canvas/bmc", h.handleGetBMC)
		r.Get("/canvas/vpc", h.handleGetVPC)
		r.Get("/canvas/segments", h.handleGetSegments)
		r.Post("/chat/init", h.handleChatInit)
		r.Delete("/chat/sessions/{sessionID}", h.handleRemoveSession)
	})
}

func (h *Handler) handleListSprints(w http.ResponseWriter, r *http.Request) {
	data, err := h.dispatcher.ListSprintItems()
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, data)
}

func (h *Handler) handleGetSprintItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	item, err := h.dispatcher.GetSprintItem(itemID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, item)
}

func (h *Handler) handleGetBMC(w http.ResponseWriter, r *http.Request) {
	h.serveCanvas(w, tools.CanvasBMC)
}

func (h *Handler) handleGetVPC(w http.ResponseWriter, r *http.Request) {
	h.serveCanvas(w, tools.CanvasVPC)
}

func (h *Handler) serveCanvas(w http.ResponseWriter, kind string) {
	data, err := h.dispatcher.GetCanvas(kind)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, data)
}

func (h *Handler) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	data, err := h.dispatcher.GetSegments()
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, data)
}

type chatInitRequest struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	SprintItemID string `json:"sprint_item_id"`
}

// handleChatInit creates a chat session in the design phase. The call is
// idempotent per session id: re-initializing an active session with the
// same sprint item returns its current phase. A different sprint item is
// rejected unless the session's workflow is completed, in which case it
// resets to a fresh design cycle for the new item.
func (h *Handler) handleChatInit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxInitBodySize)

	var req chatInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SprintItemID == "" {
		Error(w, http.StatusBadRequest, "sprint_item_id is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "default_user"
	}

	hdl, created, err := h.registry.GetOrCreate(req.SessionID, req.UserID, req.SprintItemID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}

	snap := hdl.Snapshot()
	if !created && snap.SprintItemID != req.SprintItemID {
		err := hdl.WithSession(func(s *domain.Session) error {
			return s.Reset(req.SprintItemID)
		})
		if err != nil {
			Error(w, http.StatusConflict, "session is bound to a different sprint item")
			return
		}
		slog.Info("Session reset for new sprint item", "session_id", snap.ID, "sprint_item_id", req.SprintItemID)
		snap = hdl.Snapshot()
	}

	slog.Info("Chat session initialized", "session_id", snap.ID, "sprint_item_id", snap.SprintItemID, "created", created)
	JSON(w, http.StatusOK, map[string]any{
		"message":        "Chat session initialized successfully",
		"session_id":     snap.ID,
		"sprint_item_id": snap.SprintItemID,
		"phase":          string(snap.Phase),
	})
}

func (h *Handler) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.registry.Remove(sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "removed", "session_id": sessionID})
}
