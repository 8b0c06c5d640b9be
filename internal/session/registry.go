// Package session provides the process-wide registry of active
// conversational sessions.
package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/venturelab/sprint-copilot/internal/domain"
	"github.com/venturelab/sprint-copilot/internal/shared"
)

// Handle wraps one session with its two locks. turnMu serializes streaming
// turns: a session processes at most one turn at a time. mu guards the
// session fields themselves so registry readers and the in-flight turn see
// consistent state.
type Handle struct {
	turnMu sync.Mutex
	mu     sync.Mutex
	sess   *domain.Session
}

// BeginTurn claims the session for one streaming turn. It fails with a Busy
// error when another turn is already in flight.
func (h *Handle) BeginTurn() error {
	if !h.turnMu.TryLock() {
		return shared.Busy("a turn is already in flight on session %q", h.ID())
	}
	h.touch()
	return nil
}

// EndTurn releases the turn claim. Must be called exactly once per
// successful BeginTurn.
func (h *Handle) EndTurn() {
	h.touch()
	h.turnMu.Unlock()
}

func (h *Handle) touch() {
	h.mu.Lock()
	h.sess.Touch()
	h.mu.Unlock()
}

// ID returns the session id.
func (h *Handle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess.ID
}

// Snapshot returns a copy of the session state. The summary and preference
// maps are copied so callers cannot race with later mutations.
func (h *Handle) Snapshot() domain.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := *h.sess
	snap.PhaseSummaries = make(map[domain.Phase]string, len(h.sess.PhaseSummaries))
	for k, v := range h.sess.PhaseSummaries {
		snap.PhaseSummaries[k] = v
	}
	snap.Preferences = make(map[string]string, len(h.sess.Preferences))
	for k, v := range h.sess.Preferences {
		snap.Preferences[k] = v
	}
	return snap
}

// WithSession runs fn with exclusive access to the session fields.
func (h *Handle) WithSession(fn func(s *domain.Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.sess)
}

// Registry is the process-wide table of active sessions. It owns session
// creation, lookup, and teardown; sessions live until explicit removal,
// idle eviction, or process shutdown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Handle),
	}
}

// Create registers a new session. An empty sessionID gets a generated uuid.
// Creating over an active id fails.
func (r *Registry) Create(sessionID, userID, sprintItemID string) (*Handle, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, shared.Validation("session %q already exists", sessionID)
	}

	h := &Handle{sess: domain.NewSession(sessionID, userID, sprintItemID)}
	r.sessions[sessionID] = h
	slog.Info("Session created", "session_id", sessionID, "user_id", userID, "sprint_item_id", sprintItemID)
	return h, nil
}

// Get returns the handle for an active session.
func (r *Registry) Get(sessionID string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[sessionID]
	if !ok {
		return nil, shared.NotFound("session %q not found", sessionID)
	}
	return h, nil
}

// GetOrCreate returns the active session or creates it in the design phase.
// The second return value reports whether a new session was created.
func (r *Registry) GetOrCreate(sessionID, userID, sprintItemID string) (*Handle, bool, error) {
	if sessionID != "" {
		if h, err := r.Get(sessionID); err == nil {
			return h, false, nil
		}
	}
	h, err := r.Create(sessionID, userID, sprintItemID)
	if err != nil {
		// Lost a create race; the session exists now.
		if h2, gerr := r.Get(sessionID); gerr == nil {
			return h2, false, nil
		}
		return nil, false, err
	}
	return h, true, nil
}

// Remove tears down a session. Removing an unknown id is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		slog.Info("Session removed", "session_id", sessionID)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
