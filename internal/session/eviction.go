package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/venturelab/sprint-copilot/internal/domain"
)

const evictionInterval = 5 * time.Minute

// StartEvictionWorker runs a background goroutine that periodically sweeps
// for sessions idle longer than ttl and removes them. Sessions in an
// in-memory map would otherwise accumulate for the process lifetime.
func (r *Registry) StartEvictionWorker(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(evictionInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session eviction worker started", "interval", evictionInterval, "idle_ttl", ttl)

		for {
			select {
			case <-ticker.C:
				r.evictIdle(ttl)
			case <-ctx.Done():
				slog.Info("Session eviction worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// evictIdle removes sessions idle past ttl. A session whose turn lock is
// held is never evicted: an in-flight turn counts as activity.
func (r *Registry) evictIdle(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, h := range r.sessions {
		if !h.turnMu.TryLock() {
			continue
		}
		var idle time.Duration
		_ = h.WithSession(func(s *domain.Session) error {
			idle = s.IdleFor()
			return nil
		})
		h.turnMu.Unlock()

		if idle > ttl {
			delete(r.sessions, id)
			evicted++
			slog.Info("Evicted idle session", "session_id", id, "idle", idle)
		}
	}

	if evicted > 0 {
		slog.Info("Session eviction sweep completed", "evicted", evicted, "remaining", len(r.sessions))
	}
}
