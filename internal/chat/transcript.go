package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/venturelab/sprint-copilot/internal/config"
)

// TranscriptEvent is one NDJSON record of a chat turn.
type TranscriptEvent struct {
	Timestamp string `json:"ts"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Phase     string `json:"phase,omitempty"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
}

// Transcript writes chat transcripts as per-session NDJSON files under
// dir/<user_id>/<session_id>.ndjson. Events are queued and written by a
// background worker so logging never blocks a streaming turn; when the
// queue is full the event is dropped with a warning.
type Transcript struct {
	dir     string
	queue   chan TranscriptEvent
	done    chan struct{}
	wg      sync.WaitGroup
	dropped int
	mu      sync.Mutex
}

// NewTranscript creates a transcript logger, or nil when disabled. A nil
// *Transcript is safe to use; Log becomes a no-op.
func NewTranscript(cfg config.TranscriptLogConfig) (*Transcript, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	t := &Transcript{
		dir:   cfg.Dir,
		queue: make(chan TranscriptEvent, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.worker()
	return t, nil
}

// Log queues an event for writing. Safe on a nil receiver.
func (t *Transcript) Log(ev TranscriptEvent) {
	if t == nil {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case t.queue <- ev:
	default:
		t.mu.Lock()
		t.dropped++
		n := t.dropped
		t.mu.Unlock()
		slog.Warn("Transcript queue full, dropping event", "session_id", ev.SessionID, "dropped_total", n)
	}
}

// Close drains the queue and stops the worker. Safe on a nil receiver.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	close(t.done)
	t.wg.Wait()
	return nil
}

func (t *Transcript) worker() {
	defer t.wg.Done()
	for {
		select {
		case ev := <-t.queue:
			t.append(ev)
		case <-t.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case ev := <-t.queue:
					t.append(ev)
				default:
					return
				}
			}
		}
	}
}

func (t *Transcript) append(ev TranscriptEvent) {
	userDir := filepath.Join(t.dir, sanitizePathComponent(ev.UserID))
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		slog.Warn("Failed to create transcript directory", "dir", userDir, "error", err)
		return
	}
	path := filepath.Join(userDir, sanitizePathComponent(ev.SessionID)+".ndjson")

	line, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("Failed to marshal transcript event", "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("Failed to open transcript file", "path", path, "error", err)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Debug("Failed to close transcript file", "path", path, "error", cerr)
		}
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Warn("Failed to write transcript event", "path", path, "error", err)
	}
}

// sanitizePathComponent keeps client-supplied ids from escaping the
// transcript directory.
func sanitizePathComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
