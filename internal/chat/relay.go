// Package chat implements the streaming relay between the reasoning engine
// and connected clients, plus the websocket chat endpoint.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/venturelab/sprint-copilot/internal/domain"
	"github.com/venturelab/sprint-copilot/internal/engine"
	"github.com/venturelab/sprint-copilot/internal/session"
	"github.com/venturelab/sprint-copilot/internal/shared"
)

// Sink receives a turn's client-visible output. Exactly one of WriteDone or
// WriteError terminates a turn; WriteIncrement calls arrive in generation
// order before the terminal call.
type Sink interface {
	WriteIncrement(ctx context.Context, text string) error
	WriteDone(ctx context.Context) error
	WriteError(ctx context.Context, msg string) error
}

// Relay drives one reasoning-engine invocation per inbound user message and
// forwards generated text increments to the client connection.
type Relay struct {
	registry    *session.Registry
	eng         engine.Engine
	turnTimeout time.Duration
	bufferSize  int
	transcript  *Transcript
}

// NewRelay creates a relay. transcript may be nil to disable logging.
func NewRelay(registry *session.Registry, eng engine.Engine, turnTimeout time.Duration, bufferSize int, transcript *Transcript) *Relay {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Relay{
		registry:    registry,
		eng:         eng,
		turnTimeout: turnTimeout,
		bufferSize:  bufferSize,
		transcript:  transcript,
	}
}

type producerResult struct {
	err error
}

// RunTurn executes one streaming turn on the session. The engine runs in
// its own goroutine and hands events to this one over a bounded channel;
// this goroutine forwards increments to the sink and applies phase
// completion signals. ctx is the client connection's context: cancellation
// stops forwarding and cancels the engine invocation, and no terminal event
// is written to a dead transport.
func (r *Relay) RunTurn(ctx context.Context, sessionID, message string, sink Sink) error {
	h, err := r.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := h.BeginTurn(); err != nil {
		return err
	}
	defer h.EndTurn()

	snap := h.Snapshot()
	req := engine.TurnRequest{
		SessionID:    snap.ID,
		UserID:       snap.UserID,
		SprintItemID: snap.SprintItemID,
		Message:      message,
		Phase:        snap.Phase,
		Summaries:    snap.PhaseSummaries,
	}

	r.transcript.Log(TranscriptEvent{
		UserID:    snap.UserID,
		SessionID: snap.ID,
		Role:      "user",
		Phase:     string(snap.Phase),
		Content:   message,
	})

	turnCtx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()

	events := make(chan *engine.Event, r.bufferSize)
	done := make(chan producerResult, 1)

	go func() {
		defer close(events)
		for ev, err := range r.eng.RunTurn(turnCtx, req) {
			if err != nil {
				done <- producerResult{err: err}
				return
			}
			select {
			case events <- ev:
			case <-turnCtx.Done():
				done <- producerResult{err: shared.Engine("turn cancelled", turnCtx.Err())}
				return
			}
		}
		done <- producerResult{}
	}()

	var assistant strings.Builder
	forwardErr := r.forward(turnCtx, h, events, sink, &assistant)

	res := <-done
	r.logAssistant(snap, assistant.String(), res.err)

	if forwardErr != nil {
		// Transport is gone; the cancel above stops the engine server-side.
		slog.Info("Turn forwarding stopped", "session_id", snap.ID, "error", forwardErr)
		return forwardErr
	}
	if res.err != nil {
		slog.Error("Engine turn failed", "session_id", snap.ID, "error", res.err)
		if werr := sink.WriteError(ctx, "Something went wrong. Please try again."); werr != nil {
			slog.Debug("Failed to write terminal error event", "session_id", snap.ID, "error", werr)
		}
		return res.err
	}
	if err := sink.WriteDone(ctx); err != nil {
		slog.Debug("Failed to write terminal done event", "session_id", snap.ID, "error", err)
		return err
	}
	return nil
}

// forward consumes engine events until the channel closes or a sink write
// fails. On a write failure it cancels nothing itself; the caller's context
// teardown stops the producer. The channel is drained so the producer never
// blocks on a departed consumer.
func (r *Relay) forward(ctx context.Context, h *session.Handle, events <-chan *engine.Event, sink Sink, assistant *strings.Builder) error {
	var writeErr error
	for ev := range events {
		if writeErr != nil {
			continue // drain
		}
		switch ev.Type {
		case engine.EventDelta:
			assistant.WriteString(ev.Text)
			if err := sink.WriteIncrement(ctx, ev.Text); err != nil {
				writeErr = err
			}
		case engine.EventPhaseComplete:
			r.applyPhaseComplete(h, ev.Summary)
		case engine.EventToolCall:
			slog.Debug("Tool call completed", "session_id", h.ID(), "tool", ev.Tool)
		}
	}
	return writeErr
}

// applyPhaseComplete advances the session to the next phase. An illegal
// signal (e.g. the engine completing an already-completed workflow) is
// logged and ignored; the session state is left unchanged.
func (r *Relay) applyPhaseComplete(h *session.Handle, summary string) {
	err := h.WithSession(func(s *domain.Session) error {
		return s.CompletePhase(summary)
	})
	if err != nil {
		slog.Warn("Rejected phase completion signal", "session_id", h.ID(), "error", err)
		return
	}
	slog.Info("Phase completed", "session_id", h.ID(), "new_phase", h.Snapshot().Phase)
}

func (r *Relay) logAssistant(snap domain.Session, content string, engineErr error) {
	if content == "" && engineErr == nil {
		return
	}
	ev := TranscriptEvent{
		UserID:    snap.UserID,
		SessionID: snap.ID,
		Role:      "assistant",
		Phase:     string(snap.Phase),
		Content:   content,
	}
	if engineErr != nil {
		ev.Error = engineErr.Error()
	}
	r.transcript.Log(ev)
}
