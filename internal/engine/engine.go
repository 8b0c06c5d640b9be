// Package engine defines the reasoning-engine capability boundary and its
// OpenAI-compatible client implementation.
package engine

import (
	"context"
	"iter"

	"github.com/venturelab/sprint-copilot/internal/domain"
)

// EventType categorizes engine events.
type EventType string

const (
	// EventDelta carries one text increment of the primary response.
	EventDelta EventType = "delta"
	// EventToolCall reports a tool invocation that was executed.
	EventToolCall EventType = "tool_call"
	// EventPhaseComplete signals that the engine considers the current
	// phase finished, carrying the phase summary.
	EventPhaseComplete EventType = "phase_complete"
)

// Event is one engine-produced event within a streaming turn.
type Event struct {
	Type    EventType
	Text    string
	Tool    string
	Summary string
}

// TurnRequest carries everything the engine needs for one invocation.
type TurnRequest struct {
	SessionID    string
	UserID       string
	SprintItemID string
	Message      string
	Phase        domain.Phase
	Summaries    map[domain.Phase]string
}

// Engine produces a sequence of events for one user message. Exactly one
// invocation runs per inbound message; increments are yielded in generation
// order and iteration stops when the caller stops consuming.
type Engine interface {
	RunTurn(ctx context.Context, req TurnRequest) iter.Seq2[*Event, error]
}
