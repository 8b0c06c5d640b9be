package domain

import (
	"time"
)

// Session represents one ongoing coaching conversation. All mutation goes
// through the methods below; callers are expected to hold the registry's
// per-session lock while calling them.
type Session struct {
	ID             string
	UserID         string
	SprintItemID   string
	Phase          Phase
	PhaseSummaries map[Phase]string
	Preferences    map[string]string
	CreatedAt      time.Time
	LastActiveAt   time.Time
}

// NewSession creates a session in the design phase.
func NewSession(id, userID, sprintItemID string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		UserID:         userID,
		SprintItemID:   sprintItemID,
		Phase:          PhaseDesign,
		PhaseSummaries: make(map[Phase]string),
		Preferences:    make(map[string]string),
		CreatedAt:      now,
		LastActiveAt:   now,
	}
}

// CompletePhase records the outgoing phase's summary and advances to the
// single legal successor. The session is left unchanged when the current
// phase has no successor.
func (s *Session) CompletePhase(summary string) error {
	next, ok := s.Phase.Next()
	if !ok {
		return ValidateTransition(s.Phase, PhaseDesign)
	}
	s.PhaseSummaries[s.Phase] = summary
	s.Phase = next
	return nil
}

// SetPhase requests an explicit transition to target. Staying in the current
// phase is a no-op; advancing stores summary for the outgoing phase first.
func (s *Session) SetPhase(target Phase, summary string) error {
	if err := ValidateTransition(s.Phase, target); err != nil {
		return err
	}
	if target == s.Phase {
		return nil
	}
	s.PhaseSummaries[s.Phase] = summary
	s.Phase = target
	return nil
}

// Reset re-enters the design phase with a new sprint item. Only legal from
// the completed phase; summaries are cleared.
func (s *Session) Reset(sprintItemID string) error {
	if s.Phase != PhaseCompleted {
		return ValidateTransition(s.Phase, PhaseDesign)
	}
	s.SprintItemID = sprintItemID
	s.Phase = PhaseDesign
	s.PhaseSummaries = make(map[Phase]string)
	return nil
}

// Touch updates the last-activity timestamp used by idle eviction.
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleFor reports how long the session has been idle.
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActiveAt)
}
