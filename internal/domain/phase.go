// Package domain contains core domain types for the sprint copilot.
package domain

import (
	"github.com/venturelab/sprint-copilot/internal/shared"
)

// Phase identifies a workflow phase of a coaching session.
type Phase string

const (
	// PhaseDesign is the initial phase of every session.
	PhaseDesign Phase = "design"
	// PhaseExecute follows design.
	PhaseExecute Phase = "execute"
	// PhaseReport follows execute.
	PhaseReport Phase = "report"
	// PhaseLearn follows report.
	PhaseLearn Phase = "learn"
	// PhaseCompleted is terminal; only a reset with a new sprint item leaves it.
	PhaseCompleted Phase = "completed"
)

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseDesign, PhaseExecute, PhaseReport, PhaseLearn, PhaseCompleted:
		return true
	}
	return false
}

// Next returns the single legal successor of p. PhaseCompleted has no
// successor; re-entry happens only through Session.Reset.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseDesign:
		return PhaseExecute, true
	case PhaseExecute:
		return PhaseReport, true
	case PhaseReport:
		return PhaseLearn, true
	case PhaseLearn:
		return PhaseCompleted, true
	default:
		return "", false
	}
}

// ValidateTransition checks that moving from 'from' to 'to' follows the
// workflow graph: either staying in place or advancing to the single legal
// successor. Anything else is an invalid transition.
func ValidateTransition(from, to Phase) error {
	if !to.IsValid() {
		return shared.Validation("unknown phase %q", to)
	}
	if to == from {
		return nil
	}
	if next, ok := from.Next(); ok && to == next {
		return nil
	}
	return shared.InvalidTransition("cannot move from %q to %q", from, to)
}
