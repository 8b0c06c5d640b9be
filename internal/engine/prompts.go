package engine

import (
	"fmt"
	"strings"

	"github.com/venturelab/sprint-copilot/internal/domain"
)

const basePrompt = `You are a sprint coaching copilot that guides entrepreneurs through a
design -> execute -> report -> learn workflow for one sprint item at a time.
Use the available tools to read and update sprint items, the business model
canvas, the value proposition canvas, and customer segments. When the user
confirms the current phase is finished, call complete_phase with a concise
summary of the phase's outcomes.`

var phasePrompts = map[domain.Phase]string{
	domain.PhaseDesign: `Current phase: DESIGN.
Help the user define a testable hypothesis ("Because [reason], we believe
that [action] will lead to [expected result]"), generate 2-3 specific,
measurable, time-bound design tasks supporting it, and get explicit approval
for each task. Mark the sprint item design_completed before completing the
phase.`,
	domain.PhaseExecute: `Current phase: EXECUTE.
Guide the user through implementing the designed plan step by step, track
progress against each task, and help unblock obstacles. Mark the sprint item
execute_completed before completing the phase.`,
	domain.PhaseReport: `Current phase: REPORT.
Analyze execution results against the sprint item's success metric, surface
what the data shows versus the hypothesis, and produce actionable insights.
Mark the sprint item report_completed before completing the phase.`,
	domain.PhaseLearn: `Current phase: LEARN.
Help the user update their business strategy from the sprint findings: apply
learnings to the business model canvas, value proposition canvas, and
customer segments. Mark the sprint item learn_completed before completing
the phase.`,
	domain.PhaseCompleted: `Current phase: COMPLETED.
The workflow for this sprint item is finished. Help the user review outcomes
or pick a new sprint item to start a fresh cycle.`,
}

// systemPrompt assembles the engine's system instructions for one turn:
// base coaching behavior, the active phase's instructions, the selected
// sprint item, and summaries of already-finished phases.
func systemPrompt(req TurnRequest) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\n\n")
	if p, ok := phasePrompts[req.Phase]; ok {
		b.WriteString(p)
	}
	if req.SprintItemID != "" {
		fmt.Fprintf(&b, "\n\nSelected sprint item: %s", req.SprintItemID)
	}
	for _, phase := range []domain.Phase{domain.PhaseDesign, domain.PhaseExecute, domain.PhaseReport, domain.PhaseLearn} {
		if summary, ok := req.Summaries[phase]; ok && summary != "" {
			fmt.Fprintf(&b, "\n\nSummary of the %s phase:\n%s", phase, summary)
		}
	}
	return b.String()
}
