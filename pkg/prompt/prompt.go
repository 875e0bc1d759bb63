// File: pkg/prompt/prompt.go

// Package prompt assembles the system and user messages for one decision
// step. Building is deterministic and side-effect free: the same input
// always renders the same messages, with section order fixed so the model
// sees goals before page state.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/pkg/criteria"
	"github.com/xkilldash9x/iwa/pkg/extractor"
	"github.com/xkilldash9x/iwa/pkg/planner"
)

const (
	maxHistoryText  = 30
	maxMemoryChars  = 200
	maxFormWarnings = 5
)

// Input carries everything one step's prompt is built from. PrevElements
// is the previous snapshot's element list for the DOM diff; nil on the
// first step.
type Input struct {
	Criteria     criteria.SuccessCriteria
	View         schemas.PageView
	PrevElements []schemas.ElementDescriptor
	State        *planner.PlanState
	Assessment   planner.Assessment
	History      []schemas.StepHistoryEntry
	Memory       []schemas.MemoryEntry
}

// Builder renders prompts under the configured step and history budgets.
type Builder struct {
	maxSteps      int
	historyWindow int
}

func NewBuilder(maxSteps, historyWindow int) *Builder {
	if maxSteps <= 0 {
		maxSteps = 30
	}
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &Builder{maxSteps: maxSteps, historyWindow: historyWindow}
}

// Build returns the system and user messages. Section order in the user
// message is fixed: task, success criteria, plan, agent state, memory,
// URL, step, history, DOM diff, form warnings, elements, content summary,
// closing instruction.
func (b *Builder) Build(in Input) (systemMsg, userMsg string) {
	sections := []string{"## Task\n" + in.Criteria.Instruction}

	sections = append(sections, in.Criteria.PromptSection())

	if plan := planSection(in.State); plan != "" {
		sections = append(sections, plan)
	}
	if in.State != nil {
		sections = append(sections, "## Agent State\n"+planner.PromptContext(in.State, in.Assessment, b.maxSteps))
	}
	if memory := memorySection(in.Memory); memory != "" {
		sections = append(sections, memory)
	}

	sections = append(sections, "## Current URL\n"+in.View.URL)
	sections = append(sections, fmt.Sprintf("## Step\n%d of %d", in.View.StepIndex, b.maxSteps))

	if historyText := FormatHistory(boundedHistory(in.History, b.historyWindow)); historyText != "" {
		sections = append(sections, "## Action History\n"+historyText)
	}
	if diff := extractor.DiffElements(in.PrevElements, in.View.Elements); diff != "" {
		sections = append(sections, diff)
	}
	if warnings := formWarnings(in.View); warnings != "" {
		sections = append(sections, warnings)
	}

	sections = append(sections, "## Page Elements\n"+extractor.FormatElements(in.View.Elements))
	if in.View.ContentSummary != "" {
		sections = append(sections, "## Page Content Summary\n"+in.View.ContentSummary)
	}

	sections = append(sections, "## Your Turn\nAnalyze the page and decide the next action. Output a JSON object with 'thinking' and 'action' fields.")

	return SystemPrompt, strings.Join(sections, "\n\n")
}

// FormatHistory renders sandbox-confirmed steps, oldest first.
func FormatHistory(history []schemas.StepHistoryEntry) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, h := range history {
		status := "✓"
		if !h.ExecOK {
			status = "✗"
			if h.Error != "" {
				status = fmt.Sprintf("✗ (%s)", h.Error)
			}
		}
		textPart := ""
		if h.Text != "" {
			textPart = fmt.Sprintf(" %q", truncateRunes(h.Text, maxHistoryText))
		}
		lines = append(lines, fmt.Sprintf("  Step %d: %s%s → %s", h.Step, h.ActionType, textPart, status))
	}
	return strings.Join(lines, "\n")
}

func boundedHistory(history []schemas.StepHistoryEntry, window int) []schemas.StepHistoryEntry {
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}

// planSection renders the sub-goal list with progress markers. Single-goal
// plans add nothing over the task line and are omitted.
func planSection(state *planner.PlanState) string {
	if state == nil || len(state.SubGoals) <= 1 {
		return ""
	}
	lines := []string{"## Task Plan"}
	for i, goal := range state.SubGoals {
		marker := " "
		switch {
		case i < state.CurrentSubGoal:
			marker = "✓"
		case i == state.CurrentSubGoal:
			marker = "→"
		}
		lines = append(lines, fmt.Sprintf("  %s %d. %s", marker, i+1, goal))
	}
	return strings.Join(lines, "\n")
}

func memorySection(memory []schemas.MemoryEntry) string {
	if len(memory) == 0 {
		return ""
	}
	lines := []string{"## Agent Memory (previous reasoning)"}
	for _, entry := range memory {
		lines = append(lines, fmt.Sprintf("  Step %d: %s", entry.Step, truncateRunes(entry.Thinking, maxMemoryChars)))
	}
	return strings.Join(lines, "\n")
}

// formWarnings lists required fields that are still empty, so the model
// fills them before submitting.
func formWarnings(view schemas.PageView) string {
	var lines []string
	hiddenCount := 0
	for _, el := range view.Elements {
		if !el.IsRequired || el.IsHidden || el.Value != "" {
			continue
		}
		if !el.Editable() && !el.Selectable() {
			continue
		}
		if len(lines) >= maxFormWarnings {
			hiddenCount++
			continue
		}
		ident := el.Name
		if ident == "" {
			ident = el.ID
		}
		if ident == "" {
			ident = el.Placeholder
		}
		if ident != "" {
			ident = fmt.Sprintf(" %q", ident)
		}
		lines = append(lines, fmt.Sprintf("  - [%s] %s%s is required and still empty", el.ShortID, el.Tag, ident))
	}
	if len(lines) == 0 {
		return ""
	}
	if hiddenCount > 0 {
		lines = append(lines, fmt.Sprintf("  ... and %d more required fields", hiddenCount))
	}
	return "## Form Warnings\n" + strings.Join(lines, "\n")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
