// File: pkg/planner/decompose.go
package planner

import (
	"regexp"
	"strings"
)

// Connectives that usually separate sequential steps in an instruction.
var subGoalSeparator = regexp.MustCompile(`(?i)(?:,?\s+and\s+then\s+|,?\s+then\s+|\s+after\s+that,?\s+|;\s*|\.\s+)`)

// Decompose splits an instruction into ordered sub-goals. It is a
// heuristic: the result seeds the plan, and the model may replace it with
// its own plan on the first step. A single-goal result is normal for short
// instructions.
func Decompose(instruction string) []string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil
	}

	parts := subGoalSeparator.Split(instruction, -1)
	goals := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "."))
		if part == "" {
			continue
		}
		goals = append(goals, part)
		if len(goals) == maxSubGoals {
			break
		}
	}
	if len(goals) == 0 {
		return []string{instruction}
	}
	return goals
}
