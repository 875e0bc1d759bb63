// File: pkg/planner/planner.go

// Package planner tracks per-task progress across steps: phase inference,
// sub-goal advancement, stuck-loop detection, and short verification notes
// about what the previous action actually changed.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/pkg/criteria"
)

const (
	// Same (type, target) appearing this often in the recent window flags a loop.
	stuckRepeatThreshold = 3
	// Consecutive exec_ok=false entries before recovery is forced.
	failureStreakThreshold = 3
	// Sliding window of recorded decisions used for repeat detection.
	recentWindow = 10
	// Visits to the same URL (query ignored) before a navigation loop is flagged.
	urlLoopThreshold = 5

	maxTrackedURLs     = 64
	maxSeenLocators    = 512
	maxSubGoals        = 6
	actionKeyTargetCap = 60
)

// Phase describes what the agent appears to be doing right now.
type Phase string

const (
	PhaseExploring   Phase = "exploring"
	PhaseFillingForm Phase = "filling_form"
	PhaseSubmitting  Phase = "submitting"
	PhaseNavigating  Phase = "navigating"
	PhaseVerifying   Phase = "verifying"
)

// PlanState is the tracker's slice of AgentState. The orchestrator owns it
// and hands it back on every step; the tracker mutates it in place.
type PlanState struct {
	Phase            Phase
	SubGoals         []string
	CurrentSubGoal   int
	RecentActionKeys []string
	FailureStreak    int
	TotalFailures    int
	StepCount        int
	LastURL          string
	URLVisits        map[string]int
	SeenLocators     map[string]bool
	ExhaustedScrolls map[string]bool
	MetCriteriaCount int
}

// Assessment is what one update concluded: whether the agent is stuck, how
// to recover, and observations about the previous action's effect. It is
// derived fresh every step and never persisted.
type Assessment struct {
	Stuck             bool
	RecoveryHint      string
	SuppressedLocator string
	Notes             []string
}

// Tracker derives progress assessments. It is stateless; all persistence
// lives in the PlanState the caller owns.
type Tracker struct {
	logger *zap.Logger
}

func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{logger: logger.Named("planner")}
}

// NewPlan initializes state for a fresh task, decomposing the instruction
// into sub-goals.
func (t *Tracker) NewPlan(instruction string) *PlanState {
	return &PlanState{
		Phase:            PhaseExploring,
		SubGoals:         Decompose(instruction),
		URLVisits:        map[string]int{},
		SeenLocators:     map[string]bool{},
		ExhaustedScrolls: map[string]bool{},
	}
}

// ReplacePlan swaps the heuristic decomposition for a plan the model
// proposed. Only useful on the first step, before any sub-goal advanced.
func (s *PlanState) ReplacePlan(subGoals []string) {
	if len(subGoals) == 0 || s.CurrentSubGoal > 0 {
		return
	}
	if len(subGoals) > maxSubGoals {
		subGoals = subGoals[:maxSubGoals]
	}
	s.SubGoals = subGoals
}

// RecordDecision appends the action the pipeline just emitted to the
// repeat-detection window. Sandbox history carries no locators, so loop
// detection runs on our own record of what we chose.
func (s *PlanState) RecordDecision(action schemas.Action) {
	key := actionKey(action)
	s.RecentActionKeys = append(s.RecentActionKeys, key)
	if len(s.RecentActionKeys) > recentWindow {
		s.RecentActionKeys = s.RecentActionKeys[len(s.RecentActionKeys)-recentWindow:]
	}
}

// Update folds the new step's ground truth into the plan state and returns
// the assessment for this step's prompt. lastAction is the action this
// pipeline emitted on the previous step, nil on the first step.
func (t *Tracker) Update(
	state *PlanState,
	view schemas.PageView,
	history []schemas.StepHistoryEntry,
	crit criteria.SuccessCriteria,
	lastAction *schemas.Action,
) Assessment {
	if state.URLVisits == nil {
		state.URLVisits = map[string]int{}
	}
	if state.SeenLocators == nil {
		state.SeenLocators = map[string]bool{}
	}
	if state.ExhaustedScrolls == nil {
		state.ExhaustedScrolls = map[string]bool{}
	}

	state.StepCount = len(history)
	urlChanged := view.URL != "" && state.LastURL != "" && view.URL != state.LastURL

	var assessment Assessment
	assessment.Notes = t.verifyLastAction(state, view, history, lastAction, urlChanged)

	// Failure accounting from the sandbox's ground truth.
	if len(history) > 0 {
		if history[len(history)-1].ExecOK {
			state.FailureStreak = 0
		} else {
			state.FailureStreak++
			state.TotalFailures++
		}
	}

	t.advanceSubGoal(state, view, history, crit, urlChanged)
	state.Phase = inferPhase(state, history)

	if view.URL != "" {
		urlKey := stripQuery(view.URL)
		if _, tracked := state.URLVisits[urlKey]; tracked || len(state.URLVisits) < maxTrackedURLs {
			state.URLVisits[urlKey]++
		}
		state.LastURL = view.URL
	}

	for _, el := range view.Elements {
		if len(state.SeenLocators) >= maxSeenLocators {
			break
		}
		state.SeenLocators[el.XPath] = true
	}

	t.detectStuck(state, &assessment)
	if assessment.Stuck {
		t.logger.Info("Stuck state detected.",
			zap.String("phase", string(state.Phase)),
			zap.String("recovery", assessment.RecoveryHint))
	}
	return assessment
}

// verifyLastAction compares pre/post page state and narrates what the
// previous action appears to have done. Notes are advisory text for the
// next prompt, never control flow.
func (t *Tracker) verifyLastAction(
	state *PlanState,
	view schemas.PageView,
	history []schemas.StepHistoryEntry,
	lastAction *schemas.Action,
	urlChanged bool,
) []string {
	if lastAction == nil || len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	var notes []string

	switch lastAction.Type {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionSubmit:
		if last.ExecOK && !urlChanged && hasNewAlertElement(state, view) {
			notes = append(notes, "A validation or error message appeared after the last click.")
		}
	case schemas.ActionNavigate:
		if !urlChanged {
			notes = append(notes, "The last navigation did not take effect; the URL is unchanged.")
		}
	case schemas.ActionScroll:
		if !hasUnseenLocators(state, view) {
			direction := lastAction.Direction
			if direction == "" {
				direction = "down"
			}
			state.ExhaustedScrolls[direction] = true
			notes = append(notes, fmt.Sprintf("Scrolling %s revealed no new elements.", direction))
		}
	}
	return notes
}

// hasNewAlertElement looks for an alert-shaped element we have not seen in
// any earlier snapshot of this task.
func hasNewAlertElement(state *PlanState, view schemas.PageView) bool {
	for _, el := range view.Elements {
		if state.SeenLocators[el.XPath] {
			continue
		}
		if looksLikeAlert(el) {
			return true
		}
	}
	return false
}

var alertTokens = []string{"error", "alert", "invalid", "warning", "danger", "required"}

func looksLikeAlert(el schemas.ElementDescriptor) bool {
	if el.Role == "alert" {
		return true
	}
	classes := strings.ToLower(el.Classes)
	text := strings.ToLower(el.Text)
	for _, token := range alertTokens {
		if strings.Contains(classes, token) || strings.Contains(text, token) {
			return true
		}
	}
	return false
}

func hasUnseenLocators(state *PlanState, view schemas.PageView) bool {
	for _, el := range view.Elements {
		if !state.SeenLocators[el.XPath] {
			return true
		}
	}
	return false
}

// advanceSubGoal moves the sub-goal pointer when the last action succeeded
// and the page shows a completion signal: the URL moved, or one more
// criterion is now met than before.
func (t *Tracker) advanceSubGoal(
	state *PlanState,
	view schemas.PageView,
	history []schemas.StepHistoryEntry,
	crit criteria.SuccessCriteria,
	urlChanged bool,
) {
	met := countMetCriteria(crit, view)
	defer func() { state.MetCriteriaCount = met }()

	if state.CurrentSubGoal >= len(state.SubGoals)-1 {
		return
	}
	if len(history) == 0 || !history[len(history)-1].ExecOK {
		return
	}
	if urlChanged || met > state.MetCriteriaCount {
		state.CurrentSubGoal++
		t.logger.Debug("Sub-goal advanced.",
			zap.Int("current", state.CurrentSubGoal),
			zap.String("goal", state.SubGoals[state.CurrentSubGoal]))
	}
}

// countMetCriteria approximates satisfaction against the compacted view:
// URL patterns against the current URL, texts against the summary.
func countMetCriteria(crit criteria.SuccessCriteria, view schemas.PageView) int {
	met := 0
	for _, target := range crit.TargetURLPatterns {
		if strings.Contains(view.URL, target) {
			met++
		}
	}
	summaryLower := strings.ToLower(view.ContentSummary)
	for _, text := range crit.RequiredTexts {
		if strings.Contains(summaryLower, strings.ToLower(text)) {
			met++
		}
	}
	return met
}

// inferPhase reads the last few sandbox-confirmed actions.
func inferPhase(state *PlanState, history []schemas.StepHistoryEntry) Phase {
	if len(history) == 0 {
		return PhaseExploring
	}
	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	var sawFill, sawClick, sawNavigate bool
	allNoop := true
	for _, h := range recent {
		switch strings.ToLower(h.ActionType) {
		case "fill", "type":
			sawFill = true
			allNoop = false
		case "click":
			sawClick = true
			allNoop = false
		case "navigate":
			sawNavigate = true
			allNoop = false
		case "noop":
		default:
			allNoop = false
		}
	}

	switch {
	case sawFill:
		return PhaseFillingForm
	case sawClick && state.Phase == PhaseFillingForm:
		return PhaseSubmitting
	case sawNavigate:
		return PhaseNavigating
	case state.StepCount > 1 && allNoop:
		return PhaseVerifying
	default:
		return state.Phase
	}
}

// detectStuck flags loops: the same decision repeated in the recent
// window, a failure streak, or circling the same URL.
func (t *Tracker) detectStuck(state *PlanState, assessment *Assessment) {
	counts := map[string]int{}
	for _, key := range state.RecentActionKeys {
		counts[key]++
	}
	// Most recent key first so a live loop wins over a stale one.
	for i := len(state.RecentActionKeys) - 1; i >= 0; i-- {
		key := state.RecentActionKeys[i]
		count := counts[key]
		if count < stuckRepeatThreshold {
			continue
		}
		actionType, target := splitActionKey(key)
		assessment.Stuck = true
		assessment.SuppressedLocator = target
		assessment.RecoveryHint = fmt.Sprintf(
			"Action '%s' on '%s' repeated %d times in the last %d steps. "+
				"Try a different approach: use an alternative selector, scroll to find the element, "+
				"or navigate to a different page.",
			actionType, truncate(target, 40), count, recentWindow)
		return
	}

	if state.FailureStreak >= failureStreakThreshold {
		assessment.Stuck = true
		assessment.RecoveryHint = fmt.Sprintf(
			"%d consecutive action failures. "+
				"Try: check for validation errors on the page, use a different selector, "+
				"scroll down, or navigate back and try a different approach.",
			state.FailureStreak)
		return
	}

	loopedURL, loopCount := "", 0
	for url, count := range state.URLVisits {
		if count < urlLoopThreshold {
			continue
		}
		if count > loopCount || (count == loopCount && url < loopedURL) {
			loopedURL, loopCount = url, count
		}
	}
	if loopedURL != "" {
		assessment.Stuck = true
		assessment.RecoveryHint = fmt.Sprintf(
			"Visited '%s' %d times. "+
				"Try navigating to a different page or taking a different action path.",
			truncate(loopedURL, 50), loopCount)
	}
}

// PromptContext renders the agent-state section for the prompt builder.
func PromptContext(state *PlanState, assessment Assessment, maxSteps int) string {
	lines := []string{
		fmt.Sprintf("Current phase: %s", state.Phase),
		fmt.Sprintf("Steps taken: %d/%d", state.StepCount, maxSteps),
	}
	if len(state.SubGoals) > 1 && state.CurrentSubGoal < len(state.SubGoals) {
		lines = append(lines, fmt.Sprintf("Current sub-goal (%d of %d): %s",
			state.CurrentSubGoal+1, len(state.SubGoals), state.SubGoals[state.CurrentSubGoal]))
	}
	if state.TotalFailures > 0 {
		lines = append(lines, fmt.Sprintf("Total failures: %d", state.TotalFailures))
	}
	if len(state.ExhaustedScrolls) > 0 {
		dirs := make([]string, 0, len(state.ExhaustedScrolls))
		for dir := range state.ExhaustedScrolls {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		lines = append(lines, "Exhausted scroll directions: "+strings.Join(dirs, ", "))
	}
	for _, note := range assessment.Notes {
		lines = append(lines, "Note: "+note)
	}
	if assessment.Stuck {
		lines = append(lines, "\n⚠ STUCK DETECTED: "+assessment.RecoveryHint)
		lines = append(lines, "You MUST try a DIFFERENT approach than your previous actions.")
		if assessment.SuppressedLocator != "" {
			lines = append(lines, fmt.Sprintf("Do NOT target '%s' again.", assessment.SuppressedLocator))
		}
	}
	return strings.Join(lines, "\n")
}

// -- Keys and small helpers --

func actionKey(action schemas.Action) string {
	target := action.XPath
	if target == "" {
		target = action.Selector
	}
	if target == "" {
		target = action.URL
	}
	return string(action.Type) + ":" + truncate(target, actionKeyTargetCap)
}

func splitActionKey(key string) (actionType, target string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, ""
}

func stripQuery(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
