// File: pkg/agent/agent.go

// Package agent orchestrates the per-step decision pipeline: criteria
// analysis, page compaction, progress tracking, prompt assembly, model
// invocation, and action resolution. Decide never errors; every failure
// path degrades to an empty action list so the caller always gets a
// well-formed response.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
	"github.com/xkilldash9x/iwa/pkg/criteria"
	"github.com/xkilldash9x/iwa/pkg/extractor"
	"github.com/xkilldash9x/iwa/pkg/planner"
	"github.com/xkilldash9x/iwa/pkg/prompt"
	"github.com/xkilldash9x/iwa/pkg/resolver"
)

// ModelInvoker is the model-invocation capability the agent consumes: one
// decision request walking the fallback chain.
type ModelInvoker interface {
	Invoke(ctx context.Context, taskID, systemPrompt, userPrompt string) (string, error)
}

// ActionResolver validates raw model output against the current page view.
type ActionResolver interface {
	Resolve(raw string, view schemas.PageView) (*resolver.Resolution, error)
}

// Agent runs the decision pipeline once per inbound step.
type Agent struct {
	cfg      config.AgentConfig
	mode     extractor.Mode
	pages    *extractor.Extractor
	tracker  *planner.Tracker
	prompts  *prompt.Builder
	invoker  ModelInvoker
	resolver ActionResolver
	store    *Store
	logger   *zap.Logger
}

func New(cfg config.AgentConfig, invoker ModelInvoker, actionResolver ActionResolver, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("agent")
	return &Agent{
		cfg:      cfg,
		mode:     extractor.ParseMode(cfg.ExtractionMode),
		pages:    extractor.New(cfg.MaxElements, cfg.MaxContentChars, logger),
		tracker:  planner.NewTracker(logger),
		prompts:  prompt.NewBuilder(cfg.MaxSteps, cfg.HistoryWindow),
		invoker:  invoker,
		resolver: actionResolver,
		store:    NewStore(cfg.StateTTL, cfg.MaxTrackedTasks),
		logger:   logger,
	}
}

// Decide runs one step of the pipeline and returns zero or one actions.
// The sandbox executes only the first element, so the list never carries
// more than one.
func (a *Agent) Decide(ctx context.Context, req schemas.DecisionRequest) []schemas.Action {
	start := time.Now()

	taskID := req.Task.ID
	if taskID == "" {
		taskID = "anon-" + uuid.NewString()
		a.logger.Warn("Decision request carried no task id, correlation will not survive this step",
			zap.String("assigned_id", taskID))
	}
	log := a.logger.With(zap.String("task_id", taskID), zap.Int("step", req.StepIndex))

	state, fresh := a.store.Acquire(taskID)
	crit := criteria.Analyze(req.Task)
	if fresh {
		state.Plan = a.tracker.NewPlan(crit.Instruction)
		log.Info("Tracking new task",
			zap.String("task_type", string(crit.TaskType)),
			zap.Int("sub_goals", len(state.Plan.SubGoals)))
	}

	// Early completion: when the page already satisfies every criterion and
	// nothing is half-done, the best action is none at all.
	if state.PendingFallback == nil && crit.SatisfiedBy(req.URL, req.SnapshotHTML) {
		log.Info("Success criteria already satisfied, returning NOOP",
			zap.Duration("elapsed", time.Since(start)))
		return []schemas.Action{}
	}

	view := a.pages.Extract(req.SnapshotHTML, a.mode, crit.RequiredElementMatchers)
	view.URL = req.URL
	view.StepIndex = req.StepIndex

	assessment := a.tracker.Update(state.Plan, view, req.History, crit, state.LastAction)
	if state.LastRejection != "" {
		assessment.Notes = append(assessment.Notes,
			"The previous model response was rejected: "+state.LastRejection)
		state.LastRejection = ""
	}

	// Replay the stored fallback when the sandbox reports the primary
	// action failed. No model call; the model already told us plan B.
	if fb := state.PendingFallback; fb != nil && lastStepFailed(req.History) {
		state.PendingFallback = nil
		log.Info("Primary action failed, replaying stored fallback",
			zap.String("type", string(fb.Type)))
		return a.commit(state, view, *fb)
	}

	systemMsg, userMsg := a.prompts.Build(prompt.Input{
		Criteria:     crit,
		View:         view,
		PrevElements: state.PrevElements,
		State:        state.Plan,
		Assessment:   assessment,
		History:      req.History,
		Memory:       state.Memory,
	})

	raw, err := a.invoker.Invoke(ctx, taskID, systemMsg, userMsg)
	if err != nil {
		log.Error("Model invocation failed for this step", zap.Error(err))
		return a.degrade(state, view, log)
	}

	res, err := a.resolver.Resolve(raw, view)
	if err != nil {
		var rejection *resolver.RejectionError
		if errors.As(err, &rejection) {
			state.LastRejection = rejection.Reason
			log.Warn("Model response rejected", zap.String("reason", rejection.Reason))
		} else {
			log.Error("Action resolution failed", zap.Error(err))
		}
		return a.degrade(state, view, log)
	}

	if req.StepIndex == 0 && len(res.Plan) > 0 {
		state.Plan.ReplacePlan(res.Plan)
		log.Debug("Adopted model-proposed plan", zap.Int("sub_goals", len(res.Plan)))
	}
	state.RememberThinking(req.StepIndex, res.Thinking, a.cfg.MemoryWindow)

	if res.Action == nil {
		log.Info("Model chose a deliberate no-op",
			zap.Duration("elapsed", time.Since(start)))
		state.PrevElements = view.Elements
		state.LastAction = nil
		state.PendingFallback = nil
		return []schemas.Action{}
	}

	state.PendingFallback = res.Fallback
	log.Info("Step decided",
		zap.String("type", string(res.Action.Type)),
		zap.Int("confidence", res.Confidence),
		zap.Bool("has_fallback", res.Fallback != nil),
		zap.Duration("elapsed", time.Since(start)))
	return a.commit(state, view, *res.Action)
}

// commit persists the decided action into state and wraps it for the wire.
func (a *Agent) commit(state *State, view schemas.PageView, action schemas.Action) []schemas.Action {
	state.Plan.RecordDecision(action)
	state.LastAction = &action
	state.PrevElements = view.Elements
	return []schemas.Action{action}
}

// degrade ends a failed step: the stored fallback when one exists,
// otherwise NOOP. Never an error to the caller.
func (a *Agent) degrade(state *State, view schemas.PageView, log *zap.Logger) []schemas.Action {
	if fb := state.PendingFallback; fb != nil {
		state.PendingFallback = nil
		log.Info("Degrading to stored fallback action", zap.String("type", string(fb.Type)))
		return a.commit(state, view, *fb)
	}
	state.PrevElements = view.Elements
	state.LastAction = nil
	return []schemas.Action{}
}

func lastStepFailed(history []schemas.StepHistoryEntry) bool {
	return len(history) > 0 && !history[len(history)-1].ExecOK
}
