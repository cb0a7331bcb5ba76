package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"codevolve/internal/budget"
	"codevolve/internal/config"
	"codevolve/internal/cost"
	"codevolve/internal/hooks"
	"codevolve/internal/llm"
	"codevolve/internal/logging"
	"codevolve/internal/trace"
)

// ErrStepRefused marks a reasoning step the budget layer declined to
// fund. The step is skipped, not failed.
var ErrStepRefused = errors.New("reasoning step refused by budget")

// StepResult is the outcome of one funded LLM reasoning step.
type StepResult struct {
	StepID   string    `json:"step_id"`
	Response string    `json:"response"`
	Model    string    `json:"model"`
	Usage    llm.Usage `json:"usage"`
}

// Config wires a reflective operator into the session's shared
// services.
type Config struct {
	Name          string
	OperationType string
	Tier          config.ModelTier

	Registry  *llm.Registry
	Manager   *budget.Manager
	Estimator *cost.Estimator

	Limits      config.LimitsConfig
	CallTimeout time.Duration

	// Caps for the operator's top-level scope; zero means uncapped.
	MaxTokens            int64
	MaxCost              float64
	AutoApproveThreshold float64
}

// Operator is the base every LLM-driven agent composes: one phase cost
// tracker, one top-level budget scope, a validation hook registry and
// the funded-call discipline around them.
type Operator struct {
	name     string
	tier     config.ModelTier
	registry *llm.Registry
	manager  *budget.Manager

	tracker *trace.Tracker
	scope   *budget.Scope
	hooks   *hooks.Registry

	limits      config.LimitsConfig
	callTimeout time.Duration
	log         *zap.SugaredLogger
}

func New(cfg Config) *Operator {
	tier := cfg.Tier
	if tier == "" {
		tier = config.TierMiddle
	}
	opType := cfg.OperationType
	if opType == "" {
		opType = cfg.Name
	}
	if cfg.Limits.MaxReasoningSteps <= 0 {
		cfg.Limits.MaxReasoningSteps = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	return &Operator{
		name:     cfg.Name,
		tier:     tier,
		registry: cfg.Registry,
		manager:  cfg.Manager,
		tracker:  trace.NewTracker(opType, cfg.Estimator, cfg.Manager),
		scope: budget.NewScope(budget.ScopeConfig{
			Tier:                 tier,
			MaxTokens:            cfg.MaxTokens,
			MaxCost:              cfg.MaxCost,
			AutoApproveThreshold: cfg.AutoApproveThreshold,
		}, cfg.Manager, cfg.Registry),
		hooks:       hooks.NewRegistry(),
		limits:      cfg.Limits,
		callTimeout: cfg.CallTimeout,
		log:         logging.Get(logging.CategoryOrchestrator).Named(cfg.Name),
	}
}

func (o *Operator) Name() string { return o.name }

func (o *Operator) Tracker() *trace.Tracker { return o.tracker }

func (o *Operator) Scope() *budget.Scope { return o.scope }

func (o *Operator) Hooks() *hooks.Registry { return o.hooks }

// StartPhase opens a phase on the operator's tracker using the model
// its default tier resolves to.
func (o *Operator) StartPhase(phaseID, description string) error {
	return o.tracker.StartPhase(phaseID, description, o.registry.ModelFor(o.tier))
}

// EndPhase freezes the current phase.
func (o *Operator) EndPhase(success *bool, result any, feedback string) error {
	return o.tracker.EndPhase(success, result, feedback)
}

// RegisterHook adds a validation hook to the operator's registry.
func (o *Operator) RegisterHook(h hooks.Hook) error {
	return o.hooks.Register(h)
}

// ExecuteReasoningStep funds and runs one LLM call inside the given
// phase. A budget refusal returns ErrStepRefused without recording a
// step; prior accruals stay intact.
func (o *Operator) ExecuteReasoningStep(ctx context.Context, phaseID, stepID, system, prompt string, tier config.ModelTier) (*StepResult, error) {
	if tier == "" {
		tier = o.tier
	}

	child := o.scope.Child(tier, 0, 0)
	approved, err := child.RequestApproval(prompt, stepID)
	if !approved {
		if err == nil {
			err = ErrStepRefused
		} else if !errors.Is(err, budget.ErrBudgetDenied) {
			return nil, fmt.Errorf("approval for step %s failed: %w", stepID, err)
		}
		o.log.Infow("reasoning step refused", "phase", phaseID, "step", stepID, "reason", err)
		return nil, fmt.Errorf("%w: %s", ErrStepRefused, stepID)
	}

	model := child.Model()
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	resp, err := o.registry.Client().Complete(callCtx, llm.SimpleRequest(model, system, prompt))
	if err != nil {
		return nil, fmt.Errorf("reasoning step %s failed: %w", stepID, err)
	}

	if _, err := o.tracker.RecordReasoningStep(stepID, prompt, resp.Text, model, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to record step %s: %w", stepID, err)
	}

	// Approval reserved the prompt estimate and recording reserved the
	// full step estimate; settle both against what the provider
	// reported so session totals end at actual usage.
	promptEst := o.manager.Estimate(prompt, model)
	stepEst := promptEst.Add(o.manager.Estimate(resp.Text, model))
	actual := cost.Cost{
		Tokens: int64(resp.Usage.TotalTokens),
		Amount: float64(resp.Usage.TotalTokens) / 1000 * cost.PricePer1K(model),
	}
	if actual.Tokens == 0 {
		actual = stepEst
	}
	o.manager.ReconcileUsage(o.registry.Provider(), model, promptEst.Add(stepEst), actual)

	return &StepResult{StepID: stepID, Response: resp.Text, Model: model, Usage: resp.Usage}, nil
}

// ValidateReasoningStep runs the registered hooks of the given types
// against the step result and records the aggregate outcome.
func (o *Operator) ValidateReasoningStep(stepID string, result any, types ...hooks.HookType) (bool, []string) {
	results := o.hooks.Run(result, types...)
	passed := hooks.AllPass(results)
	feedback := hooks.FailureFeedback(results)

	if err := o.tracker.RecordValidation(stepID, passed, strings.Join(feedback, "; ")); err != nil {
		o.log.Warnw("failed to record validation", "step", stepID, "error", err)
	}
	return passed, feedback
}

// PromptBuilder produces the prompt for a loop iteration, given the
// validation feedback from the previous one (nil on the first).
type PromptBuilder func(iteration int, feedback []string) (system, prompt string)

// RunReflectiveLoop executes up to MaxReasoningSteps reasoning
// attempts, validating each with the given hook types and feeding
// failures back into the next prompt. Returns the first passing
// result, or the last attempt with passed=false.
func (o *Operator) RunReflectiveLoop(ctx context.Context, phaseID, stepPrefix string, build PromptBuilder, tier config.ModelTier, types ...hooks.HookType) (*StepResult, bool, error) {
	var (
		last     *StepResult
		feedback []string
	)
	for i := 1; i <= o.limits.MaxReasoningSteps; i++ {
		if err := ctx.Err(); err != nil {
			return last, false, err
		}

		system, prompt := build(i, feedback)
		stepID := fmt.Sprintf("%s-%d", stepPrefix, i)

		result, err := o.ExecuteReasoningStep(ctx, phaseID, stepID, system, prompt, tier)
		if err != nil {
			return last, false, err
		}
		last = result

		passed, fb := o.ValidateReasoningStep(stepID, result.Response, types...)
		if passed {
			return result, true, nil
		}
		feedback = fb
		o.log.Infow("reasoning step failed validation, retrying",
			"phase", phaseID, "step", stepID, "attempt", i, "feedback", fb)
	}
	return last, false, nil
}
