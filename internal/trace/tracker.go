package trace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"codevolve/internal/budget"
	"codevolve/internal/cost"
	"codevolve/internal/logging"
)

// ErrNoCurrentPhase is returned when a step is recorded outside a phase.
var ErrNoCurrentPhase = errors.New("no current phase")

// ErrOperationComplete is returned for writes after CompleteOperation.
var ErrOperationComplete = errors.New("operation already complete")

// Tracker accumulates the trajectory of one operation. One instance per
// operation; safe for concurrent step recording within a phase.
type Tracker struct {
	mu sync.Mutex

	op        Operation
	current   *Phase
	estimator *cost.Estimator
	manager   *budget.Manager // optional; session counters accrue here
	complete  bool
}

// NewTracker creates a tracker for a fresh operation. manager may be nil
// in tests that do not exercise session accounting.
func NewTracker(operationType string, estimator *cost.Estimator, manager *budget.Manager) *Tracker {
	if estimator == nil {
		estimator = cost.NewEstimator()
	}
	return &Tracker{
		op: Operation{
			OperationID:   uuid.NewString(),
			OperationType: operationType,
			StartTime:     time.Now().UTC(),
		},
		estimator: estimator,
		manager:   manager,
	}
}

// OperationID returns the operation identifier.
func (t *Tracker) OperationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.op.OperationID
}

// StartPhase begins a new phase. A phase already in progress is
// auto-ended with an unknown outcome first.
func (t *Tracker) StartPhase(phaseID, description, modelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		return ErrOperationComplete
	}

	if t.current != nil {
		logging.Get(logging.CategoryTrace).Warnf(
			"phase %s started while %s still current; auto-ending prior", phaseID, t.current.PhaseID)
		t.endPhaseLocked(Outcome{})
	}

	t.current = &Phase{
		PhaseID:     phaseID,
		Description: description,
		StartTime:   time.Now().UTC(),
		ModelUsed:   modelID,
	}
	return nil
}

// RecordReasoningStep appends one LLM call to the current phase and
// accrues its cost into the phase, the operation, and the session budget.
func (t *Tracker) RecordReasoningStep(stepID, prompt, response, modelID string, toolsUsed, chunksUsed []string) (ReasoningStep, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		return ReasoningStep{}, ErrOperationComplete
	}
	if t.current == nil {
		return ReasoningStep{}, fmt.Errorf("%w: cannot record step %s", ErrNoCurrentPhase, stepID)
	}

	consumed := t.estimator.Estimate(prompt, modelID).Add(t.estimator.Estimate(response, modelID))

	step := ReasoningStep{
		StepID:            stepID,
		Prompt:            prompt,
		Response:          response,
		Consumed:          consumed,
		ModelID:           modelID,
		ToolsUsed:         append([]string(nil), toolsUsed...),
		ContextChunksUsed: append([]string(nil), chunksUsed...),
		Timestamp:         time.Now().UTC(),
	}

	t.current.Steps = append(t.current.Steps, step)
	t.current.Consumed = t.current.Consumed.Add(consumed)
	t.op.Consumed = t.op.Consumed.Add(consumed)

	if t.manager != nil {
		t.manager.Accrue(modelID, consumed)
	}

	return step, nil
}

// RecordValidation attaches a validation outcome to a step in the
// current phase. When the step was never recorded (mocked execution
// paths), a placeholder step is created so validation is never lost.
func (t *Tracker) RecordValidation(stepID string, outcome bool, feedback string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.complete {
		return ErrOperationComplete
	}
	if t.current == nil {
		return fmt.Errorf("%w: cannot validate step %s", ErrNoCurrentPhase, stepID)
	}

	for i := range t.current.Steps {
		if t.current.Steps[i].StepID == stepID {
			ok := outcome
			t.current.Steps[i].ValidationOutcome = &ok
			t.current.Steps[i].ValidationFeedback = feedback
			return nil
		}
	}

	logging.Get(logging.CategoryTrace).Debugf("validation for unrecorded step %s; creating placeholder", stepID)
	ok := outcome
	t.current.Steps = append(t.current.Steps, ReasoningStep{
		StepID:             stepID,
		ModelID:            t.current.ModelUsed,
		ValidationOutcome:  &ok,
		ValidationFeedback: feedback,
		Timestamp:          time.Now().UTC(),
	})
	return nil
}

// EndPhase freezes the current phase with the given outcome and appends
// it to the trajectory.
func (t *Tracker) EndPhase(success *bool, result any, feedback string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return ErrNoCurrentPhase
	}
	t.endPhaseLocked(Outcome{Success: success, Result: result, Feedback: feedback})
	return nil
}

func (t *Tracker) endPhaseLocked(outcome Outcome) {
	t.current.EndTime = time.Now().UTC()
	t.current.Outcome = outcome
	t.op.Phases = append(t.op.Phases, *t.current)
	t.current = nil
}

// CompleteOperation auto-ends any current phase and finalizes the
// operation. Further writes are rejected.
func (t *Tracker) CompleteOperation(success bool, finalResult any) Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.endPhaseLocked(Outcome{})
	}

	ok := success
	t.op.OverallSuccess = &ok
	t.op.FinalResult = finalResult
	t.op.EndTime = time.Now().UTC()
	t.complete = true
	return t.op
}

// Snapshot returns a copy of the trajectory so far, including the
// in-progress phase if any.
func (t *Tracker) Snapshot() Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	op := t.op
	op.Phases = append([]Phase(nil), t.op.Phases...)
	if t.current != nil {
		cur := *t.current
		cur.Steps = append([]ReasoningStep(nil), t.current.Steps...)
		op.Phases = append(op.Phases, cur)
	}
	return op
}

// CostSummary aggregates per-phase consumption and totals.
func (t *Tracker) CostSummary() CostSummary {
	op := t.Snapshot()

	summary := CostSummary{Totals: op.Consumed}
	for _, p := range op.Phases {
		summary.Phases = append(summary.Phases, PhaseSummary{
			PhaseID:   p.PhaseID,
			Consumed:  p.Consumed,
			StepCount: len(p.Steps),
		})
		summary.Steps += len(p.Steps)
	}
	return summary
}
