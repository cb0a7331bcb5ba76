// Package trace records the multi-phase reasoning trajectory of one
// orchestration operation: every LLM call, its cost, and its validation
// outcome. The trajectory is append-only and JSON-serializable.
package trace

import (
	"time"

	"codevolve/internal/cost"
)

// ReasoningStep records one LLM call within a phase. Validation fields
// are populated immediately after the call; the record is immutable
// thereafter (a second validation for the same step overwrites
// outcome/feedback, last writer wins).
type ReasoningStep struct {
	StepID             string    `json:"step_id"`
	Prompt             string    `json:"prompt"`
	Response           string    `json:"response"`
	Consumed           cost.Cost `json:"consumed"`
	ModelID            string    `json:"model_id"`
	ToolsUsed          []string  `json:"tools_used,omitempty"`
	ContextChunksUsed  []string  `json:"context_chunks_used,omitempty"`
	ValidationOutcome  *bool     `json:"validation_outcome,omitempty"`
	ValidationFeedback string    `json:"validation_feedback,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Outcome is the result of a finished phase.
type Outcome struct {
	Success  *bool  `json:"success,omitempty"`
	Result   any    `json:"result,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Phase is one logical stage of an operation. Exactly one phase is
// current at a time; ending a phase freezes it.
type Phase struct {
	PhaseID     string          `json:"phase_id"`
	Description string          `json:"description"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	ModelUsed   string          `json:"model_used"`
	Consumed    cost.Cost       `json:"consumed"`
	Steps       []ReasoningStep `json:"steps"`
	Outcome     Outcome         `json:"outcome"`
}

// Operation is the full trajectory of one execute() call.
type Operation struct {
	OperationID    string    `json:"operation_id"`
	OperationType  string    `json:"operation_type"`
	Phases         []Phase   `json:"phases"`
	Consumed       cost.Cost `json:"consumed"`
	OverallSuccess *bool     `json:"overall_success,omitempty"`
	FinalResult    any       `json:"final_result,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
}

// PhaseSummary is one row of a cost summary.
type PhaseSummary struct {
	PhaseID   string    `json:"phase_id"`
	Consumed  cost.Cost `json:"consumed"`
	StepCount int       `json:"step_count"`
}

// CostSummary aggregates per-phase and total consumption.
type CostSummary struct {
	Phases []PhaseSummary `json:"phases"`
	Totals cost.Cost      `json:"totals"`
	Steps  int            `json:"steps"`
}
