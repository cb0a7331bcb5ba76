package orchestrator

import (
	"encoding/json"
	"fmt"

	"codevolve/internal/validate"
)

// Decision values for a completed operation.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Objective is the input contract of Execute.
type Objective struct {
	Task         string   `json:"task"`
	ProjectPath  string   `json:"project_path"`
	Constraints  []string `json:"constraints,omitempty"`
	QualityGates []string `json:"quality_gates,omitempty"`
	Language     string   `json:"language,omitempty"`
	OriginalIdea string   `json:"original_idea,omitempty"`
}

// Result is the sanitized record Execute returns.
type Result struct {
	Decision      string            `json:"decision"`
	Reason        string            `json:"reason"`
	Modifications map[string]string `json:"modifications"`

	QualityResults validate.Report `json:"quality_results"`
	SREResults     validate.Report `json:"sre_results"`

	ReasoningTrajectory []TrajectoryEntry `json:"reasoning_trajectory"`

	KnowledgeApplied          bool     `json:"knowledge_applied"`
	KnowledgeApplicationScore *float64 `json:"knowledge_application_score,omitempty"`
	KnowledgeFeedback         []string `json:"knowledge_feedback,omitempty"`

	Escalation   string `json:"escalation,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
	OperationID  string `json:"operation_id,omitempty"`
}

// SanitizeRecord makes an arbitrary value JSON-clean by round-tripping
// it through the encoder; values the encoder cannot handle degrade to
// their string form. Sanitizing twice equals sanitizing once.
func SanitizeRecord(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

// Sanitized returns the result as a JSON-clean generic map.
func (r Result) Sanitized() map[string]any {
	clean := SanitizeRecord(r)
	if m, ok := clean.(map[string]any); ok {
		return m
	}
	return map[string]any{"decision": r.Decision, "reason": r.Reason}
}
