package orchestrator

import (
	"fmt"
	"time"

	"codevolve/internal/arch"
	"codevolve/internal/knowledge"
	"codevolve/internal/modify"
	"codevolve/internal/plan"
	"codevolve/internal/validate"
)

// TrajectoryEntry is one record in the append-only reasoning
// trajectory. Success is nil while the step is in flight or when the
// outcome is unknown.
type TrajectoryEntry struct {
	Step        string    `json:"step"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Success     *bool     `json:"success,omitempty"`
}

// State is the session record threaded through one orchestration call.
// Only the orchestrator mutates it; sub-teams receive it read-mostly
// and hand changes back through their return values.
type State struct {
	Objective   Objective `json:"objective"`
	ProjectPath string    `json:"project_path"`
	Task        string    `json:"task"`

	Constraints  []string `json:"constraints,omitempty"`
	QualityGates []string `json:"quality_gates,omitempty"`

	Analysis             arch.Context  `json:"analysis"`
	ArchitecturalContext arch.Context  `json:"architectural_context"`
	SystemType           string        `json:"system_type"`
	ModificationPlan     plan.Plan     `json:"modification_plan"`
	ModificationResult   modify.Result `json:"modification_result"`

	QualityResults validate.Report `json:"quality_results"`
	SREResults     validate.Report `json:"sre_results"`

	ReasoningTrajectory []TrajectoryEntry `json:"reasoning_trajectory"`

	ModifiedFiles map[string]string `json:"modified_files"`
	UnitTests     []string          `json:"unit_tests,omitempty"`

	KnowledgeCache         map[string]string            `json:"knowledge_cache"`
	KnowledgeEffectiveness []knowledge.ApplicationScore `json:"knowledge_effectiveness,omitempty"`
	RetrievedContext       string                       `json:"retrieved_context"`

	// Extra carries keys future sub-teams may introduce without a
	// schema change.
	Extra map[string]any `json:"extra,omitempty"`
}

func newState(obj Objective) *State {
	return &State{
		Objective:           obj,
		ProjectPath:         obj.ProjectPath,
		Task:                obj.Task,
		Constraints:         append([]string(nil), obj.Constraints...),
		QualityGates:        append([]string(nil), obj.QualityGates...),
		ReasoningTrajectory: []TrajectoryEntry{},
		ModifiedFiles:       map[string]string{},
		KnowledgeCache:      map[string]string{},
		Extra:               map[string]any{},
	}
}

// Set routes a write to the matching typed field and rejects keys
// outside the recognized session-state set.
func (s *State) Set(key string, value any) error {
	switch key {
	case "project_path":
		return assign(key, value, &s.ProjectPath)
	case "task":
		return assign(key, value, &s.Task)
	case "constraints":
		return assign(key, value, &s.Constraints)
	case "quality_gates":
		return assign(key, value, &s.QualityGates)
	case "analysis":
		return assign(key, value, &s.Analysis)
	case "architectural_context":
		return assign(key, value, &s.ArchitecturalContext)
	case "system_type":
		return assign(key, value, &s.SystemType)
	case "modification_plan":
		return assign(key, value, &s.ModificationPlan)
	case "modification_result":
		return assign(key, value, &s.ModificationResult)
	case "quality_results":
		return assign(key, value, &s.QualityResults)
	case "sre_results":
		return assign(key, value, &s.SREResults)
	case "modified_files":
		return assign(key, value, &s.ModifiedFiles)
	case "unit_tests":
		return assign(key, value, &s.UnitTests)
	case "retrieved_context":
		return assign(key, value, &s.RetrievedContext)
	default:
		return fmt.Errorf("unrecognized session state key %q", key)
	}
}

// SetExtra stores a non-schema key in the extensibility map.
func (s *State) SetExtra(key string, value any) {
	if s.Extra == nil {
		s.Extra = map[string]any{}
	}
	s.Extra[key] = value
}

func assign[T any](key string, value any, dst *T) error {
	v, ok := value.(T)
	if !ok {
		return fmt.Errorf("session state key %q: cannot assign %T", key, value)
	}
	*dst = v
	return nil
}

// AddReasoningStep appends one trajectory entry. The trajectory is
// append-only; entries are never rewritten.
func (s *State) AddReasoningStep(step, description string, success *bool) {
	s.ReasoningTrajectory = append(s.ReasoningTrajectory, TrajectoryEntry{
		Step:        step,
		Description: description,
		Timestamp:   time.Now().UTC(),
		Success:     success,
	})
}

func boolPtr(b bool) *bool { return &b }
