package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPlan is returned when the planner output cannot be turned
// into a usable plan after all reasoning attempts.
var ErrInvalidPlan = errors.New("invalid modification plan")

var validActions = map[string]struct{}{
	"create": {},
	"modify": {},
	"delete": {},
}

// Step is one unit of a modification plan.
type Step struct {
	File              string `json:"file"`
	Action            string `json:"action"`
	What              string `json:"what"`
	How               string `json:"how"`
	ArchitecturalNote string `json:"architectural_note,omitempty"`
}

// Plan is the validated output of the plan generator.
type Plan struct {
	Steps    []Step   `json:"steps"`
	Warnings []string `json:"warnings,omitempty"`
}

// ExtractJSONArray pulls a JSON array out of model output: first from
// a fenced code block, then from the outermost bracket slice.
func ExtractJSONArray(text string) (string, error) {
	if fenced := fencedBlock(text); fenced != "" {
		if start := strings.Index(fenced, "["); start >= 0 {
			if end := strings.LastIndex(fenced, "]"); end > start {
				return fenced[start : end+1], nil
			}
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON array in planner output", ErrInvalidPlan)
	}
	return text[start : end+1], nil
}

func fencedBlock(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return ""
	}
	rest := text[open+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		// Drop the language tag line ("json", "python", ...).
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// ParseSteps extracts and validates the planner's step array. Every
// step must carry non-empty file, action, what and how fields, with a
// recognized action.
func ParseSteps(text string) ([]Step, error) {
	raw, err := ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}

	// An empty array is a valid plan: nothing to change.
	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	for i, s := range steps {
		if s.File == "" || s.Action == "" || s.What == "" || s.How == "" {
			return nil, fmt.Errorf("%w: step %d is missing required fields", ErrInvalidPlan, i)
		}
		if _, ok := validActions[strings.ToLower(s.Action)]; !ok {
			return nil, fmt.Errorf("%w: step %d has unknown action %q", ErrInvalidPlan, i, s.Action)
		}
		steps[i].Action = strings.ToLower(s.Action)
	}
	return steps, nil
}
