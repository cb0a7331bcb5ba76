// Package hooks implements the named, prioritized validation hooks run
// after each reasoning step. Hooks are registered per operator and
// filtered by type tag at execution time.
package hooks

import (
	"fmt"
	"sort"
	"sync"
)

// HookType tags hooks so callers can select a subset per step.
type HookType string

const (
	TypeSyntax    HookType = "syntax"
	TypeSchema    HookType = "schema"
	TypeRelevance HookType = "relevance"
	TypeBudget    HookType = "budget"
)

// Validator inspects step output and reports (ok, feedback).
type Validator func(data any) (bool, string)

// Hook is a named, prioritized, typed validator. Larger priority runs
// earlier.
type Hook struct {
	ID       string
	Type     HookType
	Priority int
	Validate Validator
}

// Result is one hook's verdict.
type Result struct {
	Outcome  bool   `json:"outcome"`
	Feedback string `json:"feedback"`
}

// Registry holds hooks keyed by id.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register adds or replaces a hook.
func (r *Registry) Register(h Hook) error {
	if h.ID == "" {
		return fmt.Errorf("hook id required")
	}
	if h.Validate == nil {
		return fmt.Errorf("hook %s has no validator", h.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[h.ID] = h
	return nil
}

// Unregister removes a hook by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hooks, id)
}

// Run executes the hooks matching the given types (all hooks when types
// is empty), in priority-descending order, and returns per-hook results.
func (r *Registry) Run(data any, types ...HookType) map[string]Result {
	r.mu.RLock()
	selected := make([]Hook, 0, len(r.hooks))
	for _, h := range r.hooks {
		if len(types) == 0 || containsType(types, h.Type) {
			selected = append(selected, h)
		}
	}
	r.mu.RUnlock()

	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Priority != selected[j].Priority {
			return selected[i].Priority > selected[j].Priority
		}
		return selected[i].ID < selected[j].ID
	})

	results := make(map[string]Result, len(selected))
	for _, h := range selected {
		ok, feedback := h.Validate(data)
		results[h.ID] = Result{Outcome: ok, Feedback: feedback}
	}
	return results
}

// AllPass reports whether every included hook returned true. An empty
// result set passes vacuously.
func AllPass(results map[string]Result) bool {
	for _, res := range results {
		if !res.Outcome {
			return false
		}
	}
	return true
}

// FailureFeedback joins the feedback of failing hooks for prompt reuse.
func FailureFeedback(results map[string]Result) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var feedback []string
	for _, id := range ids {
		if res := results[id]; !res.Outcome && res.Feedback != "" {
			feedback = append(feedback, fmt.Sprintf("%s: %s", id, res.Feedback))
		}
	}
	return feedback
}

func containsType(types []HookType, t HookType) bool {
	for _, ht := range types {
		if ht == t {
			return true
		}
	}
	return false
}
