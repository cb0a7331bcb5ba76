package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevolve/internal/cost"
)

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	mk := func(id string, prio int) Hook {
		return Hook{ID: id, Type: TypeRelevance, Priority: prio, Validate: func(any) (bool, string) {
			order = append(order, id)
			return true, ""
		}}
	}
	require.NoError(t, r.Register(mk("low", 1)))
	require.NoError(t, r.Register(mk("high", 10)))
	require.NoError(t, r.Register(mk("mid", 5)))

	results := r.Run("data")
	assert.Equal(t, []string{"high", "mid", "low"}, order)
	assert.True(t, AllPass(results))
}

func TestRegistryTypeFilter(t *testing.T) {
	r := NewRegistry()
	ran := map[string]bool{}
	mk := func(id string, ht HookType) Hook {
		return Hook{ID: id, Type: ht, Priority: 1, Validate: func(any) (bool, string) {
			ran[id] = true
			return true, ""
		}}
	}
	r.Register(mk("syn", TypeSyntax))
	r.Register(mk("sch", TypeSchema))

	results := r.Run("data", TypeSyntax)
	assert.True(t, ran["syn"])
	assert.False(t, ran["sch"])
	assert.Len(t, results, 1)
}

func TestAllPassFailsOnAnyFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(Hook{ID: "ok", Type: TypeSyntax, Priority: 2, Validate: func(any) (bool, string) { return true, "" }})
	r.Register(Hook{ID: "bad", Type: TypeSyntax, Priority: 1, Validate: func(any) (bool, string) { return false, "nope" }})

	results := r.Run("data")
	assert.False(t, AllPass(results))
	assert.Equal(t, []string{"bad: nope"}, FailureFeedback(results))
}

func TestRegisterRejectsInvalidHooks(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Hook{Type: TypeSyntax, Validate: func(any) (bool, string) { return true, "" }}))
	assert.Error(t, r.Register(Hook{ID: "noop", Type: TypeSyntax}))
}

func TestPythonSyntaxHook(t *testing.T) {
	h := SyntaxHook("python")

	ok, _ := h.Validate("def add(a, b):\n    return a + b\n")
	assert.True(t, ok)

	ok, feedback := h.Validate("def broken(a\n    return a\n")
	assert.False(t, ok)
	assert.Contains(t, feedback, "syntax error")
}

func TestJavaScriptSyntaxHook(t *testing.T) {
	ok, _ := CheckSyntax("javascript", "function add(a, b) { return a + b; }")
	assert.True(t, ok)

	ok, _ = CheckSyntax("js", "function broken( { return")
	assert.False(t, ok)
}

func TestGoSyntaxHook(t *testing.T) {
	ok, _ := CheckSyntax("go", "package main\n\nfunc add(a, b int) int { return a + b }\n")
	assert.True(t, ok)

	ok, feedback := CheckSyntax("go", "package main\n\nfunc broken( {")
	assert.False(t, ok)
	assert.Contains(t, feedback, "syntax error")
}

func TestUnknownLanguagePasses(t *testing.T) {
	ok, feedback := CheckSyntax("cobol", "MOVE A TO B.")
	assert.True(t, ok)
	assert.Contains(t, feedback, "skipped")
}

func TestSchemaHook(t *testing.T) {
	schema := `{
		"type": "object",
		"required": ["file", "action"],
		"properties": {
			"file": {"type": "string"},
			"action": {"enum": ["create", "modify", "delete"]}
		}
	}`
	h := SchemaHook("plan_step_schema", schema)

	ok, _ := h.Validate(`{"file": "main.py", "action": "create"}`)
	assert.True(t, ok)

	ok, feedback := h.Validate(`{"file": "main.py", "action": "explode"}`)
	assert.False(t, ok)
	assert.Contains(t, feedback, "schema violations")

	ok, _ = h.Validate(map[string]any{"file": "x.py", "action": "modify"})
	assert.True(t, ok, "Go values validate through the Go loader")
}

func TestCostBoundHook(t *testing.T) {
	est := cost.NewEstimator()
	h := CostBoundHook(0.000001, est, "gemini-2.5-pro")

	big := make([]byte, 100_000)
	for i := range big {
		big[i] = 'x'
	}
	ok, feedback := h.Validate(string(big))
	assert.False(t, ok)
	assert.Contains(t, feedback, "exceeds bound")

	hLoose := CostBoundHook(10, est, "gemini-2.5-pro")
	ok, _ = hLoose.Validate("short")
	assert.True(t, ok)
}
