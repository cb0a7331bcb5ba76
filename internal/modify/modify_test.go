package modify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"codevolve/internal/budget"
	"codevolve/internal/config"
	"codevolve/internal/cost"
	"codevolve/internal/llm"
	"codevolve/internal/operator"
	"codevolve/internal/plan"
)

// The executor fans steps out to a bounded worker pool; leaked
// goroutines here mean a wave failed to drain.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "x = 1", StripFences("```python\nx = 1\n```"))
	assert.Equal(t, "x = 1", StripFences("```\nx = 1\n```"))
	assert.Equal(t, "x = 1", StripFences("x = 1"))
}

func TestSanitizePassThrough(t *testing.T) {
	res := Sanitize("python", "def add(a, b):\n    return a + b\n")
	assert.False(t, res.AutoFixed)
	assert.False(t, res.FallbackApplied)
}

func TestSanitizeFixesMissingColon(t *testing.T) {
	res := Sanitize("python", "def f(x)\n return x")
	assert.True(t, res.AutoFixed)
	assert.False(t, res.FallbackApplied)
	assert.Contains(t, res.Content, "def f(x):")
	assert.Contains(t, res.Content, "    return x")
}

func TestSanitizeFallsBackToTemplate(t *testing.T) {
	res := Sanitize("python", "def broken((((")
	assert.True(t, res.FallbackApplied)
	assert.Equal(t, "def main():\n    pass\n", res.Content)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"def add(a, b):\n    return a + b\n",
		"```python\ndef f(x)\n return x\n```",
		"def broken((((",
	}
	for _, in := range inputs {
		once := Sanitize("python", in)
		twice := Sanitize("python", once.Content)
		assert.Equal(t, once.Content, twice.Content, in)
		assert.False(t, twice.AutoFixed)
		assert.False(t, twice.FallbackApplied)
	}
}

func TestApplyPatch(t *testing.T) {
	original := "def add(a, b):\n    return a + b\n"
	updated := "def add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n"

	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake(original, updated))
	require.True(t, LooksLikePatch(patchText))

	got, err := ApplyPatch(original, patchText)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = ApplyPatch(original, "not a patch at all")
	assert.Error(t, err)
}

func TestLooksLikePatch(t *testing.T) {
	assert.True(t, LooksLikePatch("@@ -1,2 +1,3 @@\n def f():\n+    pass"))
	assert.False(t, LooksLikePatch("def f():\n    pass"))
}

func TestBuildWaves(t *testing.T) {
	steps := []plan.Step{
		{File: "a.py"}, {File: "b.py"}, {File: "a.py"}, {File: "c.py"},
	}
	waves := buildWaves(steps)
	require.Len(t, waves, 2)
	assert.Len(t, waves[0], 2)
	assert.Equal(t, "a.py", waves[1][0].File)
	assert.Equal(t, "c.py", waves[1][1].File)
}

func newModifyOperator(t *testing.T, client llm.Client) *operator.Operator {
	t.Helper()
	cfg := config.Default()
	registry, err := llm.NewRegistry(cfg.LLM, client)
	require.NoError(t, err)
	estimator := &cost.Estimator{}
	manager := budget.NewManager(cfg.Budget, estimator, budget.ApproverFunc(func(string, cost.Cost) bool {
		return true
	}))
	return operator.New(operator.Config{
		Name:                 "modifier",
		OperationType:        "modification",
		Registry:             registry,
		Manager:              manager,
		Estimator:            estimator,
		Limits:               cfg.Limits,
		AutoApproveThreshold: cfg.Budget.AutoApproveThreshold,
	})
}

func TestExecutePlan(t *testing.T) {
	client := llm.NewScriptedClient()
	client.OnMatch(func(r llm.Request) bool {
		return strings.Contains(r.Messages[len(r.Messages)-1].Content, "FILE: math.py")
	}, "def add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n")
	client.OnMatch(func(r llm.Request) bool {
		return strings.Contains(r.Messages[len(r.Messages)-1].Content, "FILE: util.py")
	}, "def noop():\n    pass\n")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "math.py"), []byte("def add(a, b):\n    return a + b\n"), 0o644))

	e := NewExecutor(newModifyOperator(t, client), nil, 0)
	res, err := e.Execute(context.Background(), plan.Plan{Steps: []plan.Step{
		{File: "math.py", Action: "modify", What: "add docstring", How: "triple-quoted"},
		{File: "util.py", Action: "create", What: "noop helper", How: "empty function"},
		{File: "legacy.py", Action: "delete", What: "drop legacy module", How: "remove file"},
	}}, root, "python")

	require.NoError(t, err)
	assert.Nil(t, res.FailedStep)
	assert.Contains(t, res.ModifiedFiles["math.py"], `"""Add two numbers."""`)
	assert.Contains(t, res.ModifiedFiles, "util.py")
	assert.Equal(t, []string{"legacy.py"}, res.FilesToDelete)
}

func TestExecuteStopsOnFailedStep(t *testing.T) {
	// An exhausted script makes the second reasoning step error out.
	client := llm.NewScriptedClient("def ok():\n    pass\n")

	e := NewExecutor(newModifyOperator(t, client), nil, 0)
	res, err := e.Execute(context.Background(), plan.Plan{Steps: []plan.Step{
		{File: "a.py", Action: "create", What: "first", How: "x"},
		{File: "a.py", Action: "modify", What: "second", How: "y"},
	}}, t.TempDir(), "python")

	require.NoError(t, err)
	require.NotNil(t, res.FailedStep)
	assert.Equal(t, "second", res.FailedStep.What)
	assert.Contains(t, res.ModifiedFiles, "a.py", "work before the failure is preserved")
}

func TestExecuteAppliesPatchOutput(t *testing.T) {
	original := "def add(a, b):\n    return a + b\n"
	updated := "def add(a, b):\n    \"\"\"Add two numbers.\"\"\"\n    return a + b\n"
	dmp := diffmatchpatch.New()
	patchText := dmp.PatchToText(dmp.PatchMake(original, updated))

	client := llm.NewScriptedClient(patchText)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "math.py"), []byte(original), 0o644))

	e := NewExecutor(newModifyOperator(t, client), nil, 0)
	res, err := e.Execute(context.Background(), plan.Plan{Steps: []plan.Step{
		{File: "math.py", Action: "modify", What: "add docstring", How: "patch"},
	}}, root, "python")

	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(updated), strings.TrimSpace(res.ModifiedFiles["math.py"]))
}

func TestNewExecutorHonorsConfiguredWorkers(t *testing.T) {
	e := NewExecutor(nil, nil, 4)
	assert.Equal(t, 4, e.workers)

	derived := NewExecutor(nil, nil, 0)
	assert.GreaterOrEqual(t, derived.workers, 2)
	assert.LessOrEqual(t, derived.workers, 16)
}
