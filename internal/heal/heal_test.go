package heal

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeFailurePatterns(t *testing.T) {
	cases := []struct {
		name     string
		issues   []string
		strategy string
		auto     bool
	}{
		{"no issues", nil, StrategyNoAction, true},
		{"syntax", []string{"syntax error in app.py near def f("}, StrategyAutoFixSyntax, true},
		{"indentation", []string{"IndentationError: unexpected indent"}, StrategyAutoFixSyntax, true},
		{"tests", []string{"test failed: expected 3, actual 4"}, StrategyFixTestLogic, true},
		{"performance", []string{"performance timeout in loop"}, StrategyReplanPerf, false},
		{"security", []string{"possible SQL injection in query builder"}, StrategyHumanEscalation, false},
		{"other", []string{"something vague went wrong"}, StrategyGenericRetry, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := AnalyzeFailurePatterns(tc.issues)
			assert.Equal(t, tc.strategy, a.Strategy)
			assert.Equal(t, tc.auto, a.AutoRecoverable)
		})
	}
}

func TestAnalyzePriorityOrder(t *testing.T) {
	// Syntax patterns win over later rows when both are present.
	a := AnalyzeFailurePatterns([]string{"syntax error after performance timeout"})
	assert.Equal(t, StrategyAutoFixSyntax, a.Strategy)
	assert.Contains(t, a.PatternsDetected, "syntax error")
}

func TestAutoFixSyntaxRewrites(t *testing.T) {
	c := NewController(nil, nil)

	out, err := c.ExecuteSelfHealing(context.Background(), Request{
		Task:     "fix it",
		Language: "python",
		ModifiedFiles: map[string]string{
			"broken.py": "def f(x)\n return x",
			"fine.py":   "def g():\n    return 1\n",
		},
		Issues: []string{"syntax error in broken.py"},
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, []string{"broken.py"}, out.RewrittenFiles)
	assert.Contains(t, out.ModifiedFiles["broken.py"], "def f(x):")
}

func TestFixTestLogicWritesNotes(t *testing.T) {
	c := NewController(nil, nil)
	root := t.TempDir()

	out, err := c.ExecuteSelfHealing(context.Background(), Request{
		Task:        "fix tests",
		ProjectPath: root,
		Language:    "python",
		ModifiedFiles: map[string]string{
			"test_math.py": "def test_add():\n    assert add(1, 2) == 3\n",
			"math.py":      "def add(a, b):\n    return a + b\n",
		},
		Issues: []string{"test failed: assertion expected 3 actual 4"},
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	require.NotEmpty(t, out.NotesPath)

	notes, err := os.ReadFile(out.NotesPath)
	require.NoError(t, err)
	assert.Contains(t, string(notes), "test_math.py")
	assert.NotContains(t, string(notes), "- math.py\n", "only test files are flagged")
}

func TestHumanEscalationLeavesContentUnchanged(t *testing.T) {
	c := NewController(nil, nil)

	files := map[string]string{"auth.py": "def login(): pass\n"}
	out, err := c.ExecuteSelfHealing(context.Background(), Request{
		Task:          "harden auth",
		Language:      "python",
		ModifiedFiles: files,
		Issues:        []string{"privilege escalation vulnerability in login"},
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Contains(t, out.Escalation, "human review required")
	assert.Equal(t, files, out.ModifiedFiles)
	assert.Nil(t, out.NewPlan)
}

func TestGenericRetryWithoutGeneratorIsNotApplied(t *testing.T) {
	c := NewController(nil, nil)

	out, err := c.ExecuteSelfHealing(context.Background(), Request{
		Task:          "do the thing",
		Language:      "python",
		ModifiedFiles: map[string]string{},
		Issues:        []string{"something vague went wrong"},
	})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Nil(t, out.NewPlan)
}
