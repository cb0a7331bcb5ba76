package operator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevolve/internal/budget"
	"codevolve/internal/config"
	"codevolve/internal/cost"
	"codevolve/internal/hooks"
	"codevolve/internal/llm"
)

func newTestOperator(t *testing.T, client llm.Client, sessionBudget *float64) *Operator {
	t.Helper()

	cfg := config.Default()
	cfg.Budget.SessionBudget = sessionBudget

	registry, err := llm.NewRegistry(cfg.LLM, client)
	require.NoError(t, err)

	estimator := &cost.Estimator{}
	manager := budget.NewManager(cfg.Budget, estimator, budget.ApproverFunc(func(string, cost.Cost) bool {
		return true
	}))

	return New(Config{
		Name:                 "test-operator",
		OperationType:        "unit_test",
		Registry:             registry,
		Manager:              manager,
		Estimator:            estimator,
		Limits:               cfg.Limits,
		AutoApproveThreshold: cfg.Budget.AutoApproveThreshold,
	})
}

func TestExecuteReasoningStepRecordsTrace(t *testing.T) {
	client := llm.NewScriptedClient("the answer")
	op := newTestOperator(t, client, nil)

	require.NoError(t, op.StartPhase("phase-1", "unit test phase"))

	res, err := op.ExecuteReasoningStep(context.Background(), "phase-1", "step-1", "", "short prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "the answer", res.Response)
	assert.NotEmpty(t, res.Model)

	snap := op.Tracker().Snapshot()
	require.Len(t, snap.Phases, 1)
	require.Len(t, snap.Phases[0].Steps, 1)
	assert.Equal(t, "step-1", snap.Phases[0].Steps[0].StepID)
}

func TestExecuteReasoningStepBudgetRefusal(t *testing.T) {
	client := llm.NewScriptedClient("never reached")
	tiny := 0.000001
	op := newTestOperator(t, client, &tiny)

	require.NoError(t, op.StartPhase("phase-1", "phase"))

	// A huge prompt overshoots both the auto-approve threshold and the
	// tiny session budget.
	big := strings.Repeat("budget pressure ", 50_000)
	_, err := op.ExecuteReasoningStep(context.Background(), "phase-1", "step-1", "", big, "")
	require.ErrorIs(t, err, ErrStepRefused)
	assert.Equal(t, 0, client.CallCount(), "refused steps never reach the provider")

	snap := op.Tracker().Snapshot()
	require.Len(t, snap.Phases, 1)
	assert.Empty(t, snap.Phases[0].Steps, "refused steps are not recorded")
}

// Session totals must settle at the provider-reported usage, whether
// the step auto-approved inside the scope or went through the manager.
func TestSessionTotalsSettleAtReportedUsage(t *testing.T) {
	cases := map[string]string{
		"scope auto-approved": "short prompt",
		"manager approved":    strings.Repeat("sustained budget pressure ", 5_000),
	}
	for name, prompt := range cases {
		t.Run(name, func(t *testing.T) {
			client := llm.NewScriptedClient("a response of reasonable length for usage math")
			op := newTestOperator(t, client, nil)
			require.NoError(t, op.StartPhase("phase-1", "phase"))

			res, err := op.ExecuteReasoningStep(context.Background(), "phase-1", "step-1", "", prompt, "")
			require.NoError(t, err)
			require.Greater(t, res.Usage.TotalTokens, 0)

			totals := op.manager.SessionConsumption().Totals
			assert.Equal(t, int64(res.Usage.TotalTokens), totals.Tokens)
			wantAmount := float64(res.Usage.TotalTokens) / 1000 * cost.PricePer1K(res.Model)
			assert.InDelta(t, wantAmount, totals.Amount, 1e-9)
		})
	}
}

func TestValidateReasoningStepRecordsOutcome(t *testing.T) {
	client := llm.NewScriptedClient("{\"ok\": true}")
	op := newTestOperator(t, client, nil)

	require.NoError(t, op.RegisterHook(hooks.Hook{
		ID:   "must-contain-ok",
		Type: hooks.TypeSchema,
		Validate: func(data any) (bool, string) {
			s, _ := data.(string)
			if strings.Contains(s, "ok") {
				return true, ""
			}
			return false, "missing ok"
		},
	}))

	require.NoError(t, op.StartPhase("phase-1", "phase"))
	res, err := op.ExecuteReasoningStep(context.Background(), "phase-1", "step-1", "", "prompt", "")
	require.NoError(t, err)

	passed, feedback := op.ValidateReasoningStep("step-1", res.Response)
	assert.True(t, passed)
	assert.Empty(t, feedback)

	snap := op.Tracker().Snapshot()
	step := snap.Phases[0].Steps[0]
	require.NotNil(t, step.ValidationOutcome)
	assert.True(t, *step.ValidationOutcome)
}

func TestRunReflectiveLoopRetriesWithFeedback(t *testing.T) {
	client := llm.NewScriptedClient("bad draft", "good final")
	op := newTestOperator(t, client, nil)

	require.NoError(t, op.RegisterHook(hooks.Hook{
		ID:   "wants-good",
		Type: hooks.TypeRelevance,
		Validate: func(data any) (bool, string) {
			s, _ := data.(string)
			if strings.Contains(s, "good") {
				return true, ""
			}
			return false, "response must say good"
		},
	}))

	require.NoError(t, op.StartPhase("phase-1", "phase"))

	var sawFeedback bool
	res, passed, err := op.RunReflectiveLoop(context.Background(), "phase-1", "draft",
		func(i int, feedback []string) (string, string) {
			if len(feedback) > 0 {
				sawFeedback = true
				return "", "retry with: " + strings.Join(feedback, "; ")
			}
			return "", "first attempt"
		}, "", hooks.TypeRelevance)

	require.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, "good final", res.Response)
	assert.True(t, sawFeedback, "second prompt carries validation feedback")
	assert.Equal(t, 2, client.CallCount())
}

func TestRunReflectiveLoopGivesUpAfterMaxSteps(t *testing.T) {
	client := llm.NewScriptedClient("bad", "bad", "bad", "bad")
	op := newTestOperator(t, client, nil)

	require.NoError(t, op.RegisterHook(hooks.Hook{
		ID:   "never-passes",
		Type: hooks.TypeRelevance,
		Validate: func(any) (bool, string) { return false, "nope" },
	}))

	require.NoError(t, op.StartPhase("phase-1", "phase"))

	res, passed, err := op.RunReflectiveLoop(context.Background(), "phase-1", "s",
		func(int, []string) (string, string) { return "", "try" }, "", hooks.TypeRelevance)

	require.NoError(t, err)
	assert.False(t, passed)
	require.NotNil(t, res)
	assert.Equal(t, 3, client.CallCount(), "default limit is three attempts")
}
