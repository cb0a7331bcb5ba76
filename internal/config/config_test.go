package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFilesReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "genai", cfg.LLM.Provider)
	assert.Equal(t, 0.001, cfg.Budget.AutoApproveThreshold)
}

func TestLoadJSONThenYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".codevolve"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".codevolve", "config.json"),
		[]byte(`{"budget":{"session_budget":5.0,"auto_approve_threshold":0.001},"knowledge":{"top_k":7,"cache_enabled":true}}`),
		0644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "codevolve.yaml"),
		[]byte("budget:\n  session_budget: 2.5\n  auto_approve_threshold: 0.001\n"),
		0644,
	))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Budget.SessionBudget)
	assert.Equal(t, 2.5, *cfg.Budget.SessionBudget) // yaml wins
	assert.Equal(t, 7, cfg.Knowledge.TopK)          // json preserved
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CODEVOLVE_SESSION_BUDGET", "1.25")
	t.Setenv("CODEVOLVE_PROVIDER", "mock")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, cfg.Budget.SessionBudget)
	assert.Equal(t, 1.25, *cfg.Budget.SessionBudget)
	assert.Equal(t, "mock", cfg.LLM.Provider)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "carrier-pigeon"
	cfg.Limits.MaxReasoningSteps = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "max_reasoning_steps")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	ceiling := 9.5
	cfg.Budget.SessionBudget = &ceiling
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded.Budget.SessionBudget)
	assert.Equal(t, 9.5, *loaded.Budget.SessionBudget)
}
