// Package config holds the unified codevolve configuration.
// Configuration is loaded from .codevolve/config.json in the target
// workspace, optionally overridden by a codevolve.yaml at the workspace
// root and by CODEVOLVE_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelTier names the coarse capability classes the engine schedules on.
type ModelTier string

const (
	TierHighest ModelTier = "highest"
	TierMiddle  ModelTier = "middle"
	TierSmall   ModelTier = "small"
	TierXS      ModelTier = "xs"
)

// Config is the root configuration record.
type Config struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Budget    BudgetConfig    `json:"budget" yaml:"budget"`
	Limits    LimitsConfig    `json:"limits" yaml:"limits"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// LLMConfig selects provider models per tier.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // "genai" or "mock"
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Models maps tier name to a concrete model identifier.
	Models map[ModelTier]string `json:"models" yaml:"models"`

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// MaxRetries bounds transient-error retries in the adapter.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"` // "genai" or "hash"
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Dimensions is fixed per deployment.
	Dimensions int `json:"dimensions" yaml:"dimensions"`
}

// BudgetConfig controls session-wide cost accounting.
type BudgetConfig struct {
	// SessionBudget is an optional cost ceiling. Nil means unlimited;
	// any set value, including zero, is enforced.
	SessionBudget *float64 `json:"session_budget,omitempty" yaml:"session_budget,omitempty"`

	// AutoApproveThreshold is the cost below which approval is implicit.
	AutoApproveThreshold float64 `json:"auto_approve_threshold" yaml:"auto_approve_threshold"`

	// Interactive prompts a human approver above the threshold.
	Interactive bool `json:"interactive" yaml:"interactive"`
}

// LimitsConfig bounds the reflective execution loop.
type LimitsConfig struct {
	MaxReasoningSteps int           `json:"max_reasoning_steps" yaml:"max_reasoning_steps"`
	PhaseTimeout      time.Duration `json:"phase_timeout" yaml:"phase_timeout"`
	WorkerPoolSize    int           `json:"worker_pool_size" yaml:"worker_pool_size"` // 0 = derive from CPUs
}

// KnowledgeConfig controls retrieval.
type KnowledgeConfig struct {
	DBPath           string `json:"db_path" yaml:"db_path"` // relative to .codevolve
	TopK             int    `json:"top_k" yaml:"top_k"`
	SubQueryTopK     int    `json:"sub_query_top_k" yaml:"sub_query_top_k"`
	MaxContextTokens int    `json:"max_context_tokens" yaml:"max_context_tokens"`
	CacheEnabled     bool   `json:"cache_enabled" yaml:"cache_enabled"`
}

// LoggingConfig controls the category logger.
type LoggingConfig struct {
	DebugMode bool `json:"debug_mode" yaml:"debug_mode"`
	Console   bool `json:"console" yaml:"console"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "genai",
			Models: map[ModelTier]string{
				TierHighest: "gemini-2.5-pro",
				TierMiddle:  "gemini-2.5-flash",
				TierSmall:   "gemini-2.5-flash-lite",
				TierXS:      "gemini-2.0-flash-lite",
			},
			CallTimeout: 60 * time.Second,
			MaxRetries:  3,
		},
		Embedding: EmbeddingConfig{
			Provider:   "genai",
			Model:      "gemini-embedding-001",
			Dimensions: 384,
		},
		Budget: BudgetConfig{
			AutoApproveThreshold: 0.001,
		},
		Limits: LimitsConfig{
			MaxReasoningSteps: 3,
			PhaseTimeout:      10 * time.Minute,
		},
		Knowledge: KnowledgeConfig{
			DBPath:           "knowledge.db",
			TopK:             5,
			SubQueryTopK:     3,
			MaxContextTokens: 4000,
			CacheEnabled:     true,
		},
		Logging: LoggingConfig{Console: true},
	}
}

// Load reads configuration for a workspace, applying JSON config, the
// optional YAML override, and environment variables in that order.
func Load(workspace string) (Config, error) {
	cfg := Default()

	jsonPath := filepath.Join(workspace, ".codevolve", "config.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	yamlPath := filepath.Join(workspace, "codevolve.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment variables on the loaded config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CODEVOLVE_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CODEVOLVE_SESSION_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Budget.SessionBudget = &f
		}
	}
	if v := os.Getenv("CODEVOLVE_DEBUG"); v != "" {
		cfg.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "genai", "mock":
	default:
		errs = append(errs, fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider))
	}
	for _, tier := range []ModelTier{TierHighest, TierMiddle, TierSmall, TierXS} {
		if c.LLM.Models[tier] == "" {
			errs = append(errs, fmt.Errorf("no model configured for tier %s", tier))
		}
	}
	if c.Budget.AutoApproveThreshold < 0 {
		errs = append(errs, fmt.Errorf("auto_approve_threshold must be non-negative"))
	}
	if c.Budget.SessionBudget != nil && *c.Budget.SessionBudget < 0 {
		errs = append(errs, fmt.Errorf("session_budget must be non-negative"))
	}
	if c.Limits.MaxReasoningSteps < 1 {
		errs = append(errs, fmt.Errorf("max_reasoning_steps must be at least 1"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as indented JSON to the workspace.
func (c Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".codevolve")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}
