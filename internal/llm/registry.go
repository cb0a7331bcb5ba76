package llm

import (
	"fmt"

	"codevolve/internal/config"
)

// Registry maps model tiers to concrete model identifiers and carries
// the shared provider client. Injected everywhere a model handle is
// needed; nothing imports a global client.
type Registry struct {
	client Client
	models map[config.ModelTier]string
}

// NewRegistry builds a registry from config. The caller chooses the
// client (Gemini in production, a scripted client in tests).
func NewRegistry(cfg config.LLMConfig, client Client) (*Registry, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client required")
	}
	models := make(map[config.ModelTier]string, len(cfg.Models))
	for tier, model := range cfg.Models {
		models[tier] = model
	}
	return &Registry{client: client, models: models}, nil
}

// ModelFor resolves a tier to its model identifier, falling back down
// the tier ladder when a tier is unconfigured.
func (r *Registry) ModelFor(tier config.ModelTier) string {
	if m, ok := r.models[tier]; ok && m != "" {
		return m
	}
	for _, fallback := range []config.ModelTier{config.TierMiddle, config.TierSmall, config.TierHighest, config.TierXS} {
		if m, ok := r.models[fallback]; ok && m != "" {
			return m
		}
	}
	return ""
}

// Client returns the provider client.
func (r *Registry) Client() Client { return r.client }

// Provider returns the underlying provider name.
func (r *Registry) Provider() string { return r.client.Provider() }
