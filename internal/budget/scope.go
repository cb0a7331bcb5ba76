package budget

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"codevolve/internal/config"
	"codevolve/internal/cost"
)

// ErrScopeClosed is returned by requests against a closed scope.
var ErrScopeClosed = errors.New("budget scope closed")

// ModelResolver maps a tier to a concrete model identifier.
type ModelResolver interface {
	ModelFor(tier config.ModelTier) string
}

// ScopeConfig configures a budget scope.
type ScopeConfig struct {
	ScopeID       string // generated when empty
	ParentScopeID string
	Tier          config.ModelTier

	// Caps; zero means uncapped.
	MaxTokens int64
	MaxCost   float64

	// AutoApproveThreshold below which requests accrue without asking
	// the manager.
	AutoApproveThreshold float64
}

// Scope is a soft budget around one reasoning step or a group of them.
// Scopes form a forest through ParentScopeID; closing a parent does not
// close its children.
type Scope struct {
	mu sync.Mutex

	ScopeID       string
	ParentScopeID string
	Tier          config.ModelTier

	maxTokens int64
	maxCost   float64
	threshold float64

	consumed cost.Cost
	active   bool

	manager  *Manager
	resolver ModelResolver
}

// NewScope creates an active scope bound to the session manager.
func NewScope(cfg ScopeConfig, manager *Manager, resolver ModelResolver) *Scope {
	id := cfg.ScopeID
	if id == "" {
		id = uuid.NewString()
	}
	tier := cfg.Tier
	if tier == "" {
		tier = config.TierMiddle
	}
	return &Scope{
		ScopeID:       id,
		ParentScopeID: cfg.ParentScopeID,
		Tier:          tier,
		maxTokens:     cfg.MaxTokens,
		maxCost:       cfg.MaxCost,
		threshold:     cfg.AutoApproveThreshold,
		active:        true,
		manager:       manager,
		resolver:      resolver,
	}
}

// Child creates a nested scope inheriting manager, resolver, and
// threshold, with its own tier and caps.
func (s *Scope) Child(tier config.ModelTier, maxTokens int64, maxCost float64) *Scope {
	if tier == "" {
		tier = s.Tier
	}
	return NewScope(ScopeConfig{
		ParentScopeID:        s.ScopeID,
		Tier:                 tier,
		MaxTokens:            maxTokens,
		MaxCost:              maxCost,
		AutoApproveThreshold: s.threshold,
	}, s.manager, s.resolver)
}

// Model resolves the scope tier to a concrete model identifier.
func (s *Scope) Model() string {
	return s.resolver.ModelFor(s.Tier)
}

// RequestApproval gates one prospective call against the scope caps and,
// above the threshold, the session manager. Refusal leaves the scope's
// accumulators untouched.
func (s *Scope) RequestApproval(prompt, description string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false, ErrScopeClosed
	}

	modelID := s.resolver.ModelFor(s.Tier)
	estimated := s.manager.Estimate(prompt, modelID)

	if s.maxTokens > 0 && s.consumed.Tokens+estimated.Tokens > s.maxTokens {
		return false, fmt.Errorf("%w: scope %s token cap %d", ErrBudgetDenied, s.ScopeID, s.maxTokens)
	}
	if s.maxCost > 0 && s.consumed.Amount+estimated.Amount > s.maxCost {
		return false, fmt.Errorf("%w: scope %s cost cap %.6f", ErrBudgetDenied, s.ScopeID, s.maxCost)
	}

	if estimated.Amount <= s.threshold {
		// Reserve against the session too, so every approval path puts
		// exactly one prompt estimate on the manager's books and the
		// session ceiling binds local approvals as well.
		if err := s.manager.Reserve(description, modelID, estimated); err != nil {
			return false, err
		}
		s.consumed = s.consumed.Add(estimated)
		return true, nil
	}

	ok, err := s.manager.RequestApproval(description, prompt, modelID)
	if !ok {
		return false, err
	}

	s.consumed = s.consumed.Add(estimated)
	return true, nil
}

// Consumed returns the scope's local accumulators.
func (s *Scope) Consumed() cost.Cost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

// Active reports whether the scope still accepts requests.
func (s *Scope) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close deactivates the scope. Its accumulated data remains readable.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
