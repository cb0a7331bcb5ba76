// Package budget implements session-wide cost accounting and the scoped
// soft budgets that gate individual reasoning steps.
package budget

import (
	"errors"
	"fmt"
	"sync"

	"codevolve/internal/cost"
	"codevolve/internal/logging"

	"codevolve/internal/config"
)

// ErrBudgetDenied is returned when an approval request is refused.
var ErrBudgetDenied = errors.New("budget denied")

// Approver decides requests whose estimated cost exceeds the
// auto-approve threshold. Implementations may prompt a human or apply a
// programmatic policy.
type Approver interface {
	Approve(description string, estimated cost.Cost) bool
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(description string, estimated cost.Cost) bool

// Approve implements Approver.
func (f ApproverFunc) Approve(description string, estimated cost.Cost) bool {
	return f(description, estimated)
}

// ProviderStats aggregates consumption for one provider or model.
type ProviderStats struct {
	Calls  int       `json:"calls"`
	Totals cost.Cost `json:"totals"`
}

// Consumption is a snapshot of session accounting.
type Consumption struct {
	Totals     cost.Cost                `json:"totals"`
	ByProvider map[string]ProviderStats `json:"by_provider"`
	ByModel    map[string]ProviderStats `json:"by_model"`
}

// Manager is the session-scoped budget authority. All accruals are
// atomic under its lock; rejecting a request never mutates counters.
type Manager struct {
	mu sync.Mutex

	estimator *cost.Estimator
	cfg       config.BudgetConfig
	approver  Approver

	consumed   cost.Cost
	byProvider map[string]ProviderStats
	byModel    map[string]ProviderStats
}

// NewManager creates a budget manager. A nil approver denies everything
// above the auto-approve threshold.
func NewManager(cfg config.BudgetConfig, estimator *cost.Estimator, approver Approver) *Manager {
	if estimator == nil {
		estimator = cost.NewEstimator()
	}
	return &Manager{
		estimator:  estimator,
		cfg:        cfg,
		approver:   approver,
		byProvider: make(map[string]ProviderStats),
		byModel:    make(map[string]ProviderStats),
	}
}

// Estimate delegates to the cost estimator.
func (m *Manager) Estimate(prompt, modelID string) cost.Cost {
	return m.estimator.Estimate(prompt, modelID)
}

// RequestApproval gates one prospective LLM call. Approved requests
// accrue their estimate immediately; ReconcileUsage trues them up after
// the real call reports usage.
func (m *Manager) RequestApproval(description, prompt, modelID string) (bool, error) {
	estimated := m.estimator.Estimate(prompt, modelID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// The ceiling binds before the auto-approve threshold: a capped
	// session denies even trivially cheap calls once the cap is hit.
	if err := m.checkCeilingLocked(description, estimated); err != nil {
		return false, err
	}

	if estimated.Amount < m.cfg.AutoApproveThreshold {
		m.accrueLocked(modelID, estimated)
		return true, nil
	}

	if m.approver == nil || !m.approver.Approve(description, estimated) {
		logging.Get(logging.CategoryBudget).Infof("approver refused %q (%.6f)", description, estimated.Amount)
		return false, fmt.Errorf("%w: approver refused", ErrBudgetDenied)
	}

	m.accrueLocked(modelID, estimated)
	return true, nil
}

// Accrue records consumption directly, bypassing the approval gate.
// Used by the phase tracker when recording completed reasoning steps.
func (m *Manager) Accrue(modelID string, c cost.Cost) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accrueLocked(modelID, c)
}

// Reserve accrues an estimate after checking the session ceiling.
// Scope-local approvals use it so the ceiling binds every path.
func (m *Manager) Reserve(description, modelID string, estimated cost.Cost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkCeilingLocked(description, estimated); err != nil {
		return err
	}
	m.accrueLocked(modelID, estimated)
	return nil
}

func (m *Manager) checkCeilingLocked(description string, estimated cost.Cost) error {
	if m.cfg.SessionBudget != nil && m.consumed.Amount+estimated.Amount > *m.cfg.SessionBudget {
		logging.Get(logging.CategoryBudget).Warnf(
			"denied %q: estimated %.6f would exceed session budget %.6f (consumed %.6f)",
			description, estimated.Amount, *m.cfg.SessionBudget, m.consumed.Amount)
		return fmt.Errorf("%w: session budget exceeded", ErrBudgetDenied)
	}
	return nil
}

func (m *Manager) accrueLocked(modelID string, c cost.Cost) {
	m.consumed = m.consumed.Add(c)

	stats := m.byModel[modelID]
	stats.Calls++
	stats.Totals = stats.Totals.Add(c)
	m.byModel[modelID] = stats
}

// ReconcileUsage replaces an earlier estimate with actual usage reported
// by the provider. The delta may be negative when the estimate was high.
func (m *Manager) ReconcileUsage(provider, modelID string, estimated, actual cost.Cost) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delta := cost.Cost{
		Tokens: actual.Tokens - estimated.Tokens,
		Amount: actual.Amount - estimated.Amount,
	}
	m.consumed = m.consumed.Add(delta)
	if m.consumed.Tokens < 0 {
		m.consumed.Tokens = 0
	}
	if m.consumed.Amount < 0 {
		m.consumed.Amount = 0
	}

	stats := m.byProvider[provider]
	stats.Calls++
	stats.Totals = stats.Totals.Add(actual)
	m.byProvider[provider] = stats

	mStats := m.byModel[modelID]
	mStats.Totals = mStats.Totals.Add(delta)
	m.byModel[modelID] = mStats
}

// SessionConsumption returns a snapshot of the session counters.
func (m *Manager) SessionConsumption() Consumption {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Consumption{
		Totals:     m.consumed,
		ByProvider: copyStats(m.byProvider),
		ByModel:    copyStats(m.byModel),
	}
}

func copyStats(src map[string]ProviderStats) map[string]ProviderStats {
	dst := make(map[string]ProviderStats, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
