package heal

import "strings"

// Healing strategies, in detection priority order.
const (
	StrategyAutoFixSyntax   = "auto_fix_syntax"
	StrategyFixTestLogic    = "fix_test_logic"
	StrategyReplanPerf      = "replan_performance"
	StrategyHumanEscalation = "human_escalation"
	StrategyGenericRetry    = "generic_retry"
	StrategyNoAction        = "no_action"
)

// Analysis is the self-healing controller's diagnosis of a failed
// validation round.
type Analysis struct {
	Strategy         string   `json:"strategy"`
	Confidence       float64  `json:"confidence"`
	AutoRecoverable  bool     `json:"auto_recoverable"`
	Issues           []string `json:"issues"`
	PatternsDetected []string `json:"patterns_detected"`
}

type strategyRule struct {
	strategy        string
	confidence      float64
	autoRecoverable bool
	tokens          []string
}

var strategyRules = []strategyRule{
	{StrategyAutoFixSyntax, 0.9, true, []string{"syntax error", "indentation", "missing import", "undefined name"}},
	{StrategyFixTestLogic, 0.8, true, []string{"test failed", "assertion", "expected", "actual"}},
	{StrategyReplanPerf, 0.7, false, []string{"performance", "timeout", "memory", "optimization"}},
	{StrategyHumanEscalation, 0.95, false, []string{"security", "vulnerability", "privilege", "injection"}},
}

// AnalyzeFailurePatterns picks a recovery strategy by keyword matching
// over the concatenated issue strings. No issues means no action; an
// issue set matching no known pattern gets a generic retry.
func AnalyzeFailurePatterns(issues []string) Analysis {
	if len(issues) == 0 {
		return Analysis{
			Strategy:        StrategyNoAction,
			Confidence:      1,
			AutoRecoverable: true,
			Issues:          []string{},
		}
	}

	blob := strings.ToLower(strings.Join(issues, "\n"))
	for _, rule := range strategyRules {
		var detected []string
		for _, tok := range rule.tokens {
			if strings.Contains(blob, tok) {
				detected = append(detected, tok)
			}
		}
		if len(detected) > 0 {
			return Analysis{
				Strategy:         rule.strategy,
				Confidence:       rule.confidence,
				AutoRecoverable:  rule.autoRecoverable,
				Issues:           issues,
				PatternsDetected: detected,
			}
		}
	}

	return Analysis{
		Strategy:   StrategyGenericRetry,
		Confidence: 0.5,
		Issues:     issues,
	}
}
