package knowledge

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Pattern is one expectation the agent output is scored against. Expr
// is tried as a regular expression first; if it does not compile it is
// matched as a case-insensitive substring. Absent inverts the check:
// the expectation is satisfied when the expression does NOT match.
type Pattern struct {
	Name   string
	Expr   string
	Absent bool
}

// ApplicationScore reports how well an output applied the retrieved
// knowledge for its step type.
type ApplicationScore struct {
	OverallScore    float64            `json:"overall_score"`
	PatternScores   map[string]float64 `json:"pattern_scores"`
	MissingPatterns []string           `json:"missing_patterns"`
	Feedback        []string           `json:"feedback"`
}

// defaultPatterns maps step types to the expectations their outputs
// should satisfy. Unknown step types fall back to "general".
var defaultPatterns = map[string][]Pattern{
	"code_generation": {
		{Name: "imports", Expr: `(?m)^\s*(import|from|require|#include)\b`},
		{Name: "error_handling", Expr: `(?i)(try|except|catch|if err|raise|throw)`},
		{Name: "function_definition", Expr: `(?m)(def |func |function |=>)`},
		{Name: "no_placeholders", Expr: `(?i)\b(TODO|FIXME|pass  # stub)\b`, Absent: true},
	},
	"planning": {
		{Name: "ordered_steps", Expr: `(?m)^\s*(\d+[.)]|[-*] )`},
		{Name: "file_references", Expr: `\w+\.(py|js|ts|go|json|md|html|css)`},
		{Name: "action_verbs", Expr: `(?i)(create|modify|delete|add|update|implement)`},
	},
	"multi_agent": {
		{Name: "role_assignment", Expr: `(?i)(agent|role|team|delegat)`},
		{Name: "coordination", Expr: `(?i)(depends|after|then|parallel|sequence)`},
	},
	"general": {
		{Name: "substantive", Expr: `\S{40,}|\n.*\n`},
		{Name: "on_topic", Expr: ""},
	},
}

// Scorer grades agent output against per-step-type expected patterns.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	patterns map[string][]Pattern
}

func NewScorer() *Scorer {
	return &Scorer{patterns: defaultPatterns}
}

// NewScorerWithPatterns overrides the built-in expectations. Step types
// absent from the override keep their defaults.
func NewScorerWithPatterns(override map[string][]Pattern) *Scorer {
	merged := make(map[string][]Pattern, len(defaultPatterns))
	for k, v := range defaultPatterns {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return &Scorer{patterns: merged}
}

// Score evaluates output for the given step type. Each pattern scores
// 1 when matched, 0 when not; the overall score is the mean.
func (s *Scorer) Score(output, stepType string) ApplicationScore {
	patterns, ok := s.patterns[stepType]
	if !ok {
		patterns = s.patterns["general"]
	}

	result := ApplicationScore{
		PatternScores:   make(map[string]float64, len(patterns)),
		MissingPatterns: []string{},
		Feedback:        []string{},
	}
	if len(patterns) == 0 {
		result.OverallScore = 1
		return result
	}

	matched := 0
	for _, p := range patterns {
		hit := matchPattern(output, p.Expr)
		if p.Absent {
			hit = !hit
		}
		if hit {
			result.PatternScores[p.Name] = 1
			matched++
		} else {
			result.PatternScores[p.Name] = 0
			result.MissingPatterns = append(result.MissingPatterns, p.Name)
		}
	}
	sort.Strings(result.MissingPatterns)
	result.OverallScore = float64(matched) / float64(len(patterns))

	for _, name := range result.MissingPatterns {
		result.Feedback = append(result.Feedback,
			fmt.Sprintf("output does not satisfy expected pattern %q for step type %q", name, stepType))
	}
	return result
}

func matchPattern(output, expr string) bool {
	if expr == "" {
		return strings.TrimSpace(output) != ""
	}
	if re, err := regexp.Compile(expr); err == nil {
		return re.MatchString(output)
	}
	return strings.Contains(strings.ToLower(output), strings.ToLower(expr))
}
