package validate

// Report is the shared result shape of the quality and operational
// validators.
type Report struct {
	Passed      bool            `json:"passed"`
	Issues      []string        `json:"issues"`
	GateResults map[string]bool `json:"gate_results"`
	Summary     map[string]any  `json:"summary"`
}

func newReport() Report {
	return Report{
		Passed:      true,
		Issues:      []string{},
		GateResults: map[string]bool{},
		Summary:     map[string]any{},
	}
}

func (r *Report) fail(gate string, issues ...string) {
	r.Passed = false
	r.GateResults[gate] = false
	r.Issues = append(r.Issues, issues...)
}

func (r *Report) pass(gate string) {
	if _, exists := r.GateResults[gate]; !exists {
		r.GateResults[gate] = true
	}
}
