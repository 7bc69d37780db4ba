package harness

import "github.com/roach88/wxzimport/internal/engine"

// Dispatch is one document handed to an importer.
type Dispatch struct {
	Invocation string `json:"invocation"`
	Path       string `json:"path"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Dispatched lists importer calls in order, across all invocations.
	Dispatched []Dispatch `json:"dispatched"`

	// Events holds the event log lines, without trailing newlines.
	Events []string `json:"events"`

	// Stage is the persisted stage after the last invocation.
	Stage string `json:"stage"`

	// Reports has one entry per invocation.
	Reports []engine.Report `json:"reports"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Dispatched: []Dispatch{},
		Events:     []string{},
		Errors:     []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Paths returns the dispatched paths in order.
func (r *Result) Paths() []string {
	out := make([]string, len(r.Dispatched))
	for i, d := range r.Dispatched {
		out[i] = d.Path
	}
	return out
}
