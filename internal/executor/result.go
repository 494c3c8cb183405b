package executor

import "time"

// ---- Results model ----

// Status is the terminal state of a step or scenario.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	// StatusAborted marks a scenario that never reached the network: an
	// unparseable file or invalid configuration.
	StatusAborted Status = "aborted"
)

// Category classifies what kind of failure a step recorded.
type Category string

const (
	CategoryTransport    Category = "transport"
	CategoryTimeout      Category = "timeout"
	CategoryAssertion    Category = "assertion"
	CategoryCapture      Category = "capture"
	CategorySubstitution Category = "substitution"
	CategoryConfig       Category = "config"
)

// StepResult is the immutable outcome of one step.
type StepResult struct {
	Name       string   `json:"name"`
	Tool       string   `json:"tool,omitempty"`
	Status     Status   `json:"status"`
	Category   Category `json:"category,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Attempts   int      `json:"attempts,omitempty"`
	Response   string   `json:"response,omitempty"`
	DurationMs float64  `json:"duration_ms"`
}

// ScenarioResult aggregates one scenario's step outcomes.
type ScenarioResult struct {
	Name        string       `json:"name"`
	Source      string       `json:"source,omitempty"`
	Status      Status       `json:"status"`
	TeardownRan bool         `json:"teardown_ran"`
	Errors      []string     `json:"errors,omitempty"`
	Setup       []StepResult `json:"setup,omitempty"`
	Steps       []StepResult `json:"steps,omitempty"`
	Teardown    []StepResult `json:"teardown,omitempty"`
	DurationMs  float64      `json:"duration_ms"`
}

func (s ScenarioResult) Passed() bool { return s.Status == StatusPassed }

// AllSteps returns setup, main and teardown results in execution order.
func (s ScenarioResult) AllSteps() []StepResult {
	out := make([]StepResult, 0, len(s.Setup)+len(s.Steps)+len(s.Teardown))
	out = append(out, s.Setup...)
	out = append(out, s.Steps...)
	out = append(out, s.Teardown...)
	return out
}

// RunReport is the whole invocation's outcome.
type RunReport struct {
	StartedAt  time.Time        `json:"started_at"`
	DurationMs float64          `json:"duration_ms"`
	Passed     bool             `json:"passed"`
	Scenarios  []ScenarioResult `json:"scenarios"`
}

// Totals counts scenarios by terminal state.
func (r *RunReport) Totals() (passed, failed, aborted, skipped int) {
	for _, sc := range r.Scenarios {
		switch sc.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusAborted:
			aborted++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// AbortedResult records a scenario that failed before execution could start,
// e.g. a file the parser rejected. Teardown never ran: no network call was
// made, so nothing was acquired.
func AbortedResult(name, source string, err error) ScenarioResult {
	return ScenarioResult{
		Name:   name,
		Source: source,
		Status: StatusAborted,
		Errors: []string{err.Error()},
	}
}
