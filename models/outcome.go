package models

import "time"

// StepStatus is the result of one step.
type StepStatus string

const (
	StatusPassed  StepStatus = "passed"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// RunStatus is the overall status of a scenario or run.
type RunStatus string

const (
	RunPassed RunStatus = "passed"
	RunFailed RunStatus = "failed"
)

// StepRef identifies a declared step inside a ScenarioOutcome.
type StepRef struct {
	Index       int      `json:"index"`
	Name        string   `json:"name,omitempty"`
	Kind        StepKind `json:"kind"`
	Description string   `json:"description"`
	Critical    bool     `json:"critical"`
}

// RefOf builds the StepRef of step i.
func RefOf(i int, s Step) StepRef {
	ref := StepRef{Index: i, Name: s.Name, Critical: s.Critical()}
	if s.Action != nil {
		ref.Kind = s.Action.Kind()
		ref.Description = s.Action.Describe()
	}
	return ref
}

// StepOutcome records what happened to one declared step.
type StepOutcome struct {
	Step       StepRef       `json:"step"`
	Status     StepStatus    `json:"status"`
	Error      *ErrorDetail  `json:"error,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}

// ScenarioOutcome records the result of one scenario.
type ScenarioOutcome struct {
	Scenario   string        `json:"scenario"`
	Viewport   Viewport      `json:"viewport"`
	ContextID  string        `json:"context_id,omitempty"`
	Executed   bool          `json:"executed"`
	Status     RunStatus     `json:"status"`
	Steps      []StepOutcome `json:"steps"`
	Artifacts  []string      `json:"artifacts"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}

// ComputeStatus derives the overall status from critical steps only.
// A soft failure never flips the status to failed.
func (o *ScenarioOutcome) ComputeStatus() RunStatus {
	if len(o.Steps) == 0 {
		return RunFailed
	}
	for _, s := range o.Steps {
		if s.Step.Critical && s.Status != StatusPassed {
			return RunFailed
		}
	}
	return RunPassed
}

// Counts returns passed, failed and skipped step totals.
func (o *ScenarioOutcome) Counts() (passed, failed, skipped int) {
	for _, s := range o.Steps {
		switch s.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Summary aggregates a run.
type Summary struct {
	TotalScenarios  int           `json:"total_scenarios"`
	PassedScenarios int           `json:"passed_scenarios"`
	FailedScenarios int           `json:"failed_scenarios"`
	TotalSteps      int           `json:"total_steps"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	Artifacts       int           `json:"artifacts"`
	Contexts        ContextStats  `json:"contexts"`
	Duration        time.Duration `json:"-"`
	DurationMS      int64         `json:"duration_ms"`
	ExitCode        int           `json:"exit_code"`
}

// Report is the final structured result of a run.
type Report struct {
	RunID           string            `json:"run_id"`
	Status          RunStatus         `json:"status"`
	Scenarios       []ScenarioOutcome `json:"scenarios"`
	CompletionOrder []string          `json:"completion_order"`
	Summary         Summary           `json:"summary"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
}
