// Package report accumulates scenario outcomes and renders the final report.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/uicheck/models"
)

// Collector accumulates ScenarioOutcomes in completion order and summarizes
// them in declaration order. It is safe for concurrent use.
type Collector struct {
	runID   string
	started time.Time

	mu        sync.Mutex
	order     []string
	index     map[string]int
	outcomes  []*models.ScenarioOutcome
	completed []string
}

// New creates a Collector for the declared scenario names, in declaration
// order. Names must be unique; the loader rejects duplicates before a run.
func New(names []string) *Collector {
	return NewWithID(uuid.New().String(), names)
}

// NewWithID is New with a caller-chosen run id.
func NewWithID(runID string, names []string) *Collector {
	c := &Collector{
		runID:    runID,
		started:  time.Now(),
		order:    append([]string(nil), names...),
		index:    make(map[string]int, len(names)),
		outcomes: make([]*models.ScenarioOutcome, len(names)),
	}
	for i, n := range names {
		c.index[n] = i
	}
	return c
}

// RunID identifies the run this collector belongs to.
func (c *Collector) RunID() string { return c.runID }

// Add records one outcome. Unknown and already recorded scenarios are rejected.
func (c *Collector) Add(o models.ScenarioOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[o.Scenario]
	if !ok {
		return fmt.Errorf("unknown scenario %q", o.Scenario)
	}
	if c.outcomes[i] != nil {
		return fmt.Errorf("scenario %q already reported", o.Scenario)
	}
	c.outcomes[i] = &o
	c.completed = append(c.completed, o.Scenario)
	return nil
}

// Has reports whether an outcome for name was recorded.
func (c *Collector) Has(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[name]
	return ok && c.outcomes[i] != nil
}

// Summarize builds the Report. Scenarios with no recorded outcome are
// reported as failed and not executed.
func (c *Collector) Summarize() models.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	finished := time.Now()
	rep := models.Report{
		RunID:           c.runID,
		Scenarios:       make([]models.ScenarioOutcome, 0, len(c.order)),
		CompletionOrder: append([]string{}, c.completed...),
		StartedAt:       c.started,
		FinishedAt:      finished,
	}

	sum := models.Summary{TotalScenarios: len(c.order)}
	for i, name := range c.order {
		o := c.outcomes[i]
		if o == nil {
			o = &models.ScenarioOutcome{Scenario: name, Status: models.RunFailed, Steps: []models.StepOutcome{}, Artifacts: []string{}}
		}
		if o.Status == models.RunPassed {
			sum.PassedScenarios++
		} else {
			sum.FailedScenarios++
		}
		passed, failed, skipped := o.Counts()
		sum.Passed += passed
		sum.Failed += failed
		sum.Skipped += skipped
		sum.TotalSteps += len(o.Steps)
		sum.Artifacts += len(o.Artifacts)
		rep.Scenarios = append(rep.Scenarios, *o)
	}

	sum.Duration = finished.Sub(c.started)
	sum.DurationMS = sum.Duration.Milliseconds()
	rep.Status = models.RunPassed
	if sum.FailedScenarios > 0 || sum.TotalScenarios == 0 {
		rep.Status = models.RunFailed
		sum.ExitCode = 1
	}
	rep.Summary = sum
	return rep
}
