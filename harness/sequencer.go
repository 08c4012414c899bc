// Package harness runs suites: the step sequencer, the scenario runner and
// the driver that owns the engine for a whole run.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/uicheck/actions"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// State is the lifecycle of a Sequencer.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sequencer executes the steps of one scenario in order and records one
// outcome per declared step. It is not safe for concurrent use.
type Sequencer struct {
	steps []models.Step
	env   actions.Env

	state     State
	current   int // index of the in-flight step, -1 when none
	outcomes  []models.StepOutcome
	artifacts []string
}

// NewSequencer prepares a sequencer for steps.
func NewSequencer(steps []models.Step, env actions.Env) *Sequencer {
	return &Sequencer{
		steps:     steps,
		env:       env,
		current:   -1,
		outcomes:  make([]models.StepOutcome, 0, len(steps)),
		artifacts: []string{},
	}
}

func (s *Sequencer) State() State { return s.state }

// Outcomes returns the recorded outcomes. After Run or Abort there is exactly
// one per declared step, in declaration order.
func (s *Sequencer) Outcomes() []models.StepOutcome { return s.outcomes }

// Artifacts returns the files written by successful screenshot steps.
func (s *Sequencer) Artifacts() []string { return s.artifacts }

// Run executes the steps against bc. A failing critical step aborts the
// sequence and skips the rest; a failing soft step is recorded and the
// sequence continues. Harness failures abort regardless of softness.
func (s *Sequencer) Run(ctx context.Context, bc engine.Context) {
	s.state = StateRunning
	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.Abort(runError(err))
			return
		}

		s.current = i
		started := time.Now()
		res, err := actions.Execute(ctx, bc, step, s.env)
		elapsed := time.Since(started)

		out := models.StepOutcome{
			Step:       models.RefOf(i, step),
			Status:     models.StatusPassed,
			Duration:   elapsed,
			DurationMS: elapsed.Milliseconds(),
			StartedAt:  started,
		}
		if err == nil {
			if res.Artifact != "" {
				s.artifacts = append(s.artifacts, res.Artifact)
			}
			s.outcomes = append(s.outcomes, out)
			s.current = -1
			continue
		}

		if ctx.Err() != nil {
			err = runError(ctx.Err())
		}
		out.Status = models.StatusFailed
		out.Error = models.DetailOf(err)
		s.outcomes = append(s.outcomes, out)
		s.current = -1

		code := out.Error.Code
		slog.Debug("step failed", "step", i+1, "kind", step.Action.Kind(), "code", code, "soft", step.Soft, "error", err)

		switch {
		case unrecoverable(code):
			s.skipRest(code)
			s.state = StateAborted
			return
		case step.Critical():
			s.skipRest(fmt.Sprintf("critical step %d failed", i+1))
			s.state = StateAborted
			return
		}
	}
	s.state = StateCompleted
}

// Abort records err on the in-flight step, or on the next step to run when
// none is in flight, and skips every later step. Outcomes already recorded
// are kept.
func (s *Sequencer) Abort(err error) {
	if len(s.steps) == 0 {
		s.state = StateAborted
		return
	}
	idx := len(s.outcomes)
	if s.current >= 0 {
		idx = s.current
	}
	idx = min(idx, len(s.steps)-1)
	s.outcomes = s.outcomes[:idx]

	out := models.StepOutcome{
		Step:      models.RefOf(idx, s.steps[idx]),
		Status:    models.StatusFailed,
		Error:     models.DetailOf(err),
		StartedAt: time.Now(),
	}
	s.outcomes = append(s.outcomes, out)
	s.current = -1
	s.skipRest(out.Error.Code)
	s.state = StateAborted
}

// Skip marks every step not yet recorded as skipped with reason.
func (s *Sequencer) Skip(reason string) {
	s.skipRest(reason)
	s.state = StateAborted
}

func (s *Sequencer) skipRest(reason string) {
	for i := len(s.outcomes); i < len(s.steps); i++ {
		s.outcomes = append(s.outcomes, models.StepOutcome{
			Step:   models.RefOf(i, s.steps[i]),
			Status: models.StatusSkipped,
			Reason: reason,
		})
	}
}

func unrecoverable(code string) bool {
	return code == models.ErrCodeHarness || code == models.ErrCodeHarnessTimeout
}

// runError converts a cancelled run context into a harness failure.
func runError(err error) *models.StepError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewStepError(models.ErrCodeHarnessTimeout, "run timeout exceeded", err)
	}
	return models.NewStepError(models.ErrCodeHarness, "run cancelled", err)
}
