// Package actions implements the step primitives run against a live
// browsing context.
package actions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// delayGrace is added to a delay step's duration when computing its deadline.
const delayGrace = time.Second

// defaultPollInterval is the cadence of wait_for.
const defaultPollInterval = 100 * time.Millisecond

// Env carries the run-wide inputs of the primitives.
type Env struct {
	BaseURL      string
	ArtifactDir  string
	StepTimeout  time.Duration // default models.DefaultStepTimeout
	PollInterval time.Duration // default 100ms
}

// Result describes what a successful primitive produced.
type Result struct {
	// Status is the HTTP status of a navigate step (0 when unknown).
	Status int

	// Artifact is the path of the file a screenshot step wrote.
	Artifact string
}

// Timeout returns the deadline budget of step.
func Timeout(step models.Step, env Env) time.Duration {
	t := step.Timeout
	if t <= 0 {
		t = env.StepTimeout
	}
	if t <= 0 {
		t = models.DefaultStepTimeout
	}
	if d, ok := step.Action.(models.Delay); ok {
		t = max(t, d.Duration+delayGrace)
	}
	return t
}

// Execute runs one step under its own deadline. Failures are returned as
// *models.StepError carrying a taxonomy code; a cancelled parent ctx is
// returned as is so the caller can tell a run timeout from a step failure.
func Execute(ctx context.Context, bc engine.Context, step models.Step, env Env) (Result, error) {
	stepCtx, cancel := context.WithTimeout(ctx, Timeout(step, env))
	defer cancel()

	var (
		res Result
		err error
	)
	switch a := step.Action.(type) {
	case models.Navigate:
		res.Status, err = execNavigate(stepCtx, bc, a, env)
	case models.WaitFor:
		err = execWaitFor(stepCtx, bc, a, env)
	case models.WaitIdle:
		err = execWaitIdle(stepCtx, bc)
	case models.Click:
		err = execClick(stepCtx, bc, a)
	case models.Fill:
		err = execFill(stepCtx, bc, a)
	case models.Select:
		err = execSelect(stepCtx, bc, a)
	case models.Scroll:
		err = execScroll(stepCtx, bc, a)
	case models.Evaluate:
		err = execEvaluate(stepCtx, bc, a)
	case models.Assert:
		err = execAssert(stepCtx, bc, a)
	case models.Screenshot:
		res.Artifact, err = execScreenshot(stepCtx, bc, a, env)
	case models.Delay:
		err = execDelay(stepCtx, a)
	case nil:
		err = models.NewStepError(models.ErrCodeHarness, "step has no action", nil)
	default:
		err = models.NewStepError(models.ErrCodeHarness, fmt.Sprintf("unsupported action %T", a), nil)
	}

	if err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, err
}

// fail wraps err with code, unless the context vanished, which is a harness
// failure whatever the primitive.
func fail(code, msg string, err error) *models.StepError {
	if errors.Is(err, engine.ErrContextClosed) {
		return models.NewStepError(models.ErrCodeHarness, msg, err)
	}
	return models.NewStepError(code, msg, err)
}

func locate(raw string) (engine.Locator, error) {
	loc, err := engine.ParseLocator(raw)
	if err != nil {
		return loc, models.NewStepError(models.ErrCodeNotActionable, "invalid locator", err)
	}
	return loc, nil
}

// ResolveURL resolves raw against base when raw is relative.
func ResolveURL(base, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || base == "" {
		return raw, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(u).String(), nil
}

func execNavigate(ctx context.Context, bc engine.Context, a models.Navigate, env Env) (int, error) {
	target, err := ResolveURL(env.BaseURL, a.URL)
	if err != nil {
		return 0, models.NewStepError(models.ErrCodeNavigation, "invalid url "+a.URL, err)
	}
	status, err := bc.Goto(ctx, target)
	if err != nil {
		return status, fail(models.ErrCodeNavigation, "navigation to "+target+" failed", err)
	}
	if status != 0 && (status < 200 || status > 299) {
		se := models.NewStepError(models.ErrCodeNavigation, fmt.Sprintf("navigation to %s returned HTTP %d", target, status), nil)
		se.Expected = "2xx"
		se.Actual = fmt.Sprint(status)
		return status, se
	}
	return status, nil
}
