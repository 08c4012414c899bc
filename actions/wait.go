package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
	"golang.org/x/time/rate"
)

// matches reports whether st satisfies the wanted state.
func matches(st engine.ElementState, want models.ElementState) bool {
	switch want {
	case models.StateVisible:
		return st.Attached && st.Visible
	case models.StateHidden:
		return !st.Attached || !st.Visible
	case models.StateAttached:
		return st.Attached
	case models.StateDetached:
		return !st.Attached
	case models.StateEnabled:
		return st.Attached && st.Enabled
	case models.StateDisabled:
		return st.Attached && !st.Enabled
	}
	return false
}

// execWaitFor polls the locator at a fixed cadence until it reaches the
// target state or the step deadline passes.
func execWaitFor(ctx context.Context, bc engine.Context, a models.WaitFor, env Env) error {
	loc, err := locate(a.Locator)
	if err != nil {
		return err
	}
	want := a.TargetState()

	interval := env.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	lim.Allow()

	var (
		last    engine.ElementState
		lastErr error
		polls   int
	)
	for {
		st, err := bc.Inspect(ctx, loc)
		polls++
		switch {
		case errors.Is(err, engine.ErrContextClosed):
			return fail(models.ErrCodeHarness, "context lost while waiting for "+loc.String(), err)
		case err != nil:
			// Transient while a navigation swaps the document.
			lastErr = err
		default:
			last, lastErr = st, nil
			if matches(st, want) {
				return nil
			}
		}

		if err := lim.Wait(ctx); err != nil {
			// The limiter refuses a wait that would overrun the deadline;
			// hold on until it actually passes.
			<-ctx.Done()
			break
		}
	}

	se := models.NewStepError(models.ErrCodeLocatorTimeout,
		fmt.Sprintf("%s did not become %s after %d polls", loc, want, polls), lastErr)
	se.Expected = string(want)
	se.Actual = last.String()
	se.LastState = last.String()
	return se
}

// execWaitIdle waits for the page to settle.
func execWaitIdle(ctx context.Context, bc engine.Context) error {
	if err := bc.WaitIdle(ctx); err != nil {
		return fail(models.ErrCodeNavigation, "page did not become idle", err)
	}
	return nil
}

// execDelay is a bounded fixed wait.
func execDelay(ctx context.Context, a models.Delay) error {
	t := time.NewTimer(a.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return models.NewStepError(models.ErrCodeHarnessTimeout, "delay interrupted", ctx.Err())
	}
}
