package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// scrollPause lets lazy-loaded content react between page scrolls.
const scrollPause = 100 * time.Millisecond

// actionable resolves raw and checks, once, that the element accepts input.
func actionable(ctx context.Context, bc engine.Context, raw string) (engine.Locator, error) {
	loc, err := locate(raw)
	if err != nil {
		return loc, err
	}
	st, err := bc.Inspect(ctx, loc)
	if err != nil {
		return loc, fail(models.ErrCodeNotActionable, "cannot inspect "+loc.String(), err)
	}
	if !st.Actionable() {
		se := models.NewStepError(models.ErrCodeNotActionable, loc.String()+" is not actionable", nil)
		se.Expected = "attached,visible,enabled"
		se.Actual = st.String()
		se.LastState = st.String()
		return loc, se
	}
	return loc, nil
}

// interactionError classifies an engine failure after the actionability check.
func interactionError(verb string, loc engine.Locator, err error) error {
	msg := fmt.Sprintf("%s %s failed", verb, loc)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("%s %s timed out", verb, loc)
	}
	return fail(models.ErrCodeNotActionable, msg, err)
}

func execClick(ctx context.Context, bc engine.Context, a models.Click) error {
	loc, err := actionable(ctx, bc, a.Locator)
	if err != nil {
		return err
	}
	if err := bc.Click(ctx, loc); err != nil {
		return interactionError("click", loc, err)
	}
	return nil
}

func execFill(ctx context.Context, bc engine.Context, a models.Fill) error {
	loc, err := actionable(ctx, bc, a.Locator)
	if err != nil {
		return err
	}
	if err := bc.Fill(ctx, loc, a.Value); err != nil {
		return interactionError("fill", loc, err)
	}
	return nil
}

func execSelect(ctx context.Context, bc engine.Context, a models.Select) error {
	loc, err := actionable(ctx, bc, a.Locator)
	if err != nil {
		return err
	}
	if err := bc.SelectOption(ctx, loc, a.Option); err != nil {
		return interactionError(fmt.Sprintf("select %q in", a.Option), loc, err)
	}
	return nil
}

// execScroll scrolls an element into view, to the top or bottom of the page,
// or by whole viewports.
func execScroll(ctx context.Context, bc engine.Context, a models.Scroll) error {
	switch {
	case a.Locator != "":
		loc, err := locate(a.Locator)
		if err != nil {
			return err
		}
		st, err := bc.Inspect(ctx, loc)
		if err != nil {
			return fail(models.ErrCodeNotActionable, "cannot inspect "+loc.String(), err)
		}
		if !st.Attached {
			se := models.NewStepError(models.ErrCodeNotActionable, loc.String()+" is not attached", nil)
			se.Expected = "attached"
			se.Actual = st.String()
			se.LastState = st.String()
			return se
		}
		if err := bc.ScrollIntoView(ctx, loc); err != nil {
			return interactionError("scroll to", loc, err)
		}
		return nil

	case a.To == "top":
		return scrollScript(ctx, bc, "window.scrollTo(0, 0)")

	case a.To == "bottom":
		return scrollScript(ctx, bc, "window.scrollTo(0, document.body.scrollHeight)")
	}

	pages := max(a.Pages, 1)
	script := "window.scrollBy(0, window.innerHeight)"
	if a.Direction == "up" {
		script = "window.scrollBy(0, -window.innerHeight)"
	}
	for i := 0; i < pages; i++ {
		if i > 0 {
			t := time.NewTimer(scrollPause)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return models.NewStepError(models.ErrCodeNotActionable, fmt.Sprintf("scroll interrupted after %d page(s)", i), ctx.Err())
			}
		}
		if err := scrollScript(ctx, bc, script); err != nil {
			return err
		}
	}
	return nil
}

func scrollScript(ctx context.Context, bc engine.Context, script string) error {
	if _, err := bc.Evaluate(ctx, script); err != nil {
		return fail(models.ErrCodeNotActionable, "scroll failed", err)
	}
	return nil
}
