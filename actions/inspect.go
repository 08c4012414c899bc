package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// execAssert runs every check the step declares and fails on the first
// mismatch. An element assertion with no explicit check asserts visibility.
func execAssert(ctx context.Context, bc engine.Context, a models.Assert) error {
	if a.Locator != "" {
		if err := assertElement(ctx, bc, a); err != nil {
			return err
		}
	}
	if a.URL != "" {
		got, err := bc.URL(ctx)
		if err != nil {
			return fail(models.ErrCodeAssertion, "cannot read url", err)
		}
		if !strings.Contains(got, a.URL) {
			return models.NewAssertionError("url mismatch", "contains "+a.URL, got)
		}
	}
	if a.Title != "" {
		got, err := bc.Title(ctx)
		if err != nil {
			return fail(models.ErrCodeAssertion, "cannot read title", err)
		}
		if !strings.Contains(got, a.Title) {
			return models.NewAssertionError("title mismatch", "contains "+a.Title, got)
		}
	}
	return nil
}

func assertElement(ctx context.Context, bc engine.Context, a models.Assert) error {
	loc, err := locate(a.Locator)
	if err != nil {
		return err
	}
	st, err := bc.Inspect(ctx, loc)
	if err != nil {
		return fail(models.ErrCodeAssertion, "cannot inspect "+loc.String(), err)
	}

	mismatch := func(msg, expected, actual string) error {
		se := models.NewAssertionError(msg, expected, actual)
		se.LastState = st.String()
		return se
	}

	want := a.State
	if want == "" && a.Text == "" && a.Attribute == "" {
		want = models.StateVisible
	}
	if want != "" && !matches(st, want) {
		return mismatch(fmt.Sprintf("%s is not %s", loc, want), string(want), st.String())
	}

	if a.Text != "" {
		if !st.Attached {
			return mismatch(loc.String()+" is not attached", "contains "+a.Text, st.String())
		}
		if !strings.Contains(st.Text, a.Text) {
			return mismatch(loc.String()+" text mismatch", "contains "+a.Text, st.Text)
		}
	}

	if a.Attribute != "" {
		if !st.Attached {
			return mismatch(loc.String()+" is not attached", "attribute "+a.Attribute, st.String())
		}
		got, ok, err := bc.Attribute(ctx, loc, a.Attribute)
		if err != nil {
			return fail(models.ErrCodeAssertion, "cannot read attribute "+a.Attribute, err)
		}
		if !ok {
			return mismatch(fmt.Sprintf("%s has no attribute %s", loc, a.Attribute), "attribute "+a.Attribute, "absent")
		}
		if a.Value != nil && got != *a.Value {
			return mismatch(fmt.Sprintf("%s[%s] mismatch", loc, a.Attribute), *a.Value, got)
		}
	}
	return nil
}

// execEvaluate runs the script; with Expect set the stringified result must
// equal it.
func execEvaluate(ctx context.Context, bc engine.Context, a models.Evaluate) error {
	got, err := bc.Evaluate(ctx, a.Script)
	if err != nil {
		return fail(models.ErrCodeAssertion, "script failed", err)
	}
	if a.Expect != nil && got != *a.Expect {
		return models.NewAssertionError("script result mismatch", *a.Expect, got)
	}
	return nil
}

// execScreenshot writes a PNG under the artifact directory, replacing any
// existing file, and returns its path.
func execScreenshot(ctx context.Context, bc engine.Context, a models.Screenshot, env Env) (string, error) {
	data, err := bc.Screenshot(ctx, a.FullPage)
	if err != nil {
		return "", models.NewStepError(models.ErrCodeHarness, "capture screenshot", err)
	}

	dir := env.ArtifactDir
	if dir == "" {
		dir = models.DefaultArtifactDir
	}
	path := filepath.Join(dir, a.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", models.NewStepError(models.ErrCodeHarness, "create artifact directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", models.NewStepError(models.ErrCodeHarness, "write "+path, err)
	}
	return path, nil
}
