package actions

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/engine/enginetest"
	"github.com/use-agent/uicheck/models"
)

const base = "http://site.test"

const pageHTML = `<html><head><title>Contact us</title></head><body>
<form id="form">
  <input id="name">
  <select id="type"><option value="">-</option><option value="touring">Touring</option></select>
  <button type="button" id="submit" data-show="#done" data-delay="150ms">Send</button>
  <button id="off" disabled>Off</button>
  <button id="masked" data-covered>Masked</button>
  <a id="plans" href="/plans">Plans</a>
</form>
<p id="done" hidden>送信完了</p>
</body></html>`

func setup(t *testing.T) (engine.Context, Env) {
	t.Helper()
	fake := enginetest.New().
		HandleHTML(base+"/contact", pageHTML).
		HandleHTML(base+"/plans", "<html><head><title>Plans</title></head><body></body></html>").
		Handle(base+"/down", enginetest.Page{Err: errors.New("net::ERR_CONNECTION_REFUSED")})
	bc, err := fake.NewContext(context.Background(), engine.Viewport{Width: 1280, Height: 720})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bc.Close() })

	env := Env{BaseURL: base, ArtifactDir: t.TempDir(), StepTimeout: 2 * time.Second, PollInterval: 10 * time.Millisecond}
	run(t, bc, env, models.Navigate{URL: "/contact"})
	return bc, env
}

func run(t *testing.T, bc engine.Context, env Env, a models.Action) Result {
	t.Helper()
	res, err := Execute(context.Background(), bc, models.Step{Action: a}, env)
	if err != nil {
		t.Fatalf("%s: %v", a.Describe(), err)
	}
	return res
}

func code(t *testing.T, err error) *models.StepError {
	t.Helper()
	var se *models.StepError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StepError", err)
	}
	return se
}

func TestNavigate(t *testing.T) {
	bc, env := setup(t)

	res := run(t, bc, env, models.Navigate{URL: "/plans"})
	if res.Status != 200 {
		t.Errorf("status = %d", res.Status)
	}
	if u, _ := bc.URL(context.Background()); u != base+"/plans" {
		t.Errorf("url = %s", u)
	}

	_, err := Execute(context.Background(), bc, models.Step{Action: models.Navigate{URL: "/missing"}}, env)
	se := code(t, err)
	if se.Code != models.ErrCodeNavigation || se.Actual != "404" {
		t.Errorf("404 navigation = %+v", se)
	}

	_, err = Execute(context.Background(), bc, models.Step{Action: models.Navigate{URL: "/down"}}, env)
	if se := code(t, err); se.Code != models.ErrCodeNavigation {
		t.Errorf("refused navigation code = %s", se.Code)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct{ base, raw, want string }{
		{"http://localhost:3000", "/contact", "http://localhost:3000/contact"},
		{"http://localhost:3000/app/", "plans", "http://localhost:3000/app/plans"},
		{"http://localhost:3000", "https://other.test/x", "https://other.test/x"},
		{"", "/contact", "/contact"},
	}
	for _, tt := range tests {
		got, err := ResolveURL(tt.base, tt.raw)
		if err != nil || got != tt.want {
			t.Errorf("ResolveURL(%q, %q) = %q, %v; want %q", tt.base, tt.raw, got, err, tt.want)
		}
	}
}

func TestFormInteractionAndWait(t *testing.T) {
	bc, env := setup(t)

	run(t, bc, env, models.Fill{Locator: "#name", Value: "Test User"})
	run(t, bc, env, models.Select{Locator: "#type", Option: "touring"})
	run(t, bc, env, models.Click{Locator: "#submit"})
	run(t, bc, env, models.WaitFor{Locator: "text=送信完了"})

	run(t, bc, env, models.Assert{Locator: "#name", Attribute: "value", Value: ptr("Test User")})
	run(t, bc, env, models.Assert{Locator: "#done", Text: "送信"})
	run(t, bc, env, models.Assert{Title: "Contact", URL: "/contact"})
}

func TestWaitForTimeoutReportsLastState(t *testing.T) {
	bc, env := setup(t)

	start := time.Now()
	_, err := Execute(context.Background(), bc,
		models.Step{Timeout: 200 * time.Millisecond, Action: models.WaitFor{Locator: "#done"}}, env)
	se := code(t, err)
	if se.Code != models.ErrCodeLocatorTimeout {
		t.Fatalf("code = %s, want LOCATOR_TIMEOUT", se.Code)
	}
	if se.LastState != "attached,hidden" {
		t.Errorf("last state = %q", se.LastState)
	}
	if d := time.Since(start); d < 200*time.Millisecond || d > time.Second {
		t.Errorf("wait returned after %s", d)
	}

	run(t, bc, env, models.WaitFor{Locator: "#nothing", State: models.StateDetached})
	run(t, bc, env, models.WaitFor{Locator: "#done", State: models.StateHidden})
}

func TestNotActionable(t *testing.T) {
	bc, env := setup(t)

	tests := []struct {
		action models.Action
		state  string
	}{
		{models.Click{Locator: "#off"}, "attached,visible,disabled"},
		{models.Click{Locator: "#masked"}, "attached,visible,covered"},
		{models.Click{Locator: "#done"}, "attached,hidden"},
		{models.Fill{Locator: "#absent", Value: "x"}, "detached"},
		{models.Scroll{Locator: "#absent"}, "detached"},
	}
	for _, tt := range tests {
		_, err := Execute(context.Background(), bc, models.Step{Action: tt.action}, env)
		se := code(t, err)
		if se.Code != models.ErrCodeNotActionable || se.LastState != tt.state {
			t.Errorf("%s = %s %q, want NOT_ACTIONABLE %q", tt.action.Describe(), se.Code, se.LastState, tt.state)
		}
	}
}

func TestAssertMismatch(t *testing.T) {
	bc, env := setup(t)

	tests := []struct {
		action   models.Assert
		expected string
		actual   string
	}{
		{models.Assert{Locator: "#done"}, "visible", "attached,hidden"},
		{models.Assert{Locator: "#off", State: models.StateEnabled}, "enabled", "attached,visible,disabled"},
		{models.Assert{Locator: "#plans", Attribute: "href", Value: ptr("/pricing")}, "/pricing", "/plans"},
		{models.Assert{Locator: "#plans", Attribute: "target"}, "attribute target", "absent"},
		{models.Assert{Title: "Pricing"}, "contains Pricing", "Contact us"},
	}
	for _, tt := range tests {
		_, err := Execute(context.Background(), bc, models.Step{Action: tt.action}, env)
		se := code(t, err)
		if se.Code != models.ErrCodeAssertion || se.Expected != tt.expected || se.Actual != tt.actual {
			t.Errorf("%s = %+v", tt.action.Describe(), se)
		}
	}
}

func TestEvaluate(t *testing.T) {
	bc, env := setup(t)

	run(t, bc, env, models.Evaluate{Script: "document.title", Expect: ptr("Contact us")})

	_, err := Execute(context.Background(), bc, models.Step{Action: models.Evaluate{Script: "document.title", Expect: ptr("Home")}}, env)
	if se := code(t, err); se.Code != models.ErrCodeAssertion || se.Actual != "Contact us" {
		t.Errorf("mismatch = %+v", se)
	}

	_, err = Execute(context.Background(), bc, models.Step{Action: models.Evaluate{Script: "throw new Error('x')"}}, env)
	if se := code(t, err); se.Code != models.ErrCodeAssertion {
		t.Errorf("exception code = %s", se.Code)
	}
}

func TestScroll(t *testing.T) {
	bc, env := setup(t)
	run(t, bc, env, models.Scroll{To: "bottom"})
	run(t, bc, env, models.Scroll{Pages: 2, Direction: "up"})
	run(t, bc, env, models.Scroll{Locator: "#plans"})

	got := bc.(*enginetest.Context).Evaluated()
	want := []string{
		"window.scrollTo(0, document.body.scrollHeight)",
		"window.scrollBy(0, -window.innerHeight)",
		"window.scrollBy(0, -window.innerHeight)",
	}
	if len(got) != len(want) {
		t.Fatalf("scripts = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("script %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScreenshotOverwrites(t *testing.T) {
	bc, env := setup(t)

	path := filepath.Join(env.ArtifactDir, "shots", "contact.png")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := run(t, bc, env, models.Screenshot{Path: "shots/contact.png", FullPage: true})
	if res.Artifact != path {
		t.Errorf("artifact = %s, want %s", res.Artifact, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, enginetest.PNG) {
		t.Errorf("artifact is not a PNG: %q", data)
	}
}

func TestClosedContextIsHarnessError(t *testing.T) {
	bc, env := setup(t)
	_ = bc.Close()

	for _, a := range []models.Action{
		models.Click{Locator: "#submit"},
		models.Screenshot{Path: "x.png"},
		models.WaitFor{Locator: "#done"},
		models.Navigate{URL: "/plans"},
	} {
		_, err := Execute(context.Background(), bc, models.Step{Action: a}, env)
		if se := code(t, err); se.Code != models.ErrCodeHarness {
			t.Errorf("%s on closed context = %s, want HARNESS_ERROR", a.Describe(), se.Code)
		}
	}
}

func TestParentCancellationPassesThrough(t *testing.T) {
	bc, env := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Execute(ctx, bc, models.Step{Timeout: 10 * time.Second, Action: models.WaitFor{Locator: "#never"}}, env)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want the parent's deadline error", err)
	}
}

func TestTimeout(t *testing.T) {
	env := Env{StepTimeout: 5 * time.Second}
	tests := []struct {
		step models.Step
		want time.Duration
	}{
		{models.Step{Action: models.Click{Locator: "a"}}, 5 * time.Second},
		{models.Step{Timeout: time.Second, Action: models.Click{Locator: "a"}}, time.Second},
		{models.Step{Timeout: time.Second, Action: models.Delay{Duration: 3 * time.Second}}, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := Timeout(tt.step, env); got != tt.want {
			t.Errorf("Timeout(%s) = %s, want %s", tt.step.Label(), got, tt.want)
		}
	}
	if got := Timeout(models.Step{Action: models.WaitIdle{}}, Env{}); got != models.DefaultStepTimeout {
		t.Errorf("default timeout = %s", got)
	}
}

func ptr(s string) *string { return &s }
