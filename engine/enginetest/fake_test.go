package enginetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/uicheck/engine"
)

const formHTML = `<html><head><title>Contact</title></head><body>
<form id="contact" action="/thanks">
  <input id="name" name="name">
  <select id="plan"><option value="basic">Basic</option><option value="touring">Touring plan</option></select>
  <button type="button" id="send" data-show="#done" data-hide="#contact" data-delay="30ms">Send</button>
  <button id="locked" disabled>Locked</button>
  <button id="under" data-covered>Under</button>
</form>
<p id="done" hidden>送信<b>完了</b></p>
<div style="display: none"><span id="nested">nested</span></div>
</body></html>`

func newPage(t *testing.T) (*Engine, engine.Context) {
	t.Helper()
	e := New().HandleHTML("https://site.test/", formHTML)
	c, err := e.NewContext(context.Background(), engine.Viewport{Width: 375, Height: 667, Mobile: true})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	status, err := c.Goto(context.Background(), "https://site.test/")
	if err != nil || status != 200 {
		t.Fatalf("Goto = %d, %v", status, err)
	}
	return e, c
}

func inspect(t *testing.T, c engine.Context, loc string) engine.ElementState {
	t.Helper()
	st, err := c.Inspect(context.Background(), engine.MustLocator(loc))
	if err != nil {
		t.Fatalf("Inspect(%s): %v", loc, err)
	}
	return st
}

func TestStates(t *testing.T) {
	_, c := newPage(t)

	if st := inspect(t, c, "#name"); !st.Actionable() {
		t.Errorf("#name = %s, want actionable", st)
	}
	if st := inspect(t, c, "#done"); !st.Attached || st.Visible {
		t.Errorf("#done = %s, want attached,hidden", st)
	}
	if st := inspect(t, c, "#nested"); st.Visible {
		t.Errorf("#nested = %s, want hidden by ancestor style", st)
	}
	if st := inspect(t, c, "#locked"); st.Enabled {
		t.Errorf("#locked = %s, want disabled", st)
	}
	if st := inspect(t, c, "#under"); !st.Covered {
		t.Errorf("#under = %s, want covered", st)
	}
	if st := inspect(t, c, "#missing"); st.Attached {
		t.Errorf("#missing = %s, want detached", st)
	}
}

func TestTextLocatorMatchesInnermost(t *testing.T) {
	_, c := newPage(t)
	st := inspect(t, c, "text=送信完了")
	if !st.Attached || st.Text != "送信完了" {
		t.Errorf("text=送信完了 = %+v", st)
	}
	if st := inspect(t, c, "text=完了"); st.Text != "完了" {
		t.Errorf("text=完了 resolved to %q, want the <b>", st.Text)
	}
}

func TestDelayedEffects(t *testing.T) {
	_, c := newPage(t)
	ctx := context.Background()

	if err := c.Fill(ctx, engine.MustLocator("#name"), "Taro"); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if err := c.SelectOption(ctx, engine.MustLocator("#plan"), "touring"); err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if st := inspect(t, c, "#plan"); st.Value != "touring" {
		t.Errorf("#plan value = %q", st.Value)
	}
	if err := c.Click(ctx, engine.MustLocator("#send")); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if st := inspect(t, c, "#done"); st.Visible {
		t.Error("#done visible before delay elapsed")
	}
	if err := c.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
	if st := inspect(t, c, "#done"); !st.Visible {
		t.Error("#done still hidden after WaitIdle")
	}
	if st := inspect(t, c, "#name"); st.Visible {
		t.Error("#name visible after form was hidden")
	}
}

func TestClickRejectsNonActionable(t *testing.T) {
	_, c := newPage(t)
	ctx := context.Background()
	if err := c.Click(ctx, engine.MustLocator("#locked")); err == nil {
		t.Error("click on disabled button succeeded")
	}
	if err := c.Click(ctx, engine.MustLocator("#missing")); !errors.Is(err, engine.ErrNoElement) {
		t.Errorf("click on missing = %v, want ErrNoElement", err)
	}
}

func TestGotoUnknownAndLatency(t *testing.T) {
	e := New().Handle("https://slow.test/", Page{HTML: "<p>slow</p>", Latency: time.Second})
	c, err := e.NewContext(context.Background(), engine.Viewport{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	status, err := c.Goto(context.Background(), "https://site.test/missing")
	if err != nil || status != 404 {
		t.Errorf("Goto unknown = %d, %v; want 404", status, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Goto(ctx, "https://slow.test/"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Goto slow = %v, want deadline exceeded", err)
	}
}

func TestClosedContext(t *testing.T) {
	e, c := newPage(t)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.URL(context.Background()); !errors.Is(err, engine.ErrContextClosed) {
		t.Errorf("URL after Close = %v", err)
	}
	if !e.Contexts()[0].IsClosed() {
		t.Error("IsClosed() = false")
	}
}

func TestOnNewContextCountsFailedAttempts(t *testing.T) {
	e := New()
	var seen []int
	e.OnNewContext = func(n int, _ engine.Viewport) error {
		seen = append(seen, n)
		if n == 1 {
			return errors.New("target crashed")
		}
		return nil
	}
	if _, err := e.NewContext(context.Background(), engine.Viewport{Width: 10, Height: 10}); err == nil {
		t.Fatal("first creation succeeded")
	}
	c, err := e.NewContext(context.Background(), engine.Viewport{Width: 10, Height: 10})
	if err != nil {
		t.Fatalf("second creation: %v", err)
	}
	_ = c.Close()
	if len(seen) != 2 || seen[1] != 2 {
		t.Errorf("attempts = %v", seen)
	}
}
