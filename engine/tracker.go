package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of context bookkeeping.
type Stats struct {
	Created int64
	Closed  int64
	Active  int64
}

// Tracker wraps an Engine so that context creation and destruction are
// serialized, and counts contexts. Operations on live contexts are not
// serialized; contexts share no mutable state.
// It is safe for concurrent use.
type Tracker struct {
	inner Engine

	lifecycle sync.Mutex
	closed    bool

	created atomic.Int64
	closedN atomic.Int64
	active  atomic.Int64
}

// NewTracker wraps e.
func NewTracker(e Engine) *Tracker {
	return &Tracker{inner: e}
}

func (t *Tracker) Name() string { return t.inner.Name() }

// NewContext creates a context on the wrapped engine. The returned context
// decrements the active count exactly once, however often Close is called.
func (t *Tracker) NewContext(ctx context.Context, vp Viewport) (Context, error) {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if t.closed {
		return nil, ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := t.inner.NewContext(ctx, vp)
	if err != nil {
		return nil, fmt.Errorf("%s: new context: %w", t.inner.Name(), err)
	}
	t.created.Add(1)
	t.active.Add(1)
	slog.Debug("browsing context created", "engine", t.inner.Name(), "context", c.ID(),
		"width", vp.Width, "height", vp.Height, "mobile", vp.Mobile)
	return &trackedContext{Context: c, tracker: t}, nil
}

// Close shuts the wrapped engine down. Later NewContext calls fail with
// ErrEngineClosed.
func (t *Tracker) Close() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if n := t.active.Load(); n > 0 {
		slog.Warn("engine closing with live contexts", "engine", t.inner.Name(), "active", n)
	}
	return t.inner.Close()
}

// Stats returns the current counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Created: t.created.Load(),
		Closed:  t.closedN.Load(),
		Active:  t.active.Load(),
	}
}

type trackedContext struct {
	Context
	tracker *Tracker
	once    sync.Once
	err     error
}

func (c *trackedContext) Close() error {
	c.once.Do(func() {
		c.tracker.lifecycle.Lock()
		defer c.tracker.lifecycle.Unlock()

		c.err = c.Context.Close()
		c.tracker.closedN.Add(1)
		c.tracker.active.Add(-1)
		slog.Debug("browsing context closed", "engine", c.tracker.inner.Name(), "context", c.ID(), "error", c.err)
	})
	return c.err
}
