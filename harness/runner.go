package harness

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/use-agent/uicheck/actions"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// Runner executes one scenario in a fresh browsing context.
type Runner struct {
	eng engine.Engine
	env actions.Env
}

// NewRunner creates a Runner creating its contexts on eng.
func NewRunner(eng engine.Engine, env actions.Env) *Runner {
	return &Runner{eng: eng, env: env}
}

// Run executes sc and always returns an outcome with one entry per declared
// step. The context is closed on every exit path, panics included.
func (r *Runner) Run(ctx context.Context, sc models.Scenario) (out models.ScenarioOutcome) {
	started := time.Now()
	out = models.ScenarioOutcome{
		Scenario:  sc.Name,
		Viewport:  sc.Viewport,
		Artifacts: []string{},
		StartedAt: started,
	}
	seq := NewSequencer(sc.Steps, r.env)
	defer func() {
		out.Steps = seq.Outcomes()
		out.Artifacts = append(out.Artifacts, seq.Artifacts()...)
		out.Status = out.ComputeStatus()
		out.Duration = time.Since(started)
		out.DurationMS = out.Duration.Milliseconds()
	}()

	if err := ctx.Err(); err != nil {
		slog.Warn("scenario not started", "scenario", sc.Name, "error", err)
		seq.Skip(runError(err).Code)
		return out
	}

	var bc engine.Context
	defer func() {
		if p := recover(); p != nil {
			slog.Error("scenario panicked", "scenario", sc.Name, "panic", p, "stack", string(debug.Stack()))
			seq.Abort(models.NewStepError(models.ErrCodeHarness, fmt.Sprintf("panic: %v", p), nil))
		}
		if bc == nil {
			return
		}
		if err := bc.Close(); err != nil {
			slog.Warn("close browsing context failed", "scenario", sc.Name, "context", bc.ID(), "error", err)
		}
	}()

	bc, err := r.eng.NewContext(ctx, viewport(sc.Viewport))
	if err != nil {
		slog.Error("create browsing context failed", "scenario", sc.Name, "error", err)
		if ctx.Err() != nil {
			seq.Skip(runError(ctx.Err()).Code)
			return out
		}
		seq.Abort(models.NewStepError(models.ErrCodeHarness, "create browsing context", err))
		return out
	}
	out.Executed = true
	out.ContextID = bc.ID()

	slog.Info("scenario started", "scenario", sc.Name, "context", bc.ID(), "steps", len(sc.Steps))
	seq.Run(ctx, bc)
	slog.Info("scenario finished", "scenario", sc.Name, "state", seq.State().String(),
		"duration_ms", time.Since(started).Milliseconds())
	return out
}

func viewport(vp models.Viewport) engine.Viewport {
	if vp.Width <= 0 || vp.Height <= 0 {
		vp.Width, vp.Height = models.DefaultViewport.Width, models.DefaultViewport.Height
	}
	return engine.Viewport{
		Width:             vp.Width,
		Height:            vp.Height,
		Mobile:            vp.Mobile,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		UserAgent:         vp.UserAgent,
	}
}
