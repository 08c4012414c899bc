package harness

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/uicheck/actions"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
	"github.com/use-agent/uicheck/report"
	"github.com/use-agent/uicheck/scenario"
)

// Launcher starts the browser engine for one run.
type Launcher func(ctx context.Context) (engine.Engine, error)

// RodLauncher launches a real browser configured by cfg.
func RodLauncher(cfg config.BrowserConfig) Launcher {
	return func(context.Context) (engine.Engine, error) {
		return engine.NewRodEngine(cfg)
	}
}

// Option configures a Driver.
type Option func(*Driver)

// WithPollInterval overrides the wait_for polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(dr *Driver) { dr.pollInterval = d }
}

// WithTrackerHook registers fn, called with the run's tracker right after
// the engine launched. Callers use it to observe live context counts.
func WithTrackerHook(fn func(*engine.Tracker)) Option {
	return func(dr *Driver) { dr.onTracker = fn }
}

// WithRunID makes the report carry id instead of a generated one.
func WithRunID(id string) Option {
	return func(dr *Driver) { dr.runID = id }
}

// Driver runs whole suites. One engine is launched per Run and shut down
// when the run ends. A Driver may run several suites concurrently.
type Driver struct {
	launch       Launcher
	pollInterval time.Duration
	onTracker    func(*engine.Tracker)
	runID        string
}

// NewDriver creates a Driver using launch to start the engine.
func NewDriver(launch Launcher, opts ...Option) *Driver {
	d := &Driver{launch: launch}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run validates the suite and executes it. A configuration problem is
// returned as a *models.ConfigError before any browser is started. Every
// other failure is reported per scenario in the returned Report.
func (d *Driver) Run(ctx context.Context, suite models.Suite) (models.Report, error) {
	suite.Settings = suite.Settings.WithDefaults()
	if err := scenario.Validate(suite); err != nil {
		return models.Report{}, err
	}
	settings := suite.Settings

	names := make([]string, len(suite.Scenarios))
	for i, sc := range suite.Scenarios {
		names[i] = sc.Name
	}
	collector := report.New(names)
	if d.runID != "" {
		collector = report.NewWithID(d.runID, names)
	}
	log := slog.With("run", collector.RunID())

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	log.Info("run started", "scenarios", len(suite.Scenarios), "mode", settings.Mode,
		"parallelism", settings.Parallelism, "timeout", settings.Timeout)

	eng, err := d.launch(ctx)
	if err != nil {
		log.Error("engine launch failed", "error", err)
		launchErr := models.NewStepError(models.ErrCodeHarness, "launch browser engine", err)
		for _, sc := range suite.Scenarios {
			_ = collector.Add(failedBeforeStart(sc, launchErr))
		}
		return collector.Summarize(), nil
	}

	tracker := engine.NewTracker(eng)
	shutdown := func() {
		if err := tracker.Close(); err != nil {
			log.Warn("engine shutdown failed", "engine", tracker.Name(), "error", err)
		}
	}
	defer shutdown()
	if d.onTracker != nil {
		d.onTracker(tracker)
	}

	runner := NewRunner(tracker, actions.Env{
		BaseURL:      settings.BaseURL,
		ArtifactDir:  settings.ArtifactDir,
		StepTimeout:  settings.StepTimeout,
		PollInterval: d.pollInterval,
	})
	record := func(sc models.Scenario) {
		if err := collector.Add(runner.Run(ctx, sc)); err != nil {
			log.Error("record outcome", "scenario", sc.Name, "error", err)
		}
	}

	switch settings.Mode {
	case models.ModeParallel:
		var g errgroup.Group
		g.SetLimit(settings.Parallelism)
		for _, sc := range suite.Scenarios {
			g.Go(func() error {
				record(sc)
				return nil
			})
		}
		_ = g.Wait()
	default:
		for _, sc := range suite.Scenarios {
			record(sc)
		}
	}

	shutdown()
	rep := collector.Summarize()
	st := tracker.Stats()
	rep.Summary.Contexts = models.ContextStats{Created: st.Created, Closed: st.Closed, Active: st.Active}

	log.Info("run finished", "status", rep.Status,
		"passed", rep.Summary.PassedScenarios, "failed", rep.Summary.FailedScenarios,
		"duration_ms", rep.Summary.DurationMS)
	return rep, nil
}

// failedBeforeStart reports sc as not executed, failing its first step with
// err and skipping the others.
func failedBeforeStart(sc models.Scenario, err *models.StepError) models.ScenarioOutcome {
	seq := NewSequencer(sc.Steps, actions.Env{})
	seq.Abort(err)
	out := models.ScenarioOutcome{
		Scenario:  sc.Name,
		Viewport:  sc.Viewport,
		Steps:     seq.Outcomes(),
		Artifacts: []string{},
		StartedAt: time.Now(),
	}
	out.Status = out.ComputeStatus()
	return out
}
