package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/uicheck/cache"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/harness"
	"github.com/use-agent/uicheck/models"
	"github.com/use-agent/uicheck/scenario"
	"github.com/use-agent/uicheck/webhook"
)

// ErrBusy is returned by Start when every run slot is taken.
var ErrBusy = errors.New("too many runs in progress")

// RunManager executes API runs in the background, at most MaxConcurrentRuns
// at a time, and keeps their records in the run store.
type RunManager struct {
	base     context.Context
	launch   harness.Launcher
	opts     []harness.Option
	defaults config.HarnessConfig
	hook     config.WebhookConfig
	store    *cache.Store
	sem      chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	live     map[*engine.Tracker]struct{}
	finished models.ContextStats
}

// NewRunManager creates a RunManager. Runs are cancelled when base is.
func NewRunManager(base context.Context, launch harness.Launcher, cfg *config.Config, store *cache.Store, opts ...harness.Option) *RunManager {
	slots := cfg.Server.MaxConcurrentRuns
	if slots < 1 {
		slots = 1
	}
	return &RunManager{
		base:     base,
		launch:   launch,
		opts:     opts,
		defaults: cfg.Harness,
		hook:     cfg.Webhook,
		store:    store,
		sem:      make(chan struct{}, slots),
		live:     make(map[*engine.Tracker]struct{}),
	}
}

// Start registers a run of suite and executes it in the background. The
// suite must already be resolved and validated.
func (m *RunManager) Start(suite models.Suite, req models.RunRequest) (string, error) {
	select {
	case m.sem <- struct{}{}:
	default:
		return "", ErrBusy
	}

	id := uuid.New().String()
	m.store.Put(models.RunStatusResponse{
		ID:        id,
		Status:    models.RunStateRunning,
		Scenarios: len(suite.Scenarios),
	})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() { <-m.sem }()
		m.execute(id, suite, req)
	}()
	return id, nil
}

func (m *RunManager) execute(id string, suite models.Suite, req models.RunRequest) {
	var tracker *engine.Tracker
	opts := append([]harness.Option{
		harness.WithRunID(id),
		harness.WithTrackerHook(func(t *engine.Tracker) {
			tracker = t
			m.mu.Lock()
			m.live[t] = struct{}{}
			m.mu.Unlock()
		}),
	}, m.opts...)

	rep, err := harness.NewDriver(m.launch, opts...).Run(m.base, suite)

	if tracker != nil {
		st := tracker.Stats()
		m.mu.Lock()
		delete(m.live, tracker)
		m.finished.Created += st.Created
		m.finished.Closed += st.Closed
		m.finished.Active += st.Active
		m.mu.Unlock()
	}

	m.store.Update(id, func(r *models.RunStatusResponse) {
		if err != nil {
			r.Status = models.RunStateErrored
			r.Error = models.DetailOf(err)
			return
		}
		r.Status = models.RunStateCompleted
		r.Report = &rep
	})
	if err != nil {
		slog.Error("api run errored", "run", id, "error", err)
		return
	}

	url, secret := m.hook.URL, m.hook.Secret
	if req.WebhookURL != "" {
		url, secret = req.WebhookURL, req.WebhookSecret
	}
	if url != "" {
		webhook.DeliverAsync(url, secret, &webhook.Event{
			Type:      webhook.EventRunCompleted,
			RunID:     id,
			Timestamp: time.Now().Unix(),
			Data: gin.H{
				"status":  rep.Status,
				"summary": rep.Summary,
			},
		})
	}
}

// Wait blocks until every started run finished.
func (m *RunManager) Wait() { m.wg.Wait() }

// Active returns the number of runs in progress and the run slot count.
func (m *RunManager) Active() (active, slots int) {
	return len(m.sem), cap(m.sem)
}

// ContextStats sums context bookkeeping over finished and live runs.
func (m *RunManager) ContextStats() models.ContextStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.finished
	for t := range m.live {
		st := t.Stats()
		out.Created += st.Created
		out.Closed += st.Closed
		out.Active += st.Active
	}
	return out
}

// PostRun returns a handler for POST /api/v1/runs.
// The suite is validated synchronously; the run itself is asynchronous.
func PostRun(m *RunManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		suite, req, ok := bindSuite(c, m.defaults)
		if !ok {
			return
		}
		if err := scenario.Validate(suite); err != nil {
			c.JSON(http.StatusBadRequest, configErrorResponse(err))
			return
		}

		id, err := m.Start(suite, req)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeBusy, Message: err.Error()},
			})
			return
		}
		c.JSON(http.StatusAccepted, models.RunResponse{
			ID:        id,
			Status:    models.RunStateRunning,
			Scenarios: len(suite.Scenarios),
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := store.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "run not found"},
			})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// bindSuite decodes the request, parses the suite text and resolves its
// settings against the server defaults and the request overrides. On failure
// it writes the response and returns ok == false.
func bindSuite(c *gin.Context, defaults config.HarnessConfig) (models.Suite, models.RunRequest, bool) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
		})
		return models.Suite{}, req, false
	}

	suite, err := scenario.Parse([]byte(req.Suite), "request")
	if err != nil {
		c.JSON(http.StatusBadRequest, configErrorResponse(err))
		return models.Suite{}, req, false
	}
	suite.Settings = config.ResolveSettings(defaults, suite.Settings, overrides(req))
	return suite, req, true
}

func overrides(req models.RunRequest) config.FlagValues {
	var f config.FlagValues
	if req.BaseURL != "" {
		f.BaseURL = config.StringFlag{Value: req.BaseURL, Set: true}
	}
	if req.Mode != "" {
		f.Mode = config.StringFlag{Value: req.Mode, Set: true}
	}
	if req.Parallelism > 0 {
		f.Parallelism = config.IntFlag{Value: req.Parallelism, Set: true}
	}
	if req.TimeoutSeconds > 0 {
		f.Timeout = config.DurationFlag{Value: time.Duration(req.TimeoutSeconds) * time.Second, Set: true}
	}
	return f
}

func configErrorResponse(err error) models.ValidateResponse {
	resp := models.ValidateResponse{Valid: false, Error: models.DetailOf(err)}
	var ce *models.ConfigError
	if errors.As(err, &ce) {
		resp.Problems = ce.Problems
	}
	return resp
}
