package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/uicheck/models"
)

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return tc.Text
}

func sampleReport() *models.Report {
	return &models.Report{
		RunID:  "r1",
		Status: models.RunFailed,
		Scenarios: []models.ScenarioOutcome{{
			Scenario: "contact-form",
			Status:   models.RunFailed,
			Steps: []models.StepOutcome{
				{Step: models.StepRef{Index: 0, Description: "navigate /contact"}, Status: models.StatusFailed,
					Error: &models.ErrorDetail{Code: models.ErrCodeNavigation, Message: "navigation returned HTTP 404", Expected: "2xx", Actual: "404"}},
				{Step: models.StepRef{Index: 1, Description: "click #send"}, Status: models.StatusSkipped, Reason: "critical step 1 failed"},
			},
		}},
		Summary: models.Summary{TotalScenarios: 1, FailedScenarios: 1, Failed: 1, Skipped: 1},
	}
}

func TestRenderReport(t *testing.T) {
	out := renderReport(sampleReport())
	for _, want := range []string{
		"Run r1: failed (0/1 scenarios passed)",
		"--- contact-form: failed (0 passed, 1 failed, 1 skipped) ---",
		"step 1 (navigate /contact): [NAVIGATION_ERROR] navigation returned HTTP 404",
		"expected 2xx, got 404",
		"Steps: 0 passed, 1 failed, 1 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunSuitePollsUntilDone(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs":
			var req models.RunRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Mode != "parallel" || req.TimeoutSeconds != 30 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(models.RunResponse{ID: "r1", Status: models.RunStateRunning})
		case r.URL.Path == "/api/v1/runs/r1":
			run := models.RunStatusResponse{ID: "r1", Status: models.RunStateRunning}
			if polls.Add(1) >= 2 {
				run.Status = models.RunStateCompleted
				run.Report = sampleReport()
			}
			_ = json.NewEncoder(w).Encode(run)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL, "k")
	c.pollInterval = 5 * time.Millisecond
	res, err := handleRunSuite(c)(context.Background(), toolRequest(map[string]any{
		"suite":           "scenarios: []",
		"mode":            "parallel",
		"timeout_seconds": 30,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "contact-form: failed") {
		t.Errorf("result = %s", resultText(t, res))
	}
	if polls.Load() < 2 {
		t.Errorf("polls = %d", polls.Load())
	}
}

func TestValidateSuiteReportsProblems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.ValidateResponse{
			Valid:    false,
			Problems: []string{`scenario "a": duplicate name`},
			Error:    &models.ErrorDetail{Code: models.ErrCodeConfiguration, Message: "1 problem"},
		})
	}))
	defer srv.Close()

	res, err := handleValidateSuite(newClient(srv.URL, "k"))(context.Background(), toolRequest(map[string]any{"suite": "x"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "duplicate name") {
		t.Errorf("result = %+v", res)
	}

	res, _ = handleValidateSuite(newClient(srv.URL, "k"))(context.Background(), toolRequest(map[string]any{}))
	if !res.IsError {
		t.Error("missing suite accepted")
	}
}
