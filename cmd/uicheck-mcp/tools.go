package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/uicheck/models"
)

// client talks to the uicheck HTTP API.
type client struct {
	http         *http.Client
	apiURL       string
	apiKey       string
	pollInterval time.Duration
}

func newClient(apiURL, apiKey string) *client {
	return &client{
		http:         &http.Client{Timeout: 60 * time.Second},
		apiURL:       strings.TrimRight(apiURL, "/"),
		apiKey:       apiKey,
		pollInterval: 2 * time.Second,
	}
}

// post sends a POST request to the API and returns the status and body.
func (c *client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("X-API-Key", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// pollRun polls a run until its status is no longer "running" or ctx is cancelled.
func (c *client) pollRun(ctx context.Context, id string) (*models.RunStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, body, err := c.get(ctx, "/api/v1/runs/"+id)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}
			if status != http.StatusOK {
				return nil, fmt.Errorf("poll run: %s", apiError(status, body))
			}
			var run models.RunStatusResponse
			if err := json.Unmarshal(body, &run); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if run.Status != models.RunStateRunning {
				return &run, nil
			}
		}
	}
}

func suiteRequest(request mcp.CallToolRequest) (models.RunRequest, error) {
	suite, err := request.RequireString("suite")
	if err != nil {
		return models.RunRequest{}, fmt.Errorf("suite is required")
	}
	return models.RunRequest{
		Suite:          suite,
		BaseURL:        request.GetString("base_url", ""),
		Mode:           request.GetString("mode", ""),
		TimeoutSeconds: request.GetInt("timeout_seconds", 0),
	}, nil
}

func handleRunSuite(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := suiteRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		status, body, err := c.post(ctx, "/api/v1/runs", req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}
		if status == http.StatusBadRequest {
			var v models.ValidateResponse
			if json.Unmarshal(body, &v) == nil && v.Error != nil {
				return mcp.NewToolResultError(renderProblems(v)), nil
			}
		}
		if status != http.StatusAccepted {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		var started models.RunResponse
		if err := json.Unmarshal(body, &started); err != nil || started.ID == "" {
			return mcp.NewToolResultError("run creation failed"), nil
		}

		run, err := c.pollRun(ctx, started.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run failed: %v", err)), nil
		}
		if run.Report == nil {
			msg := "run " + run.ID + " " + run.Status
			if run.Error != nil {
				msg += fmt.Sprintf(": [%s] %s", run.Error.Code, run.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultText(renderReport(run.Report)), nil
	}
}

func handleValidateSuite(c *client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := suiteRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status, body, err := c.post(ctx, "/api/v1/validate", req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validate request failed: %v", err)), nil
		}
		var v models.ValidateResponse
		if err := json.Unmarshal(body, &v); err != nil {
			return mcp.NewToolResultError(apiError(status, body)), nil
		}
		if !v.Valid {
			return mcp.NewToolResultError(renderProblems(v)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Suite is valid: %d scenarios, %d steps", v.Scenarios, v.Steps)), nil
	}
}

// renderReport formats a report as one block per scenario followed by totals.
func renderReport(rep *models.Report) string {
	var sb strings.Builder
	s := rep.Summary
	fmt.Fprintf(&sb, "Run %s: %s (%d/%d scenarios passed)\n\n", rep.RunID, rep.Status, s.PassedScenarios, s.TotalScenarios)

	for _, sc := range rep.Scenarios {
		passed, failed, skipped := sc.Counts()
		fmt.Fprintf(&sb, "--- %s: %s (%d passed, %d failed, %d skipped) ---\n", sc.Scenario, sc.Status, passed, failed, skipped)
		for _, st := range sc.Steps {
			if st.Status != models.StatusFailed || st.Error == nil {
				continue
			}
			fmt.Fprintf(&sb, "step %d (%s): [%s] %s\n", st.Step.Index+1, st.Step.Description, st.Error.Code, st.Error.Message)
			if st.Error.Expected != "" || st.Error.Actual != "" {
				fmt.Fprintf(&sb, "  expected %s, got %s\n", st.Error.Expected, st.Error.Actual)
			}
		}
		for _, a := range sc.Artifacts {
			fmt.Fprintf(&sb, "artifact: %s\n", a)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Steps: %d passed, %d failed, %d skipped", s.Passed, s.Failed, s.Skipped)
	return sb.String()
}

func renderProblems(v models.ValidateResponse) string {
	if len(v.Problems) == 0 && v.Error != nil {
		return fmt.Sprintf("[%s] %s", v.Error.Code, v.Error.Message)
	}
	return "Suite is invalid:\n- " + strings.Join(v.Problems, "\n- ")
}

func apiError(status int, body []byte) string {
	var e models.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != nil {
		return fmt.Sprintf("[%s] %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Sprintf("API returned status %d", status)
}
