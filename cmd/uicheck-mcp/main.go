package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("UICHECK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("UICHECK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "UICHECK_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"uicheck",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	runSuiteTool := mcp.NewTool("run_suite",
		mcp.WithDescription("Run a UI verification suite (YAML) in a headless browser and report per-scenario pass/fail with failure details."),
		mcp.WithString("suite",
			mcp.Required(),
			mcp.Description("Suite definition as YAML text: optional settings block and a list of scenarios with steps"),
		),
		mcp.WithString("base_url",
			mcp.Description("Base URL for relative navigate targets; overrides settings.base_url"),
		),
		mcp.WithString("mode",
			mcp.Description("Scenario scheduling: 'sequential' (default) or 'parallel'"),
			mcp.Enum("sequential", "parallel"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Global harness timeout in seconds (default: none, max: 3600)"),
		),
	)
	s.AddTool(runSuiteTool, handleRunSuite(newClient(apiURL, apiKey)))

	validateSuiteTool := mcp.NewTool("validate_suite",
		mcp.WithDescription("Check a UI verification suite for configuration errors without running it."),
		mcp.WithString("suite",
			mcp.Required(),
			mcp.Description("Suite definition as YAML text"),
		),
		mcp.WithString("base_url",
			mcp.Description("Base URL for relative navigate targets"),
		),
	)
	s.AddTool(validateSuiteTool, handleValidateSuite(newClient(apiURL, apiKey)))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
