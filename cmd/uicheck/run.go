package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/use-agent/uicheck/config"
	"github.com/use-agent/uicheck/harness"
	"github.com/use-agent/uicheck/models"
	"github.com/use-agent/uicheck/report"
	"github.com/use-agent/uicheck/scenario"
)

var errScenariosFailed = errors.New("one or more scenarios failed")

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <suite.yml>",
		Short: "Execute a suite and report per-scenario outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExecute(cmd, args[0])
		},
	}
	cmd.Flags().String("format", report.FormatPretty, "output format (pretty|json)")
	cmd.Flags().String("report-file", "", "also write the JSON report to this path")
	cmd.Flags().BoolP("verbose", "v", false, "list every step, not only failures")
	return cmd
}

func (a *app) runExecute(cmd *cobra.Command, path string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != report.FormatPretty && format != report.FormatJSON {
		return &exitError{code: 2, err: fmt.Errorf("unsupported format %q", format)}
	}
	reportFile, _ := cmd.Flags().GetString("report-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	suite, err := a.loadSuite(cmd, path)
	if err != nil {
		return err
	}

	rep, err := harness.NewDriver(a.launch, a.opts...).Run(cmd.Context(), suite)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	switch format {
	case report.FormatJSON:
		err = report.NewJSON(cmd.OutOrStdout()).Render(rep)
	default:
		err = report.NewPretty(cmd.OutOrStdout(), verbose).Render(rep)
	}
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("render report: %w", err)}
	}
	if reportFile != "" {
		if err := report.WriteFile(reportFile, rep); err != nil {
			return &exitError{code: 2, err: err}
		}
	}

	if rep.Summary.ExitCode != 0 {
		return &exitError{code: rep.Summary.ExitCode, err: errScenariosFailed}
	}
	return nil
}

// loadSuite reads the suite at path and resolves its settings against the
// environment defaults and the command line flags.
func (a *app) loadSuite(cmd *cobra.Command, path string) (models.Suite, error) {
	suite, err := scenario.Load(path)
	if err != nil {
		return models.Suite{}, &exitError{code: 2, err: err}
	}
	flags, err := gatherFlags(cmd)
	if err != nil {
		return models.Suite{}, &exitError{code: 2, err: err}
	}
	suite.Settings = config.ResolveSettings(a.cfg.Harness, suite.Settings, flags)
	return suite, nil
}
