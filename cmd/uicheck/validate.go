package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/use-agent/uicheck/scenario"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <suite.yml>",
		Short: "Check a suite for configuration errors without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := a.loadSuite(cmd, args[0])
			if err != nil {
				return err
			}
			if err := scenario.Validate(suite); err != nil {
				return &exitError{code: 2, err: err}
			}

			steps := 0
			for _, sc := range suite.Scenarios {
				steps += len(sc.Steps)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d scenarios, %d steps\n", len(suite.Scenarios), steps)
			return nil
		},
	}
}
