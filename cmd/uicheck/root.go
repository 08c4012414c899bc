package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "uicheck",
		Short:         "Uicheck runs scripted UI verification suites against a browser",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("base-url", "", "base URL for relative navigate targets")
	persistent.String("mode", "", "scenario scheduling (sequential|parallel)")
	persistent.Int("parallelism", 0, "maximum concurrent scenarios in parallel mode")
	persistent.Duration("timeout", 0, "global harness timeout (0 disables it)")
	persistent.Duration("step-timeout", 0, "default per-step timeout")
	persistent.String("artifact-dir", "", "directory receiving screenshots")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newValidateCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}
