package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/use-agent/uicheck/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	if flags.Changed("base-url") {
		v, err := flags.GetString("base-url")
		if err != nil {
			return values, fmt.Errorf("parse --base-url: %w", err)
		}
		values.BaseURL = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("mode") {
		v, err := flags.GetString("mode")
		if err != nil {
			return values, fmt.Errorf("parse --mode: %w", err)
		}
		values.Mode = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("parallelism") {
		v, err := flags.GetInt("parallelism")
		if err != nil {
			return values, fmt.Errorf("parse --parallelism: %w", err)
		}
		values.Parallelism = config.IntFlag{Value: v, Set: true}
	}

	if flags.Changed("timeout") {
		v, err := flags.GetDuration("timeout")
		if err != nil {
			return values, fmt.Errorf("parse --timeout: %w", err)
		}
		values.Timeout = config.DurationFlag{Value: v, Set: true}
	}

	if flags.Changed("step-timeout") {
		v, err := flags.GetDuration("step-timeout")
		if err != nil {
			return values, fmt.Errorf("parse --step-timeout: %w", err)
		}
		values.StepTimeout = config.DurationFlag{Value: v, Set: true}
	}

	if flags.Changed("artifact-dir") {
		v, err := flags.GetString("artifact-dir")
		if err != nil {
			return values, fmt.Errorf("parse --artifact-dir: %w", err)
		}
		values.ArtifactDir = config.StringFlag{Value: v, Set: true}
	}

	return values, nil
}
