package config

import (
	"time"

	"github.com/use-agent/uicheck/models"
)

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	BaseURL     StringFlag
	Mode        StringFlag
	Parallelism IntFlag
	Timeout     DurationFlag
	StepTimeout DurationFlag
	ArtifactDir StringFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// DurationFlag represents a duration flag and whether it was set.
type DurationFlag struct {
	Value time.Duration
	Set   bool
}

// Settings returns the harness defaults as run settings.
func (h HarnessConfig) Settings() models.Settings {
	return models.Settings{
		BaseURL:     h.BaseURL,
		Mode:        models.Mode(h.Mode),
		Parallelism: h.Parallelism,
		Timeout:     h.RunTimeout,
		StepTimeout: h.StepTimeout,
		ArtifactDir: h.ArtifactDir,
	}
}

// ResolveSettings layers environment defaults, the suite's settings block and
// CLI flags, in increasing precedence.
func ResolveSettings(h HarnessConfig, suite models.Settings, flags FlagValues) models.Settings {
	out := merge(h.Settings(), suite)
	ApplyFlags(&out, flags)
	return out.WithDefaults()
}

func merge(base, override models.Settings) models.Settings {
	out := base

	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Mode != "" {
		out.Mode = override.Mode
	}
	if override.Parallelism != 0 {
		out.Parallelism = override.Parallelism
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.StepTimeout != 0 {
		out.StepTimeout = override.StepTimeout
	}
	if override.ArtifactDir != "" {
		out.ArtifactDir = override.ArtifactDir
	}

	return out
}

// ApplyFlags mutates s by applying values from CLI flags when they are present.
func ApplyFlags(s *models.Settings, flags FlagValues) {
	if flags.BaseURL.Set {
		s.BaseURL = flags.BaseURL.Value
	}
	if flags.Mode.Set {
		s.Mode = models.Mode(flags.Mode.Value)
	}
	if flags.Parallelism.Set {
		s.Parallelism = flags.Parallelism.Value
	}
	if flags.Timeout.Set {
		s.Timeout = flags.Timeout.Value
	}
	if flags.StepTimeout.Set {
		s.StepTimeout = flags.StepTimeout.Value
	}
	if flags.ArtifactDir.Set {
		s.ArtifactDir = flags.ArtifactDir.Value
	}
}
