package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how the driver schedules scenarios.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// DefaultStepTimeout applies to any step without its own timeout.
const DefaultStepTimeout = 30 * time.Second

// Suite is a parsed scenario definition file.
type Suite struct {
	Settings  Settings
	Scenarios []Scenario
}

// Settings are the harness-level options of a run.
type Settings struct {
	// BaseURL resolves relative navigate targets.
	BaseURL string `json:"base_url,omitempty"`

	// Mode is sequential (default) or parallel.
	Mode Mode `json:"mode"`

	// Parallelism caps concurrent scenarios in parallel mode.
	Parallelism int `json:"parallelism"`

	// Timeout is the global harness deadline. Zero disables it.
	Timeout time.Duration `json:"-"`

	// StepTimeout is the default per-step deadline.
	StepTimeout time.Duration `json:"-"`

	// ArtifactDir is where screenshots are written.
	ArtifactDir string `json:"artifact_dir"`
}

// Viewport configures the browsing context of one scenario.
type Viewport struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Mobile            bool    `json:"mobile,omitempty"`
	DeviceScaleFactor float64 `json:"device_scale_factor,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
}

// DefaultViewport is used when a scenario declares none.
var DefaultViewport = Viewport{Width: 1280, Height: 720}

// Scenario is one named, ordered sequence of steps run in its own context.
type Scenario struct {
	Name     string
	Viewport Viewport
	Steps    []Step
}

// Step is one declarative unit of work.
type Step struct {
	// Name is an optional human label.
	Name string

	// Timeout overrides Settings.StepTimeout when > 0.
	Timeout time.Duration

	// Soft steps record failures but never abort the scenario.
	Soft bool

	Action Action
}

// Critical reports whether a failure of this step aborts the scenario.
func (s Step) Critical() bool { return !s.Soft }

// Label returns the step name, or its description when unnamed.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Action == nil {
		return "<empty>"
	}
	return s.Action.Describe()
}

// StepKind identifies the concrete Action of a step.
type StepKind string

const (
	KindNavigate   StepKind = "navigate"
	KindWaitFor    StepKind = "wait_for"
	KindWaitIdle   StepKind = "wait_idle"
	KindClick      StepKind = "click"
	KindFill       StepKind = "fill"
	KindSelect     StepKind = "select"
	KindScroll     StepKind = "scroll"
	KindEvaluate   StepKind = "evaluate"
	KindAssert     StepKind = "assert"
	KindScreenshot StepKind = "screenshot"
	KindDelay      StepKind = "delay"
)

// Kinds lists every step kind in documentation order.
var Kinds = []StepKind{
	KindNavigate, KindWaitFor, KindWaitIdle, KindClick, KindFill, KindSelect,
	KindScroll, KindEvaluate, KindAssert, KindScreenshot, KindDelay,
}

// Action is the tagged variant carried by a Step. The set of implementations
// is closed to this package.
type Action interface {
	Kind() StepKind
	Describe() string
	isAction()
}

// ElementState is a target state for waits and assertions.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
	StateEnabled  ElementState = "enabled"
	StateDisabled ElementState = "disabled"
)

// WaitStates are the states accepted by wait_for.
var WaitStates = []ElementState{StateVisible, StateHidden, StateAttached, StateDetached}

// AssertStates are the states accepted by assert.
var AssertStates = []ElementState{StateVisible, StateHidden, StateAttached, StateDetached, StateEnabled, StateDisabled}

type Navigate struct {
	URL string
}

type WaitFor struct {
	Locator string
	State   ElementState
}

// WaitIdle waits for the page to settle (DOM stable, no pending requests).
type WaitIdle struct{}

type Click struct {
	Locator string
}

type Fill struct {
	Locator string
	Value   string
}

// Select picks an option of a <select> by visible text or value.
type Select struct {
	Locator string
	Option  string
}

// Scroll moves the viewport. Exactly one of Locator, To or Pages applies,
// in that order of precedence.
type Scroll struct {
	Locator   string
	To        string // "top" or "bottom"
	Pages     int
	Direction string // "up" or "down"
}

type Evaluate struct {
	Script string
	// Expect, when set, must equal the stringified script result.
	Expect *string
}

// Assert is a read-only check. Element checks need Locator; URL and Title are
// page-level "contains" checks.
type Assert struct {
	Locator   string
	State     ElementState
	Text      string
	Attribute string
	Value     *string
	URL       string
	Title     string
}

type Screenshot struct {
	Path     string
	FullPage bool
}

// Delay is a bounded fixed wait for cases with no observable DOM signal.
type Delay struct {
	Duration time.Duration
}

func (Navigate) Kind() StepKind   { return KindNavigate }
func (WaitFor) Kind() StepKind    { return KindWaitFor }
func (WaitIdle) Kind() StepKind   { return KindWaitIdle }
func (Click) Kind() StepKind      { return KindClick }
func (Fill) Kind() StepKind       { return KindFill }
func (Select) Kind() StepKind     { return KindSelect }
func (Scroll) Kind() StepKind     { return KindScroll }
func (Evaluate) Kind() StepKind   { return KindEvaluate }
func (Assert) Kind() StepKind     { return KindAssert }
func (Screenshot) Kind() StepKind { return KindScreenshot }
func (Delay) Kind() StepKind      { return KindDelay }

func (Navigate) isAction()   {}
func (WaitFor) isAction()    {}
func (WaitIdle) isAction()   {}
func (Click) isAction()      {}
func (Fill) isAction()       {}
func (Select) isAction()     {}
func (Scroll) isAction()     {}
func (Evaluate) isAction()   {}
func (Assert) isAction()     {}
func (Screenshot) isAction() {}
func (Delay) isAction()      {}

func (a Navigate) Describe() string { return "navigate " + a.URL }

func (a WaitFor) Describe() string {
	return fmt.Sprintf("wait for %s to be %s", a.Locator, a.effectiveState())
}

func (a WaitFor) effectiveState() ElementState {
	if a.State == "" {
		return StateVisible
	}
	return a.State
}

// TargetState returns the awaited state, defaulting to visible.
func (a WaitFor) TargetState() ElementState { return a.effectiveState() }

func (WaitIdle) Describe() string { return "wait for idle" }

func (a Click) Describe() string { return "click " + a.Locator }

func (a Fill) Describe() string { return fmt.Sprintf("fill %s with %q", a.Locator, a.Value) }

func (a Select) Describe() string { return fmt.Sprintf("select %q in %s", a.Option, a.Locator) }

func (a Scroll) Describe() string {
	switch {
	case a.Locator != "":
		return "scroll to " + a.Locator
	case a.To != "":
		return "scroll to " + a.To
	default:
		dir := a.Direction
		if dir == "" {
			dir = "down"
		}
		return fmt.Sprintf("scroll %s %d page(s)", dir, max(a.Pages, 1))
	}
}

func (a Evaluate) Describe() string {
	script := strings.Join(strings.Fields(a.Script), " ")
	if len(script) > 60 {
		script = script[:57] + "..."
	}
	return "evaluate " + script
}

func (a Assert) Describe() string {
	var parts []string
	if a.State != "" {
		parts = append(parts, fmt.Sprintf("%s is %s", a.Locator, a.State))
	}
	if a.Text != "" {
		parts = append(parts, fmt.Sprintf("%s contains %q", a.Locator, a.Text))
	}
	if a.Attribute != "" {
		if a.Value != nil {
			parts = append(parts, fmt.Sprintf("%s[%s] == %q", a.Locator, a.Attribute, *a.Value))
		} else {
			parts = append(parts, fmt.Sprintf("%s has [%s]", a.Locator, a.Attribute))
		}
	}
	if a.URL != "" {
		parts = append(parts, fmt.Sprintf("url contains %q", a.URL))
	}
	if a.Title != "" {
		parts = append(parts, fmt.Sprintf("title contains %q", a.Title))
	}
	if len(parts) == 0 && a.Locator != "" {
		parts = append(parts, a.Locator+" is visible")
	}
	return "assert " + strings.Join(parts, ", ")
}

func (a Screenshot) Describe() string {
	if a.FullPage {
		return "screenshot " + a.Path + " (full page)"
	}
	return "screenshot " + a.Path
}

func (a Delay) Describe() string { return "delay " + a.Duration.String() }

// DefaultParallelism caps parallel mode when no limit is configured.
const DefaultParallelism = 4

// DefaultArtifactDir receives screenshots when no directory is configured.
const DefaultArtifactDir = "artifacts"

// WithDefaults fills unset fields with the built-in defaults.
func (s Settings) WithDefaults() Settings {
	if s.Mode == "" {
		s.Mode = ModeSequential
	}
	if s.Parallelism == 0 {
		s.Parallelism = DefaultParallelism
	}
	if s.StepTimeout == 0 {
		s.StepTimeout = DefaultStepTimeout
	}
	if s.ArtifactDir == "" {
		s.ArtifactDir = DefaultArtifactDir
	}
	return s
}
