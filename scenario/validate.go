package scenario

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/uicheck/engine"
	"github.com/use-agent/uicheck/models"
)

// Validate checks a parsed suite and returns a *models.ConfigError listing
// every problem, or nil. Settings are expected to be resolved (defaults
// applied) before the call.
func Validate(suite models.Suite) error {
	v := &validator{errs: &models.ConfigError{}, shots: make(map[string]string)}
	v.settings(suite.Settings)

	if len(suite.Scenarios) == 0 {
		v.errs.Add("suite declares no scenarios")
	}
	seen := make(map[string]int, len(suite.Scenarios))
	for i, sc := range suite.Scenarios {
		label := sc.Name
		if sc.Name == "" {
			label = fmt.Sprintf("#%d", i+1)
			v.errs.Add("scenario %s: missing name", label)
		} else if first, dup := seen[sc.Name]; dup {
			v.errs.Add("scenario %q: duplicate name (first declared as scenario %d)", sc.Name, first+1)
		} else {
			seen[sc.Name] = i
		}
		v.scenario(label, sc, suite.Settings)
	}
	return v.errs.OrNil()
}

type validator struct {
	errs *models.ConfigError
	// shots maps a cleaned screenshot path to the step that first wrote it.
	// Paths are unique across the suite since parallel scenarios share the
	// artifact directory.
	shots map[string]string
}

func (v *validator) settings(s models.Settings) {
	switch s.Mode {
	case models.ModeSequential, models.ModeParallel:
	default:
		v.errs.Add("settings: invalid mode %q (want sequential or parallel)", s.Mode)
	}
	if s.Parallelism < 1 {
		v.errs.Add("settings: parallelism must be >= 1, got %d", s.Parallelism)
	}
	if s.Timeout < 0 {
		v.errs.Add("settings: negative timeout %s", s.Timeout)
	}
	if s.StepTimeout < 0 {
		v.errs.Add("settings: negative step_timeout %s", s.StepTimeout)
	}
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err != nil || !u.IsAbs() || u.Host == "" {
			v.errs.Add("settings: base_url %q must be an absolute URL", s.BaseURL)
		}
	}
}

func (v *validator) scenario(label string, sc models.Scenario, settings models.Settings) {
	where := fmt.Sprintf("scenario %q", label)
	vp := sc.Viewport
	if vp.Width <= 0 || vp.Height <= 0 {
		v.errs.Add("%s: viewport %dx%d must be positive", where, vp.Width, vp.Height)
	}
	if vp.DeviceScaleFactor < 0 {
		v.errs.Add("%s: negative device_scale_factor", where)
	}
	if len(sc.Steps) == 0 {
		v.errs.Add("%s: no steps", where)
	}

	for i, st := range sc.Steps {
		sw := fmt.Sprintf("%s step %d", where, i+1)
		if st.Timeout < 0 {
			v.errs.Add("%s: negative timeout", sw)
		}
		if st.Action == nil {
			v.errs.Add("%s: missing action", sw)
			continue
		}
		v.action(sw, st.Action, settings)

		if shot, ok := st.Action.(models.Screenshot); ok && shot.Path != "" {
			key := filepath.Clean(shot.Path)
			if first, dup := v.shots[key]; dup {
				v.errs.Add("%s: screenshot path %q already used by %s", sw, shot.Path, first)
			} else {
				v.shots[key] = sw
			}
		}
	}
}

func (v *validator) action(where string, a models.Action, settings models.Settings) {
	switch a := a.(type) {
	case models.Navigate:
		v.url(where, a.URL, settings.BaseURL)
	case models.WaitFor:
		v.locator(where, a.Locator)
		v.state(where, a.State, models.WaitStates)
	case models.WaitIdle:
	case models.Click:
		v.locator(where, a.Locator)
	case models.Fill:
		v.locator(where, a.Locator)
	case models.Select:
		v.locator(where, a.Locator)
		if a.Option == "" {
			v.errs.Add("%s: select needs an option", where)
		}
	case models.Scroll:
		switch {
		case a.Locator != "":
			v.locator(where, a.Locator)
		case a.To != "":
			if a.To != "top" && a.To != "bottom" {
				v.errs.Add("%s: scroll to %q (want top or bottom)", where, a.To)
			}
		default:
			if a.Pages < 0 {
				v.errs.Add("%s: negative scroll pages", where)
			}
			if a.Direction != "" && a.Direction != "up" && a.Direction != "down" {
				v.errs.Add("%s: scroll direction %q (want up or down)", where, a.Direction)
			}
		}
	case models.Evaluate:
		if strings.TrimSpace(a.Script) == "" {
			v.errs.Add("%s: empty script", where)
		}
	case models.Assert:
		v.assert(where, a)
	case models.Screenshot:
		v.screenshot(where, a.Path)
	case models.Delay:
		if a.Duration <= 0 {
			v.errs.Add("%s: delay needs a positive duration", where)
		}
	default:
		v.errs.Add("%s: unsupported action %T", where, a)
	}
}

func (v *validator) assert(where string, a models.Assert) {
	elementCheck := a.State != "" || a.Text != "" || a.Attribute != "" || a.Value != nil
	if a.Locator == "" && elementCheck {
		v.errs.Add("%s: element assertions need a locator", where)
	}
	if a.Locator == "" && a.URL == "" && a.Title == "" {
		v.errs.Add("%s: assert needs a locator, url or title", where)
	}
	if a.Value != nil && a.Attribute == "" {
		v.errs.Add("%s: value given without attribute", where)
	}
	if a.Locator != "" {
		v.locator(where, a.Locator)
	}
	v.state(where, a.State, models.AssertStates)
}

func (v *validator) url(where, raw, baseURL string) {
	if raw == "" {
		v.errs.Add("%s: navigate needs a url", where)
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		v.errs.Add("%s: invalid url %q: %v", where, raw, err)
		return
	}
	if !u.IsAbs() && baseURL == "" {
		v.errs.Add("%s: relative url %q needs settings.base_url", where, raw)
	}
}

// locator checks that loc parses and, for CSS, compiles.
func (v *validator) locator(where, raw string) {
	if raw == "" {
		v.errs.Add("%s: missing locator", where)
		return
	}
	loc, err := engine.ParseLocator(raw)
	if err != nil {
		v.errs.Add("%s: %v", where, err)
		return
	}
	if loc.Kind == engine.LocatorCSS {
		if _, err := cascadia.Compile(loc.Expr); err != nil {
			v.errs.Add("%s: invalid css selector %q: %v", where, loc.Expr, err)
		}
	}
}

func (v *validator) state(where string, s models.ElementState, allowed []models.ElementState) {
	if s == "" || slices.Contains(allowed, s) {
		return
	}
	v.errs.Add("%s: invalid state %q (want one of %v)", where, s, allowed)
}

func (v *validator) screenshot(where, path string) {
	if path == "" {
		v.errs.Add("%s: screenshot needs a path", where)
		return
	}
	if !filepath.IsLocal(path) {
		v.errs.Add("%s: screenshot path %q must stay inside the artifact directory", where, path)
		return
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".png" {
		v.errs.Add("%s: screenshot path %q must end in .png", where, path)
	}
}
