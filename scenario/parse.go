// Package scenario loads suite definitions from YAML and validates them.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/use-agent/uicheck/models"
	"gopkg.in/yaml.v3"
)

type document struct {
	Settings  settingsDoc   `yaml:"settings"`
	Scenarios []scenarioDoc `yaml:"scenarios"`
}

type settingsDoc struct {
	BaseURL     string `yaml:"base_url"`
	Mode        string `yaml:"mode"`
	Parallelism int    `yaml:"parallelism"`
	Timeout     string `yaml:"timeout"`
	StepTimeout string `yaml:"step_timeout"`
	ArtifactDir string `yaml:"artifact_dir"`
}

type scenarioDoc struct {
	Name     string       `yaml:"name"`
	Viewport *viewportDoc `yaml:"viewport"`
	Steps    []yaml.Node  `yaml:"steps"`
}

type viewportDoc struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	Mobile            bool    `yaml:"mobile"`
	DeviceScaleFactor float64 `yaml:"device_scale_factor"`
	UserAgent         string  `yaml:"user_agent"`
}

// stepKeys are accepted next to the action key, and inside a mapping action
// argument.
var stepKeys = []string{"name", "timeout", "soft"}

// Load reads and parses the suite file at path.
func Load(path string) (models.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Suite{}, fmt.Errorf("read suite %q: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes a suite. Structural problems (unknown keys, missing or
// malformed action arguments) are collected into one *models.ConfigError.
// Semantic checks are left to Validate.
func Parse(data []byte, source string) (models.Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return models.Suite{}, &models.ConfigError{Source: source, Problems: []string{"empty suite"}}
		}
		return models.Suite{}, &models.ConfigError{Source: source, Problems: []string{err.Error()}}
	}

	p := &parser{errs: &models.ConfigError{Source: source}}
	suite := models.Suite{Settings: p.settings(doc.Settings)}
	for i, sd := range doc.Scenarios {
		suite.Scenarios = append(suite.Scenarios, p.scenario(i, sd))
	}
	if err := p.errs.OrNil(); err != nil {
		return models.Suite{}, err
	}
	return suite, nil
}

type parser struct {
	errs *models.ConfigError
}

func (p *parser) settings(d settingsDoc) models.Settings {
	s := models.Settings{
		BaseURL:     d.BaseURL,
		Mode:        models.Mode(d.Mode),
		Parallelism: d.Parallelism,
		ArtifactDir: d.ArtifactDir,
	}
	if d.Timeout != "" {
		s.Timeout = p.duration("settings.timeout", d.Timeout)
	}
	if d.StepTimeout != "" {
		s.StepTimeout = p.duration("settings.step_timeout", d.StepTimeout)
	}
	return s
}

func (p *parser) scenario(i int, d scenarioDoc) models.Scenario {
	sc := models.Scenario{Name: d.Name, Viewport: models.DefaultViewport}
	if d.Viewport != nil {
		sc.Viewport = models.Viewport{
			Width:             d.Viewport.Width,
			Height:            d.Viewport.Height,
			Mobile:            d.Viewport.Mobile,
			DeviceScaleFactor: d.Viewport.DeviceScaleFactor,
			UserAgent:         d.Viewport.UserAgent,
		}
	}
	label := d.Name
	if label == "" {
		label = "#" + strconv.Itoa(i+1)
	}
	for j := range d.Steps {
		where := fmt.Sprintf("scenario %q step %d", label, j+1)
		sc.Steps = append(sc.Steps, p.step(&d.Steps[j], where))
	}
	return sc
}

func (p *parser) problem(n *yaml.Node, where, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if n != nil && n.Line > 0 {
		p.errs.Add("line %d: %s: %s", n.Line, where, msg)
		return
	}
	p.errs.Add("%s: %s", where, msg)
}

func (p *parser) duration(where, s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		p.errs.Add("%s: invalid duration %q", where, s)
		return 0
	}
	return d
}

// step decodes one step mapping: exactly one action key plus optional
// name, timeout and soft.
func (p *parser) step(n *yaml.Node, where string) models.Step {
	var step models.Step
	if n.Kind != yaml.MappingNode {
		p.problem(n, where, "step must be a mapping with one action key")
		return step
	}

	var actionKey string
	var arg *yaml.Node
	for k := 0; k+1 < len(n.Content); k += 2 {
		key, val := n.Content[k].Value, n.Content[k+1]
		switch {
		case slices.Contains(stepKeys, key):
			p.stepOption(&step, key, val, where)
		case slices.Contains(models.Kinds, models.StepKind(key)):
			if actionKey != "" {
				p.problem(n.Content[k], where, "multiple actions %q and %q", actionKey, key)
				continue
			}
			actionKey, arg = key, val
		default:
			p.problem(n.Content[k], where, "unknown key %q", key)
		}
	}
	if actionKey == "" {
		p.problem(n, where, "no action (want one of %v)", models.Kinds)
		return step
	}

	a := &args{p: p, where: where + " (" + actionKey + ")", node: arg}
	step.Action = a.action(models.StepKind(actionKey), &step)
	return step
}

func (p *parser) stepOption(step *models.Step, key string, val *yaml.Node, where string) {
	switch key {
	case "name":
		step.Name = val.Value
	case "timeout":
		step.Timeout = p.nodeDuration(val, where+": timeout")
	case "soft":
		b, err := strconv.ParseBool(val.Value)
		if err != nil || val.Kind != yaml.ScalarNode {
			p.problem(val, where, "soft must be true or false")
			return
		}
		step.Soft = b
	}
}

func (p *parser) nodeDuration(n *yaml.Node, where string) time.Duration {
	if n.Kind != yaml.ScalarNode {
		p.problem(n, where, "want a duration such as 5s")
		return 0
	}
	d, err := time.ParseDuration(n.Value)
	if err != nil {
		p.problem(n, where, "invalid duration %q", n.Value)
		return 0
	}
	if d < 0 {
		p.problem(n, where, "negative duration %q", n.Value)
		return 0
	}
	return d
}

// args reads the argument node of one action.
type args struct {
	p     *parser
	where string
	node  *yaml.Node
	seen  []string
}

func (a *args) isScalar() bool { return a.node.Kind == yaml.ScalarNode && a.node.Tag != "!!null" }

func (a *args) isNull() bool { return a.node.Kind == yaml.ScalarNode && a.node.Tag == "!!null" }

func (a *args) isMap() bool { return a.node.Kind == yaml.MappingNode }

func (a *args) problem(format string, v ...any) { a.p.problem(a.node, a.where, format, v...) }

// field returns the value node of key in a mapping argument.
func (a *args) field(key string) *yaml.Node {
	a.seen = append(a.seen, key)
	for k := 0; k+1 < len(a.node.Content); k += 2 {
		if a.node.Content[k].Value == key {
			return a.node.Content[k+1]
		}
	}
	return nil
}

func (a *args) str(key string) string {
	v := a.field(key)
	if v == nil {
		return ""
	}
	if v.Kind != yaml.ScalarNode {
		a.p.problem(v, a.where, "%s must be a string", key)
		return ""
	}
	return v.Value
}

func (a *args) optStr(key string) *string {
	v := a.field(key)
	if v == nil {
		return nil
	}
	if v.Kind != yaml.ScalarNode {
		a.p.problem(v, a.where, "%s must be a string", key)
		return nil
	}
	s := v.Value
	return &s
}

func (a *args) boolean(key string) bool {
	v := a.field(key)
	if v == nil {
		return false
	}
	b, err := strconv.ParseBool(v.Value)
	if err != nil || v.Kind != yaml.ScalarNode {
		a.p.problem(v, a.where, "%s must be true or false", key)
		return false
	}
	return b
}

func (a *args) integer(key string) int {
	v := a.field(key)
	if v == nil {
		return 0
	}
	i, err := strconv.Atoi(v.Value)
	if err != nil || v.Kind != yaml.ScalarNode {
		a.p.problem(v, a.where, "%s must be an integer", key)
		return 0
	}
	return i
}

// finish lifts step options out of a mapping argument and reports keys that
// were never read.
func (a *args) finish(step *models.Step) {
	for k := 0; k+1 < len(a.node.Content); k += 2 {
		key := a.node.Content[k].Value
		if slices.Contains(stepKeys, key) {
			a.p.stepOption(step, key, a.node.Content[k+1], a.where)
			continue
		}
		if !slices.Contains(a.seen, key) {
			a.p.problem(a.node.Content[k], a.where, "unknown argument %q", key)
		}
	}
}

// scalarOr decodes a scalar shorthand into one field, or a mapping argument
// with the given reader.
func (a *args) scalarOr(step *models.Step, shorthand *string, fromMap func()) bool {
	switch {
	case a.isScalar():
		*shorthand = a.node.Value
		return true
	case a.isMap():
		fromMap()
		a.finish(step)
		return true
	default:
		a.problem("want a string or a mapping")
		return false
	}
}

func (a *args) action(kind models.StepKind, step *models.Step) models.Action {
	switch kind {
	case models.KindNavigate:
		var act models.Navigate
		a.scalarOr(step, &act.URL, func() { act.URL = a.str("url") })
		return act

	case models.KindWaitFor:
		var act models.WaitFor
		a.scalarOr(step, &act.Locator, func() {
			act.Locator = a.str("locator")
			act.State = models.ElementState(a.str("state"))
		})
		return act

	case models.KindWaitIdle:
		switch {
		case a.isNull(), a.isScalar() && a.node.Value == "true":
		case a.isMap():
			a.finish(step)
		default:
			a.problem("wait_idle takes no arguments")
		}
		return models.WaitIdle{}

	case models.KindClick:
		var act models.Click
		a.scalarOr(step, &act.Locator, func() { act.Locator = a.str("locator") })
		return act

	case models.KindFill:
		var act models.Fill
		if !a.isMap() {
			a.problem("fill needs a mapping with locator and value")
			return act
		}
		act.Locator = a.str("locator")
		act.Value = a.str("value")
		a.finish(step)
		return act

	case models.KindSelect:
		var act models.Select
		if !a.isMap() {
			a.problem("select needs a mapping with locator and option")
			return act
		}
		act.Locator = a.str("locator")
		act.Option = a.str("option")
		a.finish(step)
		return act

	case models.KindScroll:
		var act models.Scroll
		var shorthand string
		a.scalarOr(step, &shorthand, func() {
			act.Locator = a.str("locator")
			act.To = a.str("to")
			act.Pages = a.integer("pages")
			act.Direction = a.str("direction")
		})
		if shorthand == "top" || shorthand == "bottom" {
			act.To = shorthand
		} else if shorthand != "" {
			act.Locator = shorthand
		}
		return act

	case models.KindEvaluate:
		var act models.Evaluate
		a.scalarOr(step, &act.Script, func() {
			act.Script = a.str("script")
			act.Expect = a.optStr("expect")
		})
		return act

	case models.KindAssert:
		var act models.Assert
		a.scalarOr(step, &act.Locator, func() {
			act.Locator = a.str("locator")
			act.State = models.ElementState(a.str("state"))
			act.Text = a.str("text")
			act.Attribute = a.str("attribute")
			act.Value = a.optStr("value")
			act.URL = a.str("url")
			act.Title = a.str("title")
		})
		return act

	case models.KindScreenshot:
		var act models.Screenshot
		a.scalarOr(step, &act.Path, func() {
			act.Path = a.str("path")
			act.FullPage = a.boolean("full_page")
		})
		return act

	case models.KindDelay:
		var act models.Delay
		var raw string
		a.scalarOr(step, &raw, func() { raw = a.str("duration") })
		if raw != "" {
			act.Duration = a.p.nodeDuration(&yaml.Node{Kind: yaml.ScalarNode, Value: raw, Line: a.node.Line}, a.where)
		}
		return act
	}
	return nil
}
