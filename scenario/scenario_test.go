package scenario

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/uicheck/models"
)

func TestLoadContactSuite(t *testing.T) {
	suite, err := Load(filepath.Join("testdata", "contact.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s := suite.Settings
	if s.BaseURL != "http://localhost:3000" || s.Mode != models.ModeParallel || s.Parallelism != 2 {
		t.Errorf("settings = %+v", s)
	}
	if s.Timeout != 2*time.Minute || s.StepTimeout != 20*time.Second || s.ArtifactDir != "verification" {
		t.Errorf("settings durations/dir = %+v", s)
	}

	if len(suite.Scenarios) != 2 {
		t.Fatalf("got %d scenarios, want 2", len(suite.Scenarios))
	}
	contact := suite.Scenarios[0]
	if contact.Viewport.Width != 1280 || contact.Viewport.Height != 1000 {
		t.Errorf("viewport = %+v", contact.Viewport)
	}
	if len(contact.Steps) != 8 {
		t.Fatalf("contact-form has %d steps, want 8", len(contact.Steps))
	}

	if nav, ok := contact.Steps[0].Action.(models.Navigate); !ok || nav.URL != "/contact" {
		t.Errorf("step 1 = %#v", contact.Steps[0].Action)
	}
	if wf, ok := contact.Steps[1].Action.(models.WaitFor); !ok || wf.Locator != "form" || wf.TargetState() != models.StateVisible {
		t.Errorf("step 2 = %#v", contact.Steps[1].Action)
	}
	if sel, ok := contact.Steps[4].Action.(models.Select); !ok || sel.Option != "touring" {
		t.Errorf("step 5 = %#v", contact.Steps[4].Action)
	}
	wait := contact.Steps[6]
	if wait.Timeout != 5*time.Second {
		t.Errorf("step 7 timeout = %s, want 5s lifted from the argument mapping", wait.Timeout)
	}
	shot := contact.Steps[7]
	if !shot.Soft || shot.Critical() {
		t.Error("screenshot step should be soft")
	}
	if a, ok := shot.Action.(models.Screenshot); !ok || a.Path != "contact_page.png" || !a.FullPage {
		t.Errorf("step 8 = %#v", shot.Action)
	}

	mobile := suite.Scenarios[1]
	if !mobile.Viewport.Mobile {
		t.Error("mobile viewport not decoded")
	}
	if mobile.Steps[1].Name != "open menu" {
		t.Errorf("step name = %q", mobile.Steps[1].Name)
	}
	if a, ok := mobile.Steps[2].Action.(models.Assert); !ok || a.Attribute != "href" || a.Value == nil || *a.Value != "/plans" {
		t.Errorf("assert = %#v", mobile.Steps[2].Action)
	}
	if a, ok := mobile.Steps[3].Action.(models.Scroll); !ok || a.To != "bottom" {
		t.Errorf("scroll = %#v", mobile.Steps[3].Action)
	}
	if a, ok := mobile.Steps[4].Action.(models.Delay); !ok || a.Duration != 500*time.Millisecond {
		t.Errorf("delay = %#v", mobile.Steps[4].Action)
	}
	if a, ok := mobile.Steps[5].Action.(models.Evaluate); !ok || a.Expect == nil || *a.Expect != "Home" {
		t.Errorf("evaluate = %#v", mobile.Steps[5].Action)
	}
	if _, ok := mobile.Steps[6].Action.(models.WaitIdle); !ok {
		t.Errorf("wait_idle = %#v", mobile.Steps[6].Action)
	}

	suite.Settings = suite.Settings.WithDefaults()
	if err := Validate(suite); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseStructuralProblems(t *testing.T) {
	src := `
scenarios:
  - name: broken
    steps:
      - click: "#a"
        fill: {locator: "#b", value: x}
      - hover: "#c"
      - soft: true
      - fill: "#d"
      - click: {locator: "#e", force: true}
      - delay: soon
`
	_, err := Parse([]byte(src), "inline")
	var ce *models.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Parse error = %v, want ConfigError", err)
	}
	want := []string{
		`multiple actions "click" and "fill"`,
		`unknown key "hover"`,
		"no action",
		"fill needs a mapping",
		`unknown argument "force"`,
		`invalid duration "soon"`,
	}
	all := strings.Join(ce.Problems, "\n")
	for _, w := range want {
		if !strings.Contains(all, w) {
			t.Errorf("missing problem %q in:\n%s", w, all)
		}
	}
	if !strings.Contains(all, "line ") {
		t.Errorf("problems should carry line numbers:\n%s", all)
	}
}

func TestParseRejectsUnknownTopLevelKeys(t *testing.T) {
	_, err := Parse([]byte("scenario: []\n"), "inline")
	if !models.IsConfigError(err) {
		t.Fatalf("Parse = %v, want ConfigError", err)
	}
	_, err = Parse(nil, "empty")
	if !models.IsConfigError(err) {
		t.Fatalf("Parse(empty) = %v, want ConfigError", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	suite := models.Suite{
		Settings: models.Settings{Mode: "fast", Parallelism: -1, StepTimeout: time.Second},
		Scenarios: []models.Scenario{
			{
				Name:     "home",
				Viewport: models.DefaultViewport,
				Steps: []models.Step{
					{Action: models.Navigate{URL: "/relative"}},
					{Action: models.Click{Locator: "div[["}},
					{Action: models.WaitFor{Locator: "text=", State: "gone"}},
					{Action: models.Screenshot{Path: "../escape.png"}},
					{Action: models.Screenshot{Path: "a.png"}},
					{Action: models.Screenshot{Path: "./a.png"}},
					{Action: models.Assert{Text: "hi"}},
					{Action: models.Delay{}},
				},
			},
			{Name: "home", Viewport: models.Viewport{Width: 0, Height: 10}},
		},
	}
	err := Validate(suite)
	var ce *models.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("Validate = %v, want ConfigError", err)
	}
	want := []string{
		`invalid mode "fast"`,
		"parallelism must be >= 1",
		`relative url "/relative" needs settings.base_url`,
		`invalid css selector "div[["`,
		"empty text locator",
		`invalid state "gone"`,
		"must stay inside the artifact directory",
		`already used by scenario "home" step 5`,
		"element assertions need a locator",
		"delay needs a positive duration",
		`scenario "home": duplicate name`,
		"viewport 0x10 must be positive",
		"no steps",
	}
	all := strings.Join(ce.Problems, "\n")
	for _, w := range want {
		if !strings.Contains(all, w) {
			t.Errorf("missing problem %q in:\n%s", w, all)
		}
	}
}

func TestValidateDuplicateNamesOnly(t *testing.T) {
	step := models.Step{Action: models.Navigate{URL: "https://example.test/"}}
	suite := models.Suite{
		Settings: models.Settings{}.WithDefaults(),
		Scenarios: []models.Scenario{
			{Name: "a", Viewport: models.DefaultViewport, Steps: []models.Step{step}},
			{Name: "a", Viewport: models.DefaultViewport, Steps: []models.Step{step}},
		},
	}
	err := Validate(suite)
	var ce *models.ConfigError
	if !errors.As(err, &ce) || len(ce.Problems) != 1 {
		t.Fatalf("Validate = %v, want exactly the duplicate-name problem", err)
	}
}

func TestValidateScreenshotPathsAcrossScenarios(t *testing.T) {
	shot := func(path string) []models.Step {
		return []models.Step{
			{Action: models.Navigate{URL: "https://example.test/"}},
			{Action: models.Screenshot{Path: path}},
		}
	}
	suite := models.Suite{
		Settings: models.Settings{Mode: models.ModeParallel}.WithDefaults(),
		Scenarios: []models.Scenario{
			{Name: "desktop", Viewport: models.DefaultViewport, Steps: shot("home.png")},
			{Name: "mobile", Viewport: models.DefaultViewport, Steps: shot("./home.png")},
			{Name: "tablet", Viewport: models.DefaultViewport, Steps: shot("tablet.png")},
		},
	}
	err := Validate(suite)
	var ce *models.ConfigError
	if !errors.As(err, &ce) || len(ce.Problems) != 1 {
		t.Fatalf("Validate = %v, want one duplicate screenshot problem", err)
	}
	if want := `scenario "mobile" step 2: screenshot path "./home.png" already used by scenario "desktop" step 2`; ce.Problems[0] != want {
		t.Errorf("problem = %q, want %q", ce.Problems[0], want)
	}
}
