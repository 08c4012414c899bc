package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContextClosed is returned by every Context operation after Close,
	// and when the underlying target disappeared (tab crash, disconnect).
	ErrContextClosed = errors.New("browsing context closed")

	// ErrEngineClosed is returned by NewContext after the engine shut down.
	ErrEngineClosed = errors.New("engine closed")

	// ErrNoElement is returned by element operations when the locator
	// matches nothing.
	ErrNoElement = errors.New("no element matches locator")
)

// Engine is the browser-engine collaborator. One instance lives for a whole run.
type Engine interface {
	// Name returns the engine identifier (e.g. "rod", "fake").
	Name() string

	// NewContext creates an isolated browsing context (own cookies, storage
	// and viewport).
	NewContext(ctx context.Context, vp Viewport) (Context, error)

	// Close shuts the engine down.
	Close() error
}

// Viewport is the emulated device of a context.
type Viewport struct {
	Width             int
	Height            int
	Mobile            bool
	DeviceScaleFactor float64
	UserAgent         string
}

// Context is one isolated browsing session with a single page.
// Every blocking call honours ctx.
type Context interface {
	ID() string

	// Goto loads url, waits until the document is interactive (not
	// necessarily idle) and returns the HTTP status of the main document
	// (0 when the engine cannot tell).
	Goto(ctx context.Context, url string) (int, error)

	// WaitIdle blocks until the page settled.
	WaitIdle(ctx context.Context) error

	// Inspect reports the current state of the first element matching loc.
	// A missing element is not an error: Attached is false.
	Inspect(ctx context.Context, loc Locator) (ElementState, error)

	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	SelectOption(ctx context.Context, loc Locator, option string) error
	ScrollIntoView(ctx context.Context, loc Locator) error

	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)

	// Evaluate runs script in the page and returns its result as a string
	// (strings verbatim, other values JSON encoded, undefined as "").
	Evaluate(ctx context.Context, script string) (string, error)

	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// Screenshot captures the viewport, or the whole page when fullPage.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	Close() error
}

// ElementState is a snapshot of one element.
type ElementState struct {
	Attached bool   `json:"attached"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	Covered  bool   `json:"covered"`
	Text     string `json:"text,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Actionable reports whether the element can receive input.
func (s ElementState) Actionable() bool {
	return s.Attached && s.Visible && s.Enabled && !s.Covered
}

// String renders the state for diagnostics, e.g. "attached,visible,disabled".
func (s ElementState) String() string {
	if !s.Attached {
		return "detached"
	}
	parts := []string{"attached"}
	if s.Visible {
		parts = append(parts, "visible")
	} else {
		parts = append(parts, "hidden")
	}
	if !s.Enabled {
		parts = append(parts, "disabled")
	}
	if s.Covered {
		parts = append(parts, "covered")
	}
	return strings.Join(parts, ",")
}

// LocatorKind selects how a locator expression is resolved.
type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorText  LocatorKind = "text"
	LocatorXPath LocatorKind = "xpath"
)

// Locator addresses elements on a page.
type Locator struct {
	Kind LocatorKind
	Expr string
}

// ParseLocator parses "text=...", "xpath=..." or a plain CSS selector.
// A "css=" prefix is accepted too.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, errors.New("empty locator")
	}
	for _, kind := range []LocatorKind{LocatorText, LocatorXPath, LocatorCSS} {
		prefix := string(kind) + "="
		if strings.HasPrefix(s, prefix) {
			expr := strings.TrimSpace(strings.TrimPrefix(s, prefix))
			if expr == "" {
				return Locator{}, fmt.Errorf("empty %s locator", kind)
			}
			return Locator{Kind: kind, Expr: unquote(expr)}, nil
		}
	}
	return Locator{Kind: LocatorCSS, Expr: s}, nil
}

// MustLocator is ParseLocator for literals known to be valid.
func MustLocator(s string) Locator {
	loc, err := ParseLocator(s)
	if err != nil {
		panic(err)
	}
	return loc
}

func (l Locator) String() string {
	if l.Kind == LocatorCSS {
		return l.Expr
	}
	return string(l.Kind) + "=" + l.Expr
}

// XPath returns an XPath expression equivalent to a text or xpath locator.
// Text locators match the innermost elements whose text contains Expr.
func (l Locator) XPath() string {
	if l.Kind == LocatorXPath {
		return l.Expr
	}
	lit := xpathLiteral(l.Expr)
	return fmt.Sprintf(`//*[contains(normalize-space(.), %s) and not(.//*[contains(normalize-space(.), %s)])]`, lit, lit)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
