// Package enginetest provides an in-memory engine.Engine for tests. Pages are
// canned HTML documents; interactivity is declared with data attributes on
// clickable elements:
//
//	data-show="<css>"     un-hide the matching elements
//	data-hide="<css>"     hide the matching elements
//	data-enable="<css>"   remove disabled from the matching elements
//	data-disable="<css>"  disable the matching elements
//	data-delay="200ms"    apply the effects above after a delay
//	data-covered          the element is covered by an overlay
//
// Clicking an <a href> or a submit button of a <form action> navigates.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"github.com/use-agent/uicheck/engine"
	"golang.org/x/net/html"
)

// PNG is the payload returned by Screenshot, prefixed to the page URL.
var PNG = []byte("\x89PNG\r\n\x1a\n")

const blankHTML = `<html><head></head><body></body></html>`

const notFoundHTML = `<html><head><title>404 Not Found</title></head><body><h1>Not Found</h1></body></html>`

// Page is one canned response.
type Page struct {
	Status  int // default 200
	HTML    string
	Latency time.Duration // Goto blocks this long before loading
	Err     error         // Goto fails with Err instead of loading
}

// ScriptFunc implements a script passed to Evaluate.
type ScriptFunc func(c *Context) (string, error)

// Engine is a fake engine.Engine. Unknown URLs load a 404 page.
type Engine struct {
	// OnNewContext, when set, is called with the 1-based attempt number
	// before each context is created; a non-nil error fails the creation.
	// Failed attempts count too.
	OnNewContext func(n int, vp engine.Viewport) error

	mu        sync.Mutex
	pages     map[string]Page
	scripts   map[string]ScriptFunc
	contexts  []*Context
	attempts  int
	active    int
	maxActive int
	closed    bool
}

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{
		pages:   make(map[string]Page),
		scripts: make(map[string]ScriptFunc),
	}
}

// Handle registers p under the absolute url.
func (e *Engine) Handle(url string, p Page) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pages[url] = p
	return e
}

// HandleHTML registers a 200 page.
func (e *Engine) HandleHTML(url, body string) *Engine {
	return e.Handle(url, Page{Status: 200, HTML: body})
}

// Script registers the implementation of an exact script text.
func (e *Engine) Script(script string, fn ScriptFunc) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[script] = fn
	return e
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) NewContext(ctx context.Context, vp engine.Viewport) (engine.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engine.ErrEngineClosed
	}
	e.attempts++
	if e.OnNewContext != nil {
		if err := e.OnNewContext(e.attempts, vp); err != nil {
			return nil, err
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blankHTML))
	if err != nil {
		return nil, err
	}
	c := &Context{id: uuid.New().String(), eng: e, vp: vp, url: "about:blank", doc: doc}
	e.contexts = append(e.contexts, c)
	e.active++
	e.maxActive = max(e.maxActive, e.active)
	return c, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Contexts returns every context created so far, in creation order.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// MaxActive returns the highest number of simultaneously open contexts.
func (e *Engine) MaxActive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxActive
}

func (e *Engine) lookup(rawURL string) Page {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pages[rawURL]
	if !ok {
		return Page{Status: 404, HTML: notFoundHTML}
	}
	if p.Status == 0 {
		p.Status = 200
	}
	return p
}

func (e *Engine) script(s string) (ScriptFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := e.scripts[s]
	return fn, ok
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active--
}

// Context is a fake browsing context holding one parsed document.
type Context struct {
	id  string
	eng *Engine
	vp  engine.Viewport

	mu        sync.Mutex
	url       string
	doc       *goquery.Document
	visited   []string
	evaluated []string
	timers    []*time.Timer
	pending   int
	closed    bool
}

func (c *Context) ID() string { return c.id }

// Viewport returns the viewport the context was created with.
func (c *Context) Viewport() engine.Viewport { return c.vp }

// Visited returns every URL loaded, in order.
func (c *Context) Visited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.visited...)
}

// Evaluated returns every script passed to Evaluate, in order.
func (c *Context) Evaluated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.evaluated...)
}

// IsClosed reports whether Close was called.
func (c *Context) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// HTML renders the current document.
func (c *Context) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, _ := c.doc.Html()
	return h
}

func (c *Context) Goto(ctx context.Context, rawURL string) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	p := c.eng.lookup(rawURL)
	if p.Latency > 0 {
		t := time.NewTimer(p.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if p.Err != nil {
		return 0, p.Err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, engine.ErrContextClosed
	}
	c.stopTimers()
	c.url = rawURL
	c.doc = doc
	c.visited = append(c.visited, rawURL)
	return p.Status, nil
}

// WaitIdle blocks until no delayed effect is pending.
func (c *Context) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		closed, pending := c.closed, c.pending
		c.mu.Unlock()
		if closed {
			return engine.ErrContextClosed
		}
		if pending == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Context) Inspect(_ context.Context, loc engine.Locator) (engine.ElementState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ElementState{}, engine.ErrContextClosed
	}
	sel, err := c.find(loc)
	if err != nil {
		return engine.ElementState{}, err
	}
	return stateOf(sel), nil
}

func (c *Context) Click(ctx context.Context, loc engine.Locator) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return engine.ErrContextClosed
	}
	sel, err := c.actionable(loc)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.applyEffects(sel)
	target := c.navigationTarget(sel)
	c.mu.Unlock()

	if target != "" {
		_, err := c.Goto(ctx, target)
		return err
	}
	return nil
}

func (c *Context) Fill(_ context.Context, loc engine.Locator, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrContextClosed
	}
	sel, err := c.actionable(loc)
	if err != nil {
		return err
	}
	switch goquery.NodeName(sel) {
	case "input":
		sel.SetAttr("value", value)
	case "textarea":
		sel.SetText(value)
	default:
		return fmt.Errorf("element %s is not an input", loc)
	}
	return nil
}

func (c *Context) SelectOption(_ context.Context, loc engine.Locator, option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrContextClosed
	}
	sel, err := c.actionable(loc)
	if err != nil {
		return err
	}
	if goquery.NodeName(sel) != "select" {
		return fmt.Errorf("element %s is not a <select>", loc)
	}
	options := sel.Find("option")
	match := options.FilterFunction(func(_ int, o *goquery.Selection) bool {
		v, ok := o.Attr("value")
		return ok && v == option
	})
	if match.Length() == 0 {
		match = options.FilterFunction(func(_ int, o *goquery.Selection) bool {
			return normalize(o.Text()) == option
		})
	}
	if match.Length() == 0 {
		return fmt.Errorf("no option %q in %s", option, loc)
	}
	options.RemoveAttr("selected")
	match.First().SetAttr("selected", "")
	return nil
}

func (c *Context) ScrollIntoView(_ context.Context, loc engine.Locator) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrContextClosed
	}
	sel, err := c.find(loc)
	if err != nil {
		return err
	}
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", engine.ErrNoElement, loc)
	}
	return nil
}

func (c *Context) Attribute(_ context.Context, loc engine.Locator, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false, engine.ErrContextClosed
	}
	sel, err := c.find(loc)
	if err != nil {
		return "", false, err
	}
	if sel.Length() == 0 {
		return "", false, fmt.Errorf("%w: %s", engine.ErrNoElement, loc)
	}
	v, ok := sel.Attr(name)
	return v, ok, nil
}

// Evaluate runs a registered script. Unregistered scripts return "" unless
// they start with "throw", which fails like a page exception.
func (c *Context) Evaluate(_ context.Context, script string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", engine.ErrContextClosed
	}
	c.evaluated = append(c.evaluated, script)
	c.mu.Unlock()

	if fn, ok := c.eng.script(script); ok {
		return fn(c)
	}
	trimmed := strings.TrimSpace(script)
	switch {
	case strings.HasPrefix(trimmed, "throw"):
		return "", fmt.Errorf("uncaught error: %s", strings.TrimSpace(strings.TrimPrefix(trimmed, "throw")))
	case trimmed == "document.title":
		return c.Title(context.Background())
	case trimmed == "location.href" || trimmed == "window.location.href":
		return c.URL(context.Background())
	}
	return "", nil
}

func (c *Context) URL(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", engine.ErrContextClosed
	}
	return c.url, nil
}

func (c *Context) Title(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", engine.ErrContextClosed
	}
	return normalize(c.doc.Find("title").First().Text()), nil
}

func (c *Context) Screenshot(context.Context, bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, engine.ErrContextClosed
	}
	return append(append([]byte(nil), PNG...), c.url...), nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimers()
	c.mu.Unlock()
	c.eng.release()
	return nil
}

func (c *Context) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrContextClosed
	}
	return nil
}

// find resolves loc against the current document. c.mu must be held.
func (c *Context) find(loc engine.Locator) (*goquery.Selection, error) {
	switch loc.Kind {
	case engine.LocatorCSS:
		m, err := cascadia.Compile(loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", loc.Expr, err)
		}
		return c.doc.FindMatcher(m).First(), nil
	case engine.LocatorText:
		return findText(c.doc, loc.Expr), nil
	default:
		return nil, errors.New("fake engine does not support xpath locators")
	}
}

// actionable resolves loc and requires the element to accept input.
func (c *Context) actionable(loc engine.Locator) (*goquery.Selection, error) {
	sel, err := c.find(loc)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoElement, loc)
	}
	if st := stateOf(sel); !st.Actionable() {
		return nil, fmt.Errorf("element %s is not interactable (%s)", loc, st)
	}
	return sel, nil
}

func (c *Context) applyEffects(sel *goquery.Selection) {
	var delay time.Duration
	if v, ok := sel.Attr("data-delay"); ok {
		delay, _ = time.ParseDuration(v)
	}
	show, _ := sel.Attr("data-show")
	hide, _ := sel.Attr("data-hide")
	enable, _ := sel.Attr("data-enable")
	disable, _ := sel.Attr("data-disable")
	if show == "" && hide == "" && enable == "" && disable == "" {
		return
	}
	apply := func(doc *goquery.Document) {
		if show != "" {
			reveal(doc.Find(show))
		}
		if hide != "" {
			doc.Find(hide).SetAttr("hidden", "")
		}
		if enable != "" {
			doc.Find(enable).RemoveAttr("disabled")
		}
		if disable != "" {
			doc.Find(disable).SetAttr("disabled", "")
		}
	}
	if delay <= 0 {
		apply(c.doc)
		return
	}
	doc := c.doc
	c.pending++
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.timers {
			if x == t {
				c.timers = append(c.timers[:i], c.timers[i+1:]...)
				c.pending--
				break
			}
		}
		if c.closed || c.doc != doc {
			return
		}
		apply(doc)
	})
	c.timers = append(c.timers, t)
}

// stopTimers cancels pending effects. c.mu must be held.
func (c *Context) stopTimers() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.pending = 0
}

// navigationTarget returns the absolute URL a click on sel loads, if any.
func (c *Context) navigationTarget(sel *goquery.Selection) string {
	var ref string
	switch {
	case goquery.NodeName(sel) == "a":
		ref, _ = sel.Attr("href")
	case isSubmit(sel):
		ref, _ = sel.Closest("form").Attr("action")
	}
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	base, err := url.Parse(c.url)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func isSubmit(sel *goquery.Selection) bool {
	switch goquery.NodeName(sel) {
	case "button":
		t, ok := sel.Attr("type")
		return !ok || t == "submit"
	case "input":
		t, _ := sel.Attr("type")
		return t == "submit"
	}
	return false
}

func reveal(sel *goquery.Selection) {
	sel.RemoveAttr("hidden")
	sel.Each(func(_ int, s *goquery.Selection) {
		if style, ok := s.Attr("style"); ok && hiddenByStyle(style) {
			s.RemoveAttr("style")
		}
	})
}

// findText returns the first innermost element whose text contains text.
func findText(doc *goquery.Document, text string) *goquery.Selection {
	contains := func(_ int, s *goquery.Selection) bool {
		return strings.Contains(normalize(s.Text()), text)
	}
	var found *html.Node
	doc.Find("body *:not(script):not(style)").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if !contains(i, s) || s.Children().FilterFunction(contains).Length() > 0 {
			return true
		}
		found = s.Nodes[0]
		return false
	})
	if found == nil {
		return doc.FindNodes()
	}
	return doc.FindNodes(found)
}

// stateOf computes the ElementState of the first node of sel.
func stateOf(sel *goquery.Selection) engine.ElementState {
	if sel.Length() == 0 {
		return engine.ElementState{}
	}
	n := sel.Nodes[0]
	st := engine.ElementState{
		Attached: true,
		Visible:  true,
		Enabled:  true,
		Text:     normalize(sel.Text()),
		Value:    valueOf(sel),
	}
	_, st.Covered = sel.Attr("data-covered")
	if t, _ := sel.Attr("type"); n.Data == "input" && t == "hidden" {
		st.Visible = false
	}
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if p.Data == "head" {
			st.Visible = false
		}
		if hasAttr(p, "hidden") {
			st.Visible = false
		}
		if style, ok := attr(p, "style"); ok && hiddenByStyle(style) {
			st.Visible = false
		}
		if hasAttr(p, "disabled") && (p == n || p.Data == "fieldset") {
			st.Enabled = false
		}
	}
	return st
}

func valueOf(sel *goquery.Selection) string {
	switch goquery.NodeName(sel) {
	case "input":
		v, _ := sel.Attr("value")
		return v
	case "textarea":
		return sel.Text()
	case "select":
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if v, ok := opt.Attr("value"); ok {
			return v
		}
		return normalize(opt.Text())
	}
	return ""
}

func hiddenByStyle(style string) bool {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attr(n, name)
	return ok
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
