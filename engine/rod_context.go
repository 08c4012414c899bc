package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodContext is one incognito browser context with a single page.
type rodContext struct {
	id        string
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	closed    atomic.Bool
}

// inspectJS resolves a locator and describes the first match. The locator is
// passed as (kind, expr); text locators arrive already translated to XPath.
const inspectJS = `(kind, expr) => {
	let el = null;
	if (kind === 'css') {
		el = document.querySelector(expr);
	} else {
		el = document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	}
	if (!el || !el.isConnected) return { attached: false };
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	const visible = rect.width > 0 && rect.height > 0 &&
		style.visibility !== 'hidden' && style.display !== 'none';
	const enabled = !el.disabled && !el.closest('fieldset[disabled]') &&
		el.getAttribute('aria-disabled') !== 'true';
	let covered = false;
	if (visible) {
		const x = rect.left + rect.width / 2, y = rect.top + rect.height / 2;
		if (x >= 0 && y >= 0 && x < window.innerWidth && y < window.innerHeight) {
			const hit = document.elementFromPoint(x, y);
			covered = hit !== null && hit !== el && !el.contains(hit) && !hit.contains(el);
		}
	}
	return {
		attached: true,
		visible: visible,
		enabled: enabled,
		covered: covered,
		text: (el.innerText || el.textContent || '').trim(),
		value: 'value' in el && el.value != null ? String(el.value) : '',
	};
}`

const readyJS = `() => document.readyState !== 'loading'`

const statusJS = `() => {
	try {
		const entries = performance.getEntriesByType("navigation");
		if (entries.length > 0) return entries[0].responseStatus || 0;
	} catch(e) {}
	return 0;
}`

func (c *rodContext) ID() string { return c.id }

func (c *rodContext) bind(ctx context.Context) (*rod.Page, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	return c.page.Context(ctx), nil
}

func (c *rodContext) Goto(ctx context.Context, url string) (int, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return 0, err
	}
	if err := p.Navigate(url); err != nil {
		return 0, wrapRodError(err)
	}
	if err := p.Wait(rod.Eval(readyJS)); err != nil {
		return 0, wrapRodError(fmt.Errorf("wait for document: %w", err))
	}

	status := 0
	if res, err := p.Eval(statusJS); err == nil {
		status = res.Value.Int()
	}
	return status, nil
}

func (c *rodContext) WaitIdle(ctx context.Context) error {
	p, err := c.bind(ctx)
	if err != nil {
		return err
	}
	// WaitRequestIdle relies on the Fetch domain, which the hijack router
	// already owns.
	if c.router == nil {
		wait := p.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
		wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return wrapRodError(p.WaitDOMStable(300*time.Millisecond, 0.1))
}

func (c *rodContext) Inspect(ctx context.Context, loc Locator) (ElementState, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return ElementState{}, err
	}
	kind, expr := "css", loc.Expr
	if loc.Kind != LocatorCSS {
		kind, expr = "xpath", loc.XPath()
	}
	res, err := p.Eval(inspectJS, kind, expr)
	if err != nil {
		return ElementState{}, wrapRodError(err)
	}
	v := res.Value
	return ElementState{
		Attached: v.Get("attached").Bool(),
		Visible:  v.Get("visible").Bool(),
		Enabled:  v.Get("enabled").Bool(),
		Covered:  v.Get("covered").Bool(),
		Text:     v.Get("text").Str(),
		Value:    v.Get("value").Str(),
	}, nil
}

// element returns the first match of loc, or ErrNoElement.
func (c *rodContext) element(ctx context.Context, loc Locator) (*rod.Element, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return nil, err
	}
	var els rod.Elements
	if loc.Kind == LocatorCSS {
		els, err = p.Elements(loc.Expr)
	} else {
		els, err = p.ElementsX(loc.XPath())
	}
	if err != nil {
		return nil, wrapRodError(err)
	}
	if els.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, loc)
	}
	return els.First(), nil
}

func (c *rodContext) Click(ctx context.Context, loc Locator) error {
	el, err := c.element(ctx, loc)
	if err != nil {
		return err
	}
	return wrapRodError(el.Click(proto.InputMouseButtonLeft, 1))
}

func (c *rodContext) Fill(ctx context.Context, loc Locator, value string) error {
	el, err := c.element(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return wrapRodError(err)
	}
	if value == "" {
		return wrapRodError(c.page.Context(ctx).Keyboard.Type(input.Backspace))
	}
	return wrapRodError(el.Input(value))
}

// SelectOption picks the option whose value equals option, falling back to
// the option whose visible text matches.
func (c *rodContext) SelectOption(ctx context.Context, loc Locator, option string) error {
	el, err := c.element(ctx, loc)
	if err != nil {
		return err
	}
	byValue := fmt.Sprintf(`option[value=%q]`, option)
	err = el.Select([]string{byValue}, true, rod.SelectorTypeCSSSector)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrContextClosed) {
		return wrapRodError(err)
	}
	return wrapRodError(el.Select([]string{option}, true, rod.SelectorTypeText))
}

func (c *rodContext) ScrollIntoView(ctx context.Context, loc Locator) error {
	el, err := c.element(ctx, loc)
	if err != nil {
		return err
	}
	return wrapRodError(el.ScrollIntoView())
}

func (c *rodContext) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	el, err := c.element(ctx, loc)
	if err != nil {
		return "", false, err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", false, wrapRodError(err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (c *rodContext) Evaluate(ctx context.Context, script string) (string, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return "", err
	}
	res, err := p.Evaluate(rod.Eval(script).ByPromise())
	if err != nil {
		return "", wrapRodError(err)
	}
	if res.Type == proto.RuntimeRemoteObjectTypeUndefined {
		return "", nil
	}
	if res.Type == proto.RuntimeRemoteObjectTypeString {
		return res.Value.Str(), nil
	}
	return res.Value.JSON("", ""), nil
}

func (c *rodContext) URL(ctx context.Context) (string, error) {
	info, err := c.info(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (c *rodContext) Title(ctx context.Context) (string, error) {
	info, err := c.info(ctx)
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (c *rodContext) info(ctx context.Context) (*proto.TargetTargetInfo, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return nil, err
	}
	info, err := p.Info()
	if err != nil {
		return nil, wrapRodError(err)
	}
	return info, nil
}

func (c *rodContext) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p, err := c.bind(ctx)
	if err != nil {
		return nil, err
	}
	data, err := p.Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, wrapRodError(err)
	}
	return data, nil
}

// Close disposes the incognito browser context. It is idempotent.
func (c *rodContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.router != nil {
		_ = c.router.Stop()
	}
	_ = c.page.Close()
	return c.incognito.Close()
}

// wrapRodError maps CDP errors reporting a vanished target to ErrContextClosed.
func wrapRodError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, s := range []string{"Target closed", "No target with given id", "Session with given id not found", "websocket: close"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", ErrContextClosed, err)
		}
	}
	return err
}
