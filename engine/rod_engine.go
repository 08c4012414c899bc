package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/google/uuid"
	"github.com/use-agent/uicheck/config"
	"github.com/ysmood/gson"
)

// RodEngine drives a Chromium instance over CDP. Every browsing context is
// an incognito browser context holding exactly one page.
// It is safe for concurrent use.
type RodEngine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when attached to a remote browser
	cfg      config.BrowserConfig

	closeOnce sync.Once
	closeErr  error
}

// NewRodEngine launches a browser, or connects to cfg.ControlURL when set.
func NewRodEngine(cfg config.BrowserConfig) (*RodEngine, error) {
	e := &RodEngine{cfg: cfg}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		slog.Info("browser launched", "controlURL", u)
		controlURL = u
		e.launcher = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if e.launcher != nil {
			e.launcher.Kill()
			e.launcher.Cleanup()
		}
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	e.browser = browser
	return e, nil
}

func (e *RodEngine) Name() string { return "rod" }

// NewContext opens an incognito browser context with one page configured for vp.
func (e *RodEngine) NewContext(ctx context.Context, vp Viewport) (Context, error) {
	incognito, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, wrapRodError(fmt.Errorf("create incognito context: %w", err))
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, wrapRodError(fmt.Errorf("create page: %w", err))
	}
	// Detach from the creation deadline; every later call binds its own ctx.
	page = page.Context(context.Background())

	fail := func(err error) (Context, error) {
		_ = page.Close()
		_ = incognito.Close()
		return nil, wrapRodError(err)
	}

	if e.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.DeviceScaleFactor,
		Mobile:            vp.Mobile,
	}); err != nil {
		return fail(fmt.Errorf("set viewport: %w", err))
	}
	if vp.Mobile {
		err := proto.EmulationSetTouchEmulationEnabled{
			Enabled:        true,
			MaxTouchPoints: gson.Int(5),
		}.Call(page)
		if err != nil {
			return fail(fmt.Errorf("enable touch emulation: %w", err))
		}
	}
	if vp.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: vp.UserAgent}); err != nil {
			return fail(fmt.Errorf("set user agent: %w", err))
		}
	}

	return &rodContext{
		id:        uuid.New().String(),
		incognito: incognito,
		page:      page,
		router:    setupHijack(page, e.cfg.BlockedResourceTypes, e.cfg.BlockTrackers),
	}, nil
}

// Close closes the browser. A launched browser is killed and its profile
// directory removed; a remote browser is only disconnected.
func (e *RodEngine) Close() error {
	e.closeOnce.Do(func() {
		if e.launcher == nil {
			return
		}
		slog.Info("engine shutting down: closing browser")
		e.closeErr = e.browser.Close()
		e.launcher.Cleanup()
		slog.Info("engine shutdown complete")
	})
	return e.closeErr
}
