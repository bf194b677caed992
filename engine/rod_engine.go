package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// RodOptions configures the headless browser engine.
type RodOptions struct {
	Headless     bool
	NoSandbox    bool
	BrowserBin   string
	MinPages     int
	MaxPages     int
	MemThreshold float64
	ScaleStep    float64
	Timeout      time.Duration
}

// RodEngine renders homepages in headless Chromium for sites that only
// expose their logo markup after JavaScript runs. Tabs come from an
// AdaptivePool.
type RodEngine struct {
	browser *rod.Browser
	pool    *AdaptivePool[*rod.Page]
	timeout time.Duration
}

// blockedTypes are never needed to read logo markup.
var blockedTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeImage:      {},
	proto.NetworkResourceTypeStylesheet: {},
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeMedia:      {},
}

// NewRodEngine launches a browser and its tab pool.
func NewRodEngine(opts RodOptions) (*RodEngine, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("rod: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("rod: connect: %w", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	pool := NewAdaptivePool(PoolConfig{
		MinPages:     opts.MinPages,
		HardMax:      opts.MaxPages,
		MemThreshold: opts.MemThreshold,
		ScaleStep:    opts.ScaleStep,
	}, func() (*rod.Page, error) {
		return browser.Page(proto.TargetCreateTarget{})
	}, func(p *rod.Page) {
		_ = p.Close()
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RodEngine{browser: browser, pool: pool, timeout: timeout}, nil
}

func (e *RodEngine) Name() string { return "rod" }

// Stats exposes the tab pool counters.
func (e *RodEngine) Stats() PoolStats { return e.pool.Stats() }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (res *FetchResult, err error) {
	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := e.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("rod: acquire tab: %w", err)
	}
	page := h.Value
	defer func() {
		// Uses the original page so cleanup works after ctx expires.
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Debug("rod: reset tab failed", "error", navErr)
		}
		e.pool.Put(h, err == nil)
	}()

	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Debug("rod: stealth injection failed", "error", evalErr)
		}
	}
	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(hj *rod.Hijack) {
		if _, ok := blockedTypes[hj.Request.Type()]; ok {
			hj.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		hj.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	defer func() { _ = router.Stop() }()

	p := page.Context(ctx)
	if err = p.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("rod: navigate: %w", err)
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("rod: DOM did not settle", "url", req.URL, "error", stableErr)
	}

	htmlStr, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("rod: read html: %w", err)
	}

	finalURL := evalString(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}
	return &FetchResult{
		HTML:       htmlStr,
		Title:      evalString(p, `() => document.title`),
		StatusCode: 200,
		FinalURL:   finalURL,
		EngineName: e.Name(),
	}, nil
}

// Close drains the tab pool and kills the browser process.
func (e *RodEngine) Close() {
	e.pool.Stop()
	if err := e.browser.Close(); err != nil {
		slog.Warn("rod: close browser", "error", err)
	}
}

func evalString(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain map to proto.NetworkHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
