// Package extractor locates a candidate logo URL for a domain by running
// ordered heuristics over its homepage, then probing well-known paths,
// and finally falling back to the conventional favicon location.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
)

// ErrNotFound is returned by Find when no strategy produced a candidate.
var ErrNotFound = errors.New("extractor: no logo candidate")

// CommonPaths are probed with HEAD, in order, when the page yields nothing.
var CommonPaths = []string{
	"/logo.png", "/logo.svg",
	"/assets/logo.png", "/assets/logo.svg",
	"/images/logo.png", "/img/logo.png",
	"/static/logo.png", "/static/images/logo.png",
	"/wp-content/uploads/logo.png",
}

// Candidate is a discovered logo URL and the strategy that found it.
type Candidate struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
}

// Chain runs the extraction strategies for one domain at a time. It is
// safe for concurrent use.
type Chain struct {
	pages      engine.Engine
	prober     engine.Prober
	strategies []Strategy
	robots     *RobotsPolicy
	pacer      *HostPacer
	timeout    time.Duration
	probe      bool
	baseURL    func(domain string) string
}

// Option customizes a Chain.
type Option func(*Chain)

// WithRobots skips page heuristics and probing for hosts whose
// robots.txt disallows the homepage.
func WithRobots(p *RobotsPolicy) Option { return func(c *Chain) { c.robots = p } }

// WithPacer spaces out requests to the same host.
func WithPacer(p *HostPacer) Option { return func(c *Chain) { c.pacer = p } }

// WithBaseURL changes how a domain maps to its homepage URL.
func WithBaseURL(fn func(domain string) string) Option { return func(c *Chain) { c.baseURL = fn } }

// WithStrategies replaces the page strategies.
func WithStrategies(s ...Strategy) Option { return func(c *Chain) { c.strategies = s } }

// New builds a Chain that reads homepages through pages and probes paths
// through prober. A nil prober disables path probing.
func New(pages engine.Engine, prober engine.Prober, cfg config.ExtractConfig, timeout time.Duration, opts ...Option) *Chain {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	c := &Chain{
		pages:      pages,
		prober:     prober,
		strategies: DefaultStrategies(),
		timeout:    timeout,
		probe:      cfg.ProbeCommonPaths && prober != nil,
		baseURL:    BaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StrategyFallback labels the favicon fallback candidate.
const StrategyFallback = "fallback"

// Extract returns the best logo URL for domain. It never fails: when no
// strategy succeeds, or the chain errors, the favicon fallback is used.
func (c *Chain) Extract(ctx context.Context, domain string) string {
	return c.Resolve(ctx, domain).URL
}

// Resolve is Extract with provenance. The fallback candidate carries
// StrategyFallback.
func (c *Chain) Resolve(ctx context.Context, domain string) Candidate {
	base := c.baseURL(domain)
	cand, err := c.Find(ctx, base)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Debug("logo extraction failed, using fallback", "domain", domain, "error", err)
		}
		return Candidate{URL: Fallback(base), Strategy: StrategyFallback}
	}
	return cand
}

// Find runs the page strategies and path probes against base. It
// returns ErrNotFound when nothing matched.
func (c *Chain) Find(ctx context.Context, base string) (Candidate, error) {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return Candidate{}, fmt.Errorf("extractor: invalid base %q", base)
	}

	if c.robots != nil && !c.robots.Allowed(ctx, baseURL, "/") {
		return Candidate{}, fmt.Errorf("extractor: %s disallowed by robots.txt: %w", baseURL.Host, ErrNotFound)
	}

	if cand, err := c.fromPage(ctx, baseURL); err == nil {
		return cand, nil
	} else if ctx.Err() != nil {
		return Candidate{}, ctx.Err()
	} else if !errors.Is(err, ErrNotFound) {
		slog.Debug("homepage unavailable", "url", base, "error", err)
	}

	if c.probe {
		if u := c.probePaths(ctx, baseURL); u != "" {
			return Candidate{URL: u, Strategy: "common-path"}, nil
		}
	}
	return Candidate{}, ErrNotFound
}

func (c *Chain) fromPage(ctx context.Context, base *url.URL) (Candidate, error) {
	if err := c.wait(ctx, base.Host); err != nil {
		return Candidate{}, err
	}
	res, err := c.pages.Fetch(ctx, &engine.FetchRequest{URL: base.String(), Timeout: c.timeout})
	if err != nil {
		return Candidate{}, err
	}
	if res.StatusCode != 0 && res.StatusCode != 200 {
		return Candidate{}, &engine.StatusError{URL: base.String(), StatusCode: res.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err != nil {
		return Candidate{}, fmt.Errorf("extractor: parse html: %w", err)
	}

	// Relative references resolve against the post-redirect URL.
	pageBase := base
	if res.FinalURL != "" {
		if u, err := url.Parse(res.FinalURL); err == nil {
			pageBase = u
		}
	}
	page := &Page{HTML: res.HTML, Doc: doc, Base: pageBase}

	for _, s := range c.strategies {
		if u := s.Find(page); u != "" {
			return Candidate{URL: u, Strategy: s.Name()}, nil
		}
	}
	return Candidate{}, ErrNotFound
}

func (c *Chain) probePaths(ctx context.Context, base *url.URL) string {
	root := strings.TrimRight(base.String(), "/")
	for _, p := range CommonPaths {
		if err := c.wait(ctx, base.Host); err != nil {
			return ""
		}
		u := root + p
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		status, err := c.prober.Head(pctx, u)
		cancel()
		if err == nil && status == 200 {
			return u
		}
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}

func (c *Chain) wait(ctx context.Context, host string) error {
	if c.pacer == nil {
		return nil
	}
	return c.pacer.Wait(ctx, host)
}
