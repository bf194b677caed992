package extractor

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"github.com/use-agent/logosim/engine"
)

// RobotsPolicy answers whether a host's robots.txt allows fetching its
// homepage. Lookups are cached per host for the life of the policy.
type RobotsPolicy struct {
	dl    engine.Downloader
	agent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

// NewRobotsPolicy creates a policy that matches groups for agent.
func NewRobotsPolicy(dl engine.Downloader, agent string) *RobotsPolicy {
	return &RobotsPolicy{dl: dl, agent: agent, hosts: make(map[string]*robotstxt.Group)}
}

// Allowed reports whether path on base's host may be fetched. An
// unreachable robots.txt allows everything.
func (r *RobotsPolicy) Allowed(ctx context.Context, base *url.URL, path string) bool {
	g := r.group(ctx, base)
	if g == nil {
		return true
	}
	return g.Test(path)
}

func (r *RobotsPolicy) group(ctx context.Context, base *url.URL) *robotstxt.Group {
	host := base.Host
	r.mu.Lock()
	g, ok := r.hosts[host]
	r.mu.Unlock()
	if ok {
		return g
	}

	status, body := 200, []byte(nil)
	robotsURL := (&url.URL{Scheme: base.Scheme, Host: host, Path: "/robots.txt"}).String()
	d, err := r.dl.Download(ctx, robotsURL)
	var se *engine.StatusError
	switch {
	case err == nil:
		body = d.Body
	case errors.As(err, &se):
		status = se.StatusCode
	default:
		status = 404
	}

	if data, perr := robotstxt.FromStatusAndBytes(status, body); perr == nil {
		g = data.FindGroup(r.agent)
	}
	r.mu.Lock()
	r.hosts[host] = g
	r.mu.Unlock()
	return g
}
