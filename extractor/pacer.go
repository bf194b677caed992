package extractor

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostPacer spaces out requests to the same host.
type HostPacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
}

// NewHostPacer allows rps requests per second per host, burst 1.
func NewHostPacer(rps float64) *HostPacer {
	return &HostPacer{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(rps)}
}

// Wait blocks until a request to host may proceed or ctx is done.
func (p *HostPacer) Wait(ctx context.Context, host string) error {
	p.mu.Lock()
	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(p.rps, 1)
		p.limiters[host] = l
	}
	p.mu.Unlock()
	return l.Wait(ctx)
}
