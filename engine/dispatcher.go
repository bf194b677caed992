package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Dispatcher races page engines with staged escalation: the lightest
// engine starts at once and heavier ones join after their delay if no
// earlier engine has won. It implements Engine itself.
type Dispatcher struct {
	engines []Engine
	delays  []time.Duration
	memory  *DomainMemory
}

// NewDispatcher creates a Dispatcher. engines[i] starts delays[i] after
// the race begins; missing delays default to zero.
func NewDispatcher(engines []Engine, delays []time.Duration, memory *DomainMemory) *Dispatcher {
	d := make([]time.Duration, len(engines))
	copy(d, delays)
	return &Dispatcher{engines: engines, delays: d, memory: memory}
}

func (d *Dispatcher) Name() string { return "auto" }

// Fetch returns the first successful engine result. A remembered engine
// for the host is tried alone first. If every engine fails the errors
// are joined.
func (d *Dispatcher) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	host := hostOf(req.URL)

	if name := d.memory.Get(host); name != "" {
		if eng := d.byName(name); eng != nil {
			res, err := eng.Fetch(ctx, req)
			if err == nil {
				return res, nil
			}
			slog.Debug("remembered engine failed, racing", "host", host, "engine", name, "error", err)
			d.memory.Forget(host)
		}
	}
	return d.race(ctx, req, host)
}

func (d *Dispatcher) byName(name string) Engine {
	for _, e := range d.engines {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

type raceResult struct {
	result *FetchResult
	err    error
}

func (d *Dispatcher) race(ctx context.Context, req *FetchRequest, host string) (*FetchResult, error) {
	if len(d.engines) == 0 {
		return nil, fmt.Errorf("dispatcher: no engines configured")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(d.engines))
	for i, eng := range d.engines {
		go func(e Engine, delay time.Duration) {
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-raceCtx.Done():
					results <- raceResult{err: raceCtx.Err()}
					return
				case <-t.C:
				}
			}
			res, err := e.Fetch(raceCtx, req)
			if err != nil {
				err = fmt.Errorf("%s: %w", e.Name(), err)
			}
			results <- raceResult{result: res, err: err}
		}(eng, d.delays[i])
	}

	var errs []error
	for range d.engines {
		rr := <-results
		if rr.err != nil {
			errs = append(errs, rr.err)
			continue
		}
		cancel()
		slog.Debug("engine won race", "engine", rr.result.EngineName, "url", req.URL)
		d.memory.Set(host, rr.result.EngineName)
		return rr.result, nil
	}
	return nil, fmt.Errorf("dispatcher: all engines failed for %s: %w", req.URL, errors.Join(errs...))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
