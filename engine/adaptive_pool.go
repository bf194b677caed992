package engine

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Retirement thresholds for pooled pages.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// PageHandle wraps a pooled value with health tracking. Success lowers
// the error score by 0.5 (floored at 0), failure raises it by 1.
type PageHandle[T any] struct {
	Value T

	id       int64
	errScore float64
	useCount int
	created  time.Time
	mu       sync.Mutex
}

func (h *PageHandle[T]) record(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	if success {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore++
	}
}

// shouldRetire reports whether the handle is too erroneous, too used or too old.
func (h *PageHandle[T]) shouldRetire(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= retireErrScore || h.useCount >= retireUses || now.Sub(h.created) >= retireAge
}

// PoolConfig holds configuration for the adaptive pool.
type PoolConfig struct {
	MinPages      int
	HardMax       int
	MemThreshold  float64 // fraction of the Go heap in use
	ScaleStep     float64 // fraction of the pool to grow or shrink
	ScaleInterval time.Duration
}

// PoolStats is a point-in-time view of an AdaptivePool.
type PoolStats struct {
	Size    int `json:"size"`
	Active  int `json:"active"`
	Retired int `json:"retired"`
}

// AdaptivePool hands out reusable values (browser tabs) and resizes
// itself between MinPages and HardMax based on heap pressure and
// utilization.
type AdaptivePool[T any] struct {
	cfg     PoolConfig
	create  func() (T, error)
	destroy func(T)

	idle    chan *PageHandle[T]
	mu      sync.Mutex
	all     map[int64]*PageHandle[T]
	nextID  atomic.Int64
	active  atomic.Int32
	retired atomic.Int64

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewAdaptivePool creates a pool, pre-creates MinPages values and starts
// the scaling loop.
func NewAdaptivePool[T any](cfg PoolConfig, create func() (T, error), destroy func(T)) *AdaptivePool[T] {
	if cfg.MinPages < 1 {
		cfg.MinPages = 1
	}
	if cfg.HardMax < cfg.MinPages {
		cfg.HardMax = cfg.MinPages
	}
	if cfg.MemThreshold <= 0 {
		cfg.MemThreshold = 0.9
	}
	if cfg.ScaleStep <= 0 {
		cfg.ScaleStep = 0.05
	}
	if cfg.ScaleInterval <= 0 {
		cfg.ScaleInterval = 10 * time.Second
	}

	ap := &AdaptivePool[T]{
		cfg:     cfg,
		create:  create,
		destroy: destroy,
		idle:    make(chan *PageHandle[T], cfg.HardMax),
		all:     make(map[int64]*PageHandle[T]),
		stopped: make(chan struct{}),
	}

	for i := 0; i < cfg.MinPages; i++ {
		ap.mu.Lock()
		h, err := ap.createLocked()
		ap.mu.Unlock()
		if err != nil {
			slog.Warn("adaptive_pool: failed to pre-create page", "error", err)
			continue
		}
		ap.idle <- h
	}

	go ap.scalingLoop()
	return ap
}

// Get acquires a handle. It reuses an idle one, creates one while under
// HardMax, or waits until a handle is returned or ctx is done.
func (ap *AdaptivePool[T]) Get(ctx context.Context) (*PageHandle[T], error) {
	select {
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	default:
	}

	ap.mu.Lock()
	if len(ap.all) < ap.cfg.HardMax {
		h, err := ap.createLocked()
		ap.mu.Unlock()
		if err == nil {
			ap.active.Add(1)
			return h, nil
		}
		slog.Debug("adaptive_pool: create failed, waiting for idle page", "error", err)
	} else {
		ap.mu.Unlock()
	}

	select {
	case h := <-ap.idle:
		ap.active.Add(1)
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a handle, scoring the use. Unhealthy handles are destroyed
// and replaced when the pool would drop below MinPages.
func (ap *AdaptivePool[T]) Put(h *PageHandle[T], success bool) {
	ap.active.Add(-1)
	h.record(success)

	if !h.shouldRetire(time.Now()) {
		ap.idle <- h
		return
	}

	slog.Debug("adaptive_pool: retiring page", "id", h.id)
	ap.remove(h)

	ap.mu.Lock()
	defer ap.mu.Unlock()
	if len(ap.all) < ap.cfg.MinPages {
		if fresh, err := ap.createLocked(); err == nil {
			ap.idle <- fresh
		}
	}
}

// Stats returns the current pool counters.
func (ap *AdaptivePool[T]) Stats() PoolStats {
	ap.mu.Lock()
	size := len(ap.all)
	ap.mu.Unlock()
	return PoolStats{
		Size:    size,
		Active:  int(ap.active.Load()),
		Retired: int(ap.retired.Load()),
	}
}

// Stop ends the scaling loop and destroys every live value.
func (ap *AdaptivePool[T]) Stop() {
	ap.stopOnce.Do(func() {
		close(ap.stopped)
		ap.mu.Lock()
		defer ap.mu.Unlock()
		for id, h := range ap.all {
			ap.destroy(h.Value)
			delete(ap.all, id)
		}
	})
}

// createLocked creates a handle. Caller must hold ap.mu.
func (ap *AdaptivePool[T]) createLocked() (*PageHandle[T], error) {
	v, err := ap.create()
	if err != nil {
		return nil, err
	}
	h := &PageHandle[T]{Value: v, id: ap.nextID.Add(1), created: time.Now()}
	ap.all[h.id] = h
	return h, nil
}

func (ap *AdaptivePool[T]) remove(h *PageHandle[T]) {
	ap.mu.Lock()
	_, live := ap.all[h.id]
	delete(ap.all, h.id)
	ap.mu.Unlock()
	if live {
		ap.retired.Add(1)
		ap.destroy(h.Value)
	}
}

func (ap *AdaptivePool[T]) scalingLoop() {
	ticker := time.NewTicker(ap.cfg.ScaleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ap.stopped:
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			var pressure float64
			if m.HeapSys > 0 {
				pressure = float64(m.HeapInuse) / float64(m.HeapSys)
			}
			ap.rescale(pressure)
		}
	}
}

// rescale shrinks idle handles under memory pressure, or grows the pool
// when more than 80% of it is checked out.
func (ap *AdaptivePool[T]) rescale(pressure float64) {
	ap.mu.Lock()
	size := len(ap.all)
	ap.mu.Unlock()
	if size == 0 {
		return
	}
	step := int(math.Ceil(float64(size) * ap.cfg.ScaleStep))
	utilization := float64(ap.active.Load()) / float64(size)

	switch {
	case pressure > ap.cfg.MemThreshold:
		for i := 0; i < step; i++ {
			ap.mu.Lock()
			atMin := len(ap.all) <= ap.cfg.MinPages
			ap.mu.Unlock()
			if atMin {
				return
			}
			select {
			case h := <-ap.idle:
				ap.remove(h)
			default:
				return
			}
		}
	case utilization > 0.8:
		for i := 0; i < step; i++ {
			ap.mu.Lock()
			if len(ap.all) >= ap.cfg.HardMax {
				ap.mu.Unlock()
				return
			}
			h, err := ap.createLocked()
			ap.mu.Unlock()
			if err != nil {
				slog.Warn("adaptive_pool: failed to grow", "error", err)
				return
			}
			ap.idle <- h
		}
	}
}
