package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newCounterPool(min, max int) (*AdaptivePool[int], *atomic.Int32) {
	var destroyed atomic.Int32
	var next atomic.Int32
	p := NewAdaptivePool(PoolConfig{MinPages: min, HardMax: max, ScaleInterval: time.Hour},
		func() (int, error) { return int(next.Add(1)), nil },
		func(int) { destroyed.Add(1) })
	return p, &destroyed
}

func TestAdaptivePool_GetPut(t *testing.T) {
	p, _ := newCounterPool(1, 2)
	defer p.Stop()

	a, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a.Value == b.Value {
		t.Error("two concurrent handles share a value")
	}
	if s := p.Stats(); s.Size != 2 || s.Active != 2 {
		t.Errorf("stats = %+v, want size 2 active 2", s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Get on exhausted pool = %v, want deadline exceeded", err)
	}

	p.Put(a, true)
	c, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Value != a.Value {
		t.Errorf("expected the returned handle to be reused")
	}
}

func TestAdaptivePool_RetiresFailingPages(t *testing.T) {
	p, destroyed := newCounterPool(1, 1)
	defer p.Stop()

	var first int
	for i := 0; i < 3; i++ {
		h, err := p.Get(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = h.Value
		}
		p.Put(h, false)
	}

	if destroyed.Load() != 1 {
		t.Errorf("destroyed = %d, want 1", destroyed.Load())
	}
	h, err := p.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Value == first {
		t.Error("retired page was handed out again")
	}
	if p.Stats().Retired != 1 {
		t.Errorf("Retired = %d, want 1", p.Stats().Retired)
	}
}

func TestAdaptivePool_Rescale(t *testing.T) {
	p, _ := newCounterPool(1, 4)
	defer p.Stop()

	h, _ := p.Get(context.Background())
	p.rescale(0) // fully utilized, grows
	if s := p.Stats(); s.Size != 2 {
		t.Errorf("size after grow = %d, want 2", s.Size)
	}
	p.Put(h, true)

	p.rescale(1) // under pressure, shrinks toward MinPages
	if s := p.Stats(); s.Size != 1 {
		t.Errorf("size after shrink = %d, want 1", s.Size)
	}
}
