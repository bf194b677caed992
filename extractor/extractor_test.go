package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
)

func newSite(t *testing.T, homepage string, files ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var heads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" || homepage == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(homepage))
	})
	for _, f := range files {
		mux.HandleFunc(f, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				heads.Add(1)
			}
			w.Header().Set("Content-Type", "image/png")
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &heads
}

func newChain(t *testing.T, opts ...Option) *Chain {
	t.Helper()
	e := engine.NewHTTPEngine(engine.HTTPOptions{Timeout: time.Second})
	t.Cleanup(e.Close)
	return New(e, e, config.DefaultExtract(), time.Second, opts...)
}

func TestChain_FindFromHomepage(t *testing.T) {
	srv, _ := newSite(t, `<html><head><link rel="icon" href="/fav.png"></head></html>`)

	cand, err := newChain(t).Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cand.URL != srv.URL+"/fav.png" || cand.Strategy != "link-icon" {
		t.Errorf("candidate = %+v", cand)
	}
}

func TestChain_ProbesCommonPaths(t *testing.T) {
	srv, heads := newSite(t, `<html><body>nothing here</body></html>`, "/img/logo.png")

	cand, err := newChain(t).Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cand.URL != srv.URL+"/img/logo.png" || cand.Strategy != "common-path" {
		t.Errorf("candidate = %+v", cand)
	}
	if heads.Load() != 1 {
		t.Errorf("HEAD requests on the hit = %d, want 1", heads.Load())
	}
}

func TestChain_ProbesWhenHomepageMissing(t *testing.T) {
	srv, _ := newSite(t, "", "/logo.svg")

	cand, err := newChain(t).Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if cand.URL != srv.URL+"/logo.svg" {
		t.Errorf("URL = %q", cand.URL)
	}
}

func TestChain_NotFound(t *testing.T) {
	srv, _ := newSite(t, `<html></html>`)

	_, err := newChain(t).Find(context.Background(), srv.URL)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestChain_RobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := engine.NewHTTPEngine(engine.HTTPOptions{Timeout: time.Second})
	defer e.Close()
	c := New(e, e, config.DefaultExtract(), time.Second, WithRobots(NewRobotsPolicy(e, "logosim")))

	if _, err := c.Find(context.Background(), srv.URL); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

type failingEngine struct{}

func (failingEngine) Name() string { return "fail" }
func (failingEngine) Fetch(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return nil, errors.New("dial tcp: no such host")
}

func TestChain_ExtractFallsBack(t *testing.T) {
	c := New(failingEngine{}, nil, config.DefaultExtract(), time.Second)

	got := c.Extract(context.Background(), "unreachable.example")
	if got != "https://unreachable.example/favicon.ico" {
		t.Errorf("Extract = %q, want favicon fallback", got)
	}
	if cand := c.Resolve(context.Background(), "unreachable.example"); cand.Strategy != StrategyFallback {
		t.Errorf("Resolve strategy = %q, want %q", cand.Strategy, StrategyFallback)
	}
}

func TestChain_WithStrategies(t *testing.T) {
	srv, _ := newSite(t, `<html><head><link rel="icon" href="/fav.png"><meta property="og:image" content="/og.png"></head></html>`)

	cand, err := newChain(t, WithStrategies(metaImages{})).Find(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if cand.Strategy != "meta-image" {
		t.Errorf("Strategy = %q, want meta-image", cand.Strategy)
	}
}

func TestHostPacer(t *testing.T) {
	p := NewHostPacer(20) // one request per 50ms per host
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx, "acme.com"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three paced requests took %s, want >= ~100ms", elapsed)
	}

	start = time.Now()
	if err := p.Wait(ctx, "other.com"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("first request to a new host waited %s", elapsed)
	}
}
