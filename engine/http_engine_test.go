package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title> Acme </title></head><body></body></html>`))
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("0123456789"))
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/logo.png", http.StatusFound)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<title>" + r.UserAgent() + "</title>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEngine_Fetch(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: time.Second, MaxConnsPerHost: 2})
	defer e.Close()

	res, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "Acme" {
		t.Errorf("Title = %q, want Acme", res.Title)
	}
	if res.EngineName != "http" || res.StatusCode != 200 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestHTTPEngine_FetchRejects(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: time.Second})
	defer e.Close()

	if _, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/data.json"}); err == nil {
		t.Error("expected error for non-html content")
	}

	_, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/missing.png"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
}

func TestHTTPEngine_UserAgentPool(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: time.Second, UserAgents: []string{"agent-a"}})
	defer e.Close()

	res, err := e.Fetch(context.Background(), &FetchRequest{URL: srv.URL + "/ua"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "agent-a" {
		t.Errorf("User-Agent = %q, want agent-a", res.Title)
	}
}

func TestHTTPEngine_Download(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: time.Second, MaxBody: 4})
	defer e.Close()

	d, err := e.Download(context.Background(), srv.URL+"/moved.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(d.Body) != "0123" {
		t.Errorf("Body = %q, want capped %q", d.Body, "0123")
	}
	if !strings.HasSuffix(d.FinalURL, "/logo.png") {
		t.Errorf("FinalURL = %q, want redirect target", d.FinalURL)
	}

	_, err = e.Download(context.Background(), srv.URL+"/missing.png")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}
}

func TestHTTPEngine_DownloadTimeout(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: 100 * time.Millisecond})
	defer e.Close()

	start := time.Now()
	if _, err := e.Download(context.Background(), srv.URL+"/slow.png"); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
}

func TestHTTPEngine_Head(t *testing.T) {
	srv := newTestServer(t)
	e := NewHTTPEngine(HTTPOptions{Timeout: time.Second})
	defer e.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/logo.png", 200},
		{"/moved.png", 200},
		{"/missing.png", 404},
	}
	for _, tt := range tests {
		got, err := e.Head(context.Background(), srv.URL+tt.path)
		if err != nil {
			t.Fatalf("Head(%s): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Head(%s) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{"<html><head><title>Hello</title></head></html>", "Hello"},
		{"<title></title>", ""},
		{"<p>no title</p>", ""},
	}
	for _, tt := range tests {
		if got := pageTitle(tt.html); got != tt.want {
			t.Errorf("pageTitle(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestHTMLMediaType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"text/html; charset=utf-8", true},
		{"TEXT/HTML", true},
		{"application/xhtml+xml", true},
		{"", true},
		{"application/json", false},
		{"image/png", false},
	}
	for _, tt := range tests {
		if got := htmlMediaType(tt.ct); got != tt.want {
			t.Errorf("htmlMediaType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
