package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"
)

// HTTPOptions configures an HTTPEngine.
type HTTPOptions struct {
	// Timeout covers connect and transfer of a single request.
	Timeout time.Duration

	// MaxConnsPerHost caps connections to any one destination host.
	// It mirrors the phase's concurrency limit.
	MaxConnsPerHost int

	// MaxBody caps the bytes read from a response body.
	MaxBody int64

	// UserAgents is the pool one agent is picked from per request.
	UserAgents []string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36"

// HTTPEngine is the pooled plain-HTTP client of one pipeline phase.
// It fetches homepages, downloads image bytes and probes paths. Call
// Close when the phase ends to release its idle connections.
type HTTPEngine struct {
	client *http.Client
	opts   HTTPOptions
}

// h1Hello builds a Chrome-like ClientHello whose ALPN only offers
// http/1.1; http.Transport cannot speak h2 over a utls conn.
var h1Hello = sync.OnceValues(func() (*tls.ClientHelloSpec, error) {
	hello, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	for _, ext := range hello.Extensions {
		if a, ok := ext.(*tls.ALPNExtension); ok {
			a.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &hello, nil
})

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
func NewHTTPEngine(opts HTTPOptions) *HTTPEngine {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 10 << 20
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = []string{defaultUserAgent}
	}

	e := &HTTPEngine{opts: opts}
	e.client = &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			DialTLSContext:      e.dialTLS,
			MaxConnsPerHost:     opts.MaxConnsPerHost,
			MaxIdleConnsPerHost: opts.MaxConnsPerHost,
			IdleConnTimeout:     30 * time.Second,
		},
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("http_engine: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return e
}

const maxRedirects = 10

// dialTLS opens a TCP connection and performs the utls handshake with
// the http/1.1 Chrome hello.
func (e *HTTPEngine) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	hello, err := h1Hello()
	if err != nil {
		return nil, fmt.Errorf("http_engine: build client hello: %w", err)
	}
	raw, err := (&net.Dialer{Timeout: e.opts.Timeout}).DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	serverName, _, _ := net.SplitHostPort(addr)
	uconn := tls.UClient(raw, &tls.Config{ServerName: serverName}, tls.HelloCustom)
	if err = uconn.ApplyPreset(hello); err == nil {
		err = uconn.HandshakeContext(ctx)
	}
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("http_engine: tls handshake with %s: %w", serverName, err)
	}
	return uconn, nil
}

func (e *HTTPEngine) Name() string { return "http" }

// Close releases idle pooled connections.
func (e *HTTPEngine) Close() {
	e.client.CloseIdleConnections()
}

// UserAgent returns a user agent picked at random from the pool.
func (e *HTTPEngine) UserAgent() string {
	return e.opts.UserAgents[rand.IntN(len(e.opts.UserAgents))]
}

func (e *HTTPEngine) newRequest(ctx context.Context, method, url, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http_engine: build request: %w", err)
	}
	req.Header.Set("User-Agent", e.UserAgent())
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	return req, nil
}

func (e *HTTPEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := e.newRequest(ctx, http.MethodGet, req.URL,
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http_engine: get %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	// Error pages and non-HTML bodies let the dispatcher escalate to a browser.
	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	if ct := resp.Header.Get("Content-Type"); !htmlMediaType(ct) {
		return nil, fmt.Errorf("http_engine: %s is %q, not html", req.URL, ct)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBody))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read %s: %w", req.URL, err)
	}
	doc := string(page)
	return &FetchResult{
		HTML:       doc,
		Title:      pageTitle(doc),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		EngineName: e.Name(),
	}, nil
}

// Download reads the whole body of a 2xx response, capped at MaxBody.
func (e *HTTPEngine) Download(ctx context.Context, url string) (*Download, error) {
	req, err := e.newRequest(ctx, http.MethodGet, url, "image/avif,image/webp,image/*,*/*;q=0.8")
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http_engine: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.opts.MaxBody))
	if err != nil {
		return nil, fmt.Errorf("http_engine: read %s: %w", url, err)
	}
	return &Download{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// Head issues a HEAD request, following redirects, and returns the
// final status code.
func (e *HTTPEngine) Head(ctx context.Context, url string) (int, error) {
	req, err := e.newRequest(ctx, http.MethodHead, url, "*/*")
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http_engine: head: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// htmlMediaType reports whether a Content-Type header names an HTML
// document. An absent header is treated as HTML.
func htmlMediaType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// pageTitle returns the text of the first <title> element, or "".
func pageTitle(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return ""
		}
		if tt != html.StartTagToken {
			continue
		}
		if name, _ := z.TagName(); string(name) != "title" {
			continue
		}
		if z.Next() == html.TextToken {
			return strings.TrimSpace(string(z.Text()))
		}
		return ""
	}
}
