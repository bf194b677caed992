package engine

import (
	"context"
	"fmt"
	"time"
)

// Engine fetches the HTML of a page. The logo extractor runs its
// strategies over whatever an Engine returns.
type Engine interface {
	// Name identifies the engine in FetchResult.EngineName.
	Name() string

	// Fetch returns the HTML served at req.URL.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// Downloader retrieves raw bytes, used for image bodies.
type Downloader interface {
	Download(ctx context.Context, url string) (*Download, error)
}

// Prober checks whether a URL resolves without transferring its body.
type Prober interface {
	Head(ctx context.Context, url string) (int, error)
}

// FetchRequest describes one page load.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool
}

// FetchResult is a fetched page.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string
}

// Download is a fully read response body.
type Download struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine: %s returned status %d", e.URL, e.StatusCode)
}
