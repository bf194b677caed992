// Package fingerprint downloads a logo image and turns it into a
// perceptual-hash record.
package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
	"github.com/use-agent/logosim/imaging"
	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/phash"
)

// Processor runs fetch, decode, validate, normalize and hash for one URL.
// It is safe for concurrent use.
type Processor struct {
	dl         engine.Downloader
	timeout    time.Duration
	minSize    int
	normSize   int
	maxPixels  int64
	maxRetries int
	retryDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

// NewProcessor creates a Processor that downloads through dl.
func NewProcessor(dl engine.Downloader, cfg config.PipelineConfig) *Processor {
	return &Processor{
		dl:         dl,
		timeout:    cfg.Timeout,
		minSize:    cfg.MinImageSize,
		normSize:   cfg.NormalizeSize,
		maxPixels:  cfg.MaxImagePixels,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		sleep:      sleepCtx,
	}
}

// Process fingerprints the image at url. Every failure is a
// *models.PipelineError whose code names the failing stage.
func (p *Processor) Process(ctx context.Context, url string) (*models.Fingerprint, error) {
	body, err := p.download(ctx, url)
	if err != nil {
		return nil, err
	}
	fp, err := p.FromBytes(body)
	if err != nil {
		return nil, err
	}
	fp.URL = url
	return fp, nil
}

// FromBytes fingerprints an already downloaded body.
func (p *Processor) FromBytes(body []byte) (fp *models.Fingerprint, err error) {
	// Decoders and hash libraries may panic on hostile input.
	stage := models.ErrCodeDecode
	defer func() {
		if r := recover(); r != nil {
			fp = nil
			err = models.NewPipelineError(stage, "image processing panicked", fmt.Errorf("%v", r))
		}
	}()

	maxPixels := p.maxPixels
	if maxPixels <= 0 {
		maxPixels = config.DefaultPipeline().MaxImagePixels
	}
	img, format, err := imaging.Decode(body, maxPixels)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeDecode, "cannot decode image", err)
	}
	if err := imaging.Validate(img, p.minSize); err != nil {
		return nil, models.NewPipelineError(models.ErrCodeValidation, "image too small", err)
	}

	stage = models.ErrCodeHash
	hashes, err := phash.Compute(imaging.Normalize(img, p.normSize))
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeHash, "hash computation failed", err)
	}

	b := img.Bounds()
	return &models.Fingerprint{
		Hashes: hashes,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
	}, nil
}

// download fetches url under one total timeout per attempt. Only network
// failures are retried, with exponential backoff, up to maxRetries times.
func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	delay := p.retryDelay
	for attempt := 0; ; attempt++ {
		body, err := p.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if attempt >= p.maxRetries || ctx.Err() != nil || !retryable(err) {
			return nil, models.NewPipelineError(models.ErrCodeNetwork, "download failed", err)
		}
		slog.Debug("retrying download", "url", url, "attempt", attempt+1, "error", err)
		if err := p.sleep(ctx, delay); err != nil {
			return nil, models.NewPipelineError(models.ErrCodeNetwork, "download canceled", err)
		}
		delay *= 2
	}
}

func (p *Processor) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	d, err := p.dl.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return d.Body, nil
}

// retryable treats client errors (4xx) as permanent.
func retryable(err error) bool {
	var se *engine.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == 429
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
