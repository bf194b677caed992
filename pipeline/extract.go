package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/models"
)

// LogoFinder returns a non-empty candidate logo URL for a domain.
type LogoFinder interface {
	Extract(ctx context.Context, domain string) string
}

// Extraction drives a LogoFinder over all domains in consecutive
// batches. Batches run one after another; inside a batch at most
// concurrency lookups run at once.
type Extraction struct {
	finder      LogoFinder
	batchSize   int
	concurrency int
	pause       time.Duration
	onProgress  ProgressFunc
}

// NewExtraction creates an extraction coordinator. onProgress may be nil.
func NewExtraction(finder LogoFinder, cfg config.PipelineConfig, onProgress ProgressFunc) *Extraction {
	return &Extraction{
		finder:      finder,
		batchSize:   max(1, cfg.BatchSize),
		concurrency: max(1, cfg.MaxConcurrent),
		pause:       cfg.BatchPause,
		onProgress:  onProgress,
	}
}

// Run returns one URL per input domain. When ctx is canceled the batch in
// flight is discarded and the batches already merged are returned along
// with ctx's error.
func (e *Extraction) Run(ctx context.Context, domains []string) (map[string]string, error) {
	urls := make(map[string]string, len(domains))
	batches := (len(domains) + e.batchSize - 1) / e.batchSize
	found := 0

	for b := 0; b < batches; b++ {
		start := b * e.batchSize
		end := min(start+e.batchSize, len(domains))
		batch := domains[start:end]

		got := e.runBatch(ctx, batch)
		if err := ctx.Err(); err != nil {
			slog.Info("extraction canceled, discarding batch", "batch", b+1, "merged", len(urls))
			return urls, err
		}

		for d, u := range got {
			urls[d] = u
			if u != "" {
				found++
			}
		}
		emit(e.onProgress, models.Progress{
			Phase:   models.PhaseExtract,
			Done:    end,
			Total:   len(domains),
			Found:   found,
			Batch:   b + 1,
			Batches: batches,
		})

		if b < batches-1 && e.pause > 0 {
			if err := sleep(ctx, e.pause); err != nil {
				return urls, err
			}
		}
	}
	return urls, nil
}

func (e *Extraction) runBatch(ctx context.Context, batch []string) map[string]string {
	var (
		mu  sync.Mutex
		out = make(map[string]string, len(batch))
	)
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, d := range batch {
		g.Go(func() error {
			u := e.finder.Extract(ctx, d)
			mu.Lock()
			out[d] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
