package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/models"
)

// Fingerprinter turns an image URL into a fingerprint record.
type Fingerprinter interface {
	Process(ctx context.Context, url string) (*models.Fingerprint, error)
}

// Hashing drives a Fingerprinter over resolved URLs. Work is scheduled in
// chunks of chunkSize goroutines; a single semaphore shared by every
// chunk caps how many run at once.
type Hashing struct {
	fp          Fingerprinter
	chunkSize   int
	concurrency int64
	onProgress  ProgressFunc
}

// NewHashing creates a hashing coordinator. onProgress may be nil.
func NewHashing(fp Fingerprinter, cfg config.PipelineConfig, onProgress ProgressFunc) *Hashing {
	return &Hashing{
		fp:          fp,
		chunkSize:   max(1, cfg.HashChunkSize),
		concurrency: int64(max(1, cfg.MaxConcurrent)),
		onProgress:  onProgress,
	}
}

type workItem struct {
	domain string
	url    string
}

type hashResult struct {
	domain string
	fp     *models.Fingerprint
	err    error
}

// Run fingerprints every domain with a non-empty URL. Domains whose image
// fails at any stage are absent from the result. When ctx is canceled
// the chunk in flight is discarded and the merged chunks are returned
// along with ctx's error.
func (h *Hashing) Run(ctx context.Context, urls map[string]string) (map[string]*models.Fingerprint, error) {
	items := make([]workItem, 0, len(urls))
	for d, u := range urls {
		if u != "" {
			items = append(items, workItem{domain: d, url: u})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].domain < items[j].domain })

	sem := semaphore.NewWeighted(h.concurrency)
	out := make(map[string]*models.Fingerprint, len(items))
	processed := 0
	failures := make(map[string]int)

	for start := 0; start < len(items); start += h.chunkSize {
		chunk := items[start:min(start+h.chunkSize, len(items))]
		results := make(chan hashResult, len(chunk))

		for _, it := range chunk {
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- hashResult{domain: it.domain, err: err}
					return
				}
				defer sem.Release(1)
				fp, err := h.process(ctx, it.url)
				results <- hashResult{domain: it.domain, fp: fp, err: err}
			}()
		}

		got := make(map[string]*models.Fingerprint, len(chunk))
		for range chunk {
			r := <-results
			processed++
			if r.err != nil {
				failures[models.ErrorCode(r.err)]++
				slog.Debug("fingerprint failed", "domain", r.domain, "code", models.ErrorCode(r.err), "error", r.err)
			} else if r.fp != nil {
				got[r.domain] = r.fp
			}
			emit(h.onProgress, models.Progress{
				Phase: models.PhaseHash,
				Done:  processed,
				Total: len(items),
				Found: len(out) + len(got),
			})
		}

		if err := ctx.Err(); err != nil {
			slog.Info("hashing canceled, discarding chunk", "merged", len(out))
			return out, err
		}
		for d, fp := range got {
			out[d] = fp
		}
	}

	if len(failures) > 0 {
		slog.Info("hashing finished with failures", "ok", len(out), "failures", failures)
	}
	return out, nil
}

// process isolates a panicking Fingerprinter to the one domain.
func (h *Hashing) process(ctx context.Context, url string) (fp *models.Fingerprint, err error) {
	defer func() {
		if r := recover(); r != nil {
			fp, err = nil, models.NewPipelineError(models.ErrCodeHash, "fingerprint panicked", fmt.Errorf("%v", r))
		}
	}()
	return h.fp.Process(ctx, url)
}
