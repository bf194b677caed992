package pipeline

import (
	"log/slog"
	"time"

	"github.com/use-agent/logosim/models"
)

// ProgressFunc observes pipeline progress. It must not block.
type ProgressFunc func(models.Progress)

func emit(fn ProgressFunc, p models.Progress) {
	if fn == nil {
		return
	}
	if p.At.IsZero() {
		p.At = time.Now()
	}
	fn(p)
}

// LogProgress reports extraction batches at info level and hashing
// progress every tenth of the way.
func LogProgress(p models.Progress) {
	switch p.Phase {
	case models.PhaseExtract:
		slog.Info("extraction batch done",
			"batch", p.Batch, "batches", p.Batches, "done", p.Done, "total", p.Total, "extracted", p.Found)
	case models.PhaseHash:
		step := max(1, p.Total/10)
		if p.Done%step == 0 || p.Done == p.Total {
			slog.Info("hashing progress", "done", p.Done, "total", p.Total, "fingerprinted", p.Found)
		}
	}
}

// Chain fans one observation out to several observers.
func Chain(fns ...ProgressFunc) ProgressFunc {
	return func(p models.Progress) {
		for _, fn := range fns {
			if fn != nil {
				fn(p)
			}
		}
	}
}
