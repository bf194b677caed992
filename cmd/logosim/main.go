// Command logosim clusters domains by the perceptual similarity of their
// logos and writes the clusters to an output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
	"github.com/use-agent/logosim/input"
	"github.com/use-agent/logosim/output"
	"github.com/use-agent/logosim/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Configuration: environment, then flags ───────────────────
	cfg := config.Load()

	var (
		inputPath = flag.String("input", "domains.txt", "domain list (.txt, .csv, .xlsx or .parquet)")
		outDir    = flag.String("output", cfg.Output.Dir, "output directory")
		batchSize = flag.Int("batch-size", cfg.Pipeline.BatchSize, "domains per extraction batch")
		maxConc   = flag.Int("max-concurrent", cfg.Pipeline.MaxConcurrent, "maximum in-flight requests")
		chunkSize = flag.Int("hash-chunk-size", cfg.Pipeline.HashChunkSize, "hash scheduling chunk size")
		threshold = flag.Int("threshold", cfg.Pipeline.NearDuplicateThreshold, "maximum Hamming distance for an edge")
		index     = flag.String("index", cfg.Pipeline.GraphIndex, "graph index: pairwise or bktree")
		timeout   = flag.Duration("timeout", cfg.Pipeline.Timeout, "per-request timeout")
		retries   = flag.Int("retries", cfg.Pipeline.MaxRetries, "retries for failed image downloads")
		xlsx      = flag.Bool("xlsx", cfg.Output.XLSX, "also write clusters.xlsx")
		sqlite    = flag.String("sqlite", cfg.Output.SQLitePath, "store results in this SQLite database")
		browser   = flag.Bool("browser", cfg.Browser.Enabled, "race a headless browser for homepages")
		logLevel  = flag.String("log-level", cfg.Log.Level, "debug, info, warn or error")
	)
	flag.Parse()

	cfg.Output.Dir = *outDir
	cfg.Output.XLSX = *xlsx
	cfg.Output.SQLitePath = *sqlite
	cfg.Pipeline.BatchSize = *batchSize
	cfg.Pipeline.MaxConcurrent = *maxConc
	cfg.Pipeline.HashChunkSize = *chunkSize
	cfg.Pipeline.NearDuplicateThreshold = *threshold
	cfg.Pipeline.GraphIndex = *index
	cfg.Pipeline.Timeout = *timeout
	cfg.Pipeline.MaxRetries = *retries
	cfg.Browser.Enabled = *browser
	cfg.Log.Level = *logLevel

	// ── 2. Logging ──────────────────────────────────────────────────
	config.InitLogger(cfg.Log, os.Stderr)

	if err := cfg.Pipeline.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 2
	}

	// ── 3. Input ────────────────────────────────────────────────────
	domains, err := input.LoadDomains(*inputPath)
	if err != nil {
		slog.Error("failed to load domains", "path", *inputPath, "error", err)
		return 1
	}
	slog.Info("domains loaded", "path", *inputPath, "count", len(domains))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 4. Optional browser ─────────────────────────────────────────
	var opts []pipeline.RunnerOption
	opts = append(opts, pipeline.WithProgress(pipeline.LogProgress))
	if cfg.Browser.Enabled {
		rod, err := engine.NewRodEngine(engine.RodOptions{
			Headless:     cfg.Browser.Headless,
			NoSandbox:    cfg.Browser.NoSandbox,
			BrowserBin:   cfg.Browser.BrowserBin,
			MinPages:     cfg.Browser.MinPages,
			MaxPages:     cfg.Browser.MaxPages,
			MemThreshold: cfg.Browser.MemThreshold,
			ScaleStep:    cfg.Browser.ScaleStep,
			Timeout:      cfg.Pipeline.Timeout,
		})
		if err != nil {
			slog.Error("failed to launch browser", "error", err)
			return 1
		}
		defer rod.Close()
		memory := engine.NewDomainMemory(cfg.Engine.MemoryTTL, 0)
		opts = append(opts, pipeline.WithBrowser(rod, memory))
	}

	// ── 5. Run ──────────────────────────────────────────────────────
	res, err := pipeline.NewRunner(cfg, opts...).Run(ctx, domains)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run interrupted, no files written",
				"extracted", res.Stats.LogosExtracted, "fingerprinted", res.Stats.LogosProcessed)
			return 130
		}
		slog.Error("run failed", "error", err)
		return 1
	}

	// ── 6. Outputs ──────────────────────────────────────────────────
	if _, err := output.NewWriter(cfg.Output).Write(res); err != nil {
		slog.Error("failed to write results", "error", err)
		return 1
	}
	if cfg.Output.SQLitePath != "" {
		if err := saveSQLite(cfg.Output.SQLitePath, res); err != nil {
			slog.Error("failed to store run", "path", cfg.Output.SQLitePath, "error", err)
			return 1
		}
	}

	printSummary(res)
	return 0
}

func saveSQLite(path string, res *pipeline.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := output.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, res)
}

func printSummary(res *pipeline.Result) {
	s := res.Stats
	fmt.Printf("run %s\n", res.RunID)
	fmt.Printf("  domains:        %d\n", s.TotalDomains)
	fmt.Printf("  logos found:    %d\n", s.LogosExtracted)
	fmt.Printf("  fingerprinted:  %d\n", s.LogosProcessed)
	fmt.Printf("  clusters:       %d (%d with more than one domain, largest %d)\n",
		s.ClustersFound, s.MultiMemberClusters, s.LargestCluster)
	fmt.Printf("  duration:       %.1fs\n", s.DurationSeconds)
}
