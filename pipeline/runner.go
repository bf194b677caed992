// Package pipeline runs the logo similarity pipeline: extraction,
// hashing, graph construction and clustering, in strict sequence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/logosim/cluster"
	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
	"github.com/use-agent/logosim/extractor"
	"github.com/use-agent/logosim/fingerprint"
	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/phash"
)

// Result is everything one run produced.
type Result struct {
	RunID        string                         `json:"run_id"`
	Domains      []string                       `json:"domains"`
	URLs         map[string]string              `json:"urls"`
	Fingerprints map[string]*models.Fingerprint `json:"fingerprints"`
	Graph        *cluster.Graph                 `json:"graph"`
	Clusters     []models.Cluster               `json:"clusters"`
	Stats        models.Stats                   `json:"stats"`
	StartedAt    time.Time                      `json:"started_at"`
	FinishedAt   time.Time                      `json:"finished_at"`
}

// Runner wires the coordinators together from one configuration value.
type Runner struct {
	cfg        *config.Config
	browser    engine.Engine
	memory     *engine.DomainMemory
	chainOpts  []extractor.Option
	onProgress ProgressFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithBrowser races page fetches between the phase's HTTP client and a
// browser engine, remembering the winner per host in memory. memory may
// be nil, in which case every homepage goes through the escalation race.
func WithBrowser(browser engine.Engine, memory *engine.DomainMemory) RunnerOption {
	return func(r *Runner) { r.browser, r.memory = browser, memory }
}

// WithExtractorOptions passes options to every extraction chain.
func WithExtractorOptions(opts ...extractor.Option) RunnerOption {
	return func(r *Runner) { r.chainOpts = append(r.chainOpts, opts...) }
}

// WithProgress installs a progress observer.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.onProgress = fn }
}

// NewRunner creates a Runner. cfg.Pipeline must be valid.
func NewRunner(cfg *config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes the whole pipeline over domains. On cancellation it
// returns the partial result gathered so far together with the error.
func (r *Runner) Run(ctx context.Context, domains []string) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		Domains:   domains,
		StartedAt: time.Now(),
	}
	pc := r.cfg.Pipeline
	log := slog.With("run", res.RunID)

	// ── 1. Extraction ──────────────────────────────────────────────
	log.Info("extracting logos", "domains", len(domains), "batch_size", pc.BatchSize, "concurrency", pc.MaxConcurrent)
	urls, err := r.extract(ctx, domains)
	res.URLs = urls
	if err != nil {
		return r.finish(res), fmt.Errorf("pipeline: extraction: %w", err)
	}

	// ── 2. Hashing ─────────────────────────────────────────────────
	log.Info("fingerprinting logos", "urls", len(urls), "chunk_size", pc.HashChunkSize)
	fps, err := r.hash(ctx, urls)
	res.Fingerprints = fps
	if err != nil {
		return r.finish(res), fmt.Errorf("pipeline: hashing: %w", err)
	}

	// ── 3. Graph + clusters ────────────────────────────────────────
	g, err := cluster.BuildGraph(fps, cluster.Options{
		Threshold: pc.NearDuplicateThreshold,
		CodeBits:  phash.CodeBits,
		Index:     cluster.Index(pc.GraphIndex),
	})
	if err != nil {
		return r.finish(res), fmt.Errorf("pipeline: graph: %w", err)
	}
	res.Graph = g
	res.Clusters = cluster.Components(g)
	emit(r.onProgress, models.Progress{
		Phase: models.PhaseCluster, Done: len(g.Nodes), Total: len(g.Nodes), Found: len(res.Clusters),
	})

	r.finish(res)
	log.Info("run complete",
		"domains", res.Stats.TotalDomains,
		"extracted", res.Stats.LogosExtracted,
		"fingerprinted", res.Stats.LogosProcessed,
		"clusters", res.Stats.ClustersFound,
		"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	return res, nil
}

func (r *Runner) finish(res *Result) *Result {
	res.FinishedAt = time.Now()
	res.Stats = Summarize(res, r.cfg.Pipeline.NearDuplicateThreshold)
	return res
}

// newClient returns the pooled client for one phase; callers must Close it.
func (r *Runner) newClient() *engine.HTTPEngine {
	pc := r.cfg.Pipeline
	return engine.NewHTTPEngine(engine.HTTPOptions{
		Timeout:         pc.Timeout,
		MaxConnsPerHost: pc.MaxConcurrent,
		MaxBody:         pc.MaxImageBytes,
		UserAgents:      r.cfg.Extract.UserAgents,
	})
}

func (r *Runner) extract(ctx context.Context, domains []string) (map[string]string, error) {
	client := r.newClient()
	defer client.Close()

	var pages engine.Engine = client
	if r.browser != nil && r.cfg.Engine.EnableMultiEngine {
		pages = engine.NewDispatcher([]engine.Engine{client, r.browser}, r.cfg.Engine.EscalationDelays, r.memory)
	}

	opts := append([]extractor.Option(nil), r.chainOpts...)
	if r.cfg.Extract.RespectRobots {
		opts = append(opts, extractor.WithRobots(extractor.NewRobotsPolicy(client, "logosim")))
	}
	if r.cfg.Extract.HostRPS > 0 {
		opts = append(opts, extractor.WithPacer(extractor.NewHostPacer(r.cfg.Extract.HostRPS)))
	}
	chain := extractor.New(pages, client, r.cfg.Extract, r.cfg.Pipeline.Timeout, opts...)

	return NewExtraction(chain, r.cfg.Pipeline, r.onProgress).Run(ctx, domains)
}

func (r *Runner) hash(ctx context.Context, urls map[string]string) (map[string]*models.Fingerprint, error) {
	client := r.newClient()
	defer client.Close()

	proc := fingerprint.NewProcessor(client, r.cfg.Pipeline)
	return NewHashing(proc, r.cfg.Pipeline, r.onProgress).Run(ctx, urls)
}

// Summarize derives run statistics from a (possibly partial) result.
func Summarize(res *Result, threshold int) models.Stats {
	s := models.Stats{
		TotalDomains:   len(res.Domains),
		LogosProcessed: len(res.Fingerprints),
		ClustersFound:  len(res.Clusters),
		Threshold:      threshold,
	}
	for _, u := range res.URLs {
		if u != "" {
			s.LogosExtracted++
		}
	}
	for _, c := range res.Clusters {
		if c.Size > 1 {
			s.MultiMemberClusters++
		}
		s.LargestCluster = max(s.LargestCluster, c.Size)
	}
	if res.Graph != nil {
		s.Edges = len(res.Graph.Edges)
		s.RejectedRecords = len(res.Graph.Rejected)
		for _, n := range res.Graph.Degree() {
			s.MaxDegree = max(s.MaxDegree, n)
		}
	}
	if !res.FinishedAt.IsZero() {
		s.DurationSeconds = res.FinishedAt.Sub(res.StartedAt).Seconds()
	}
	return s
}
