// Command logosim-server serves the logo pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/logosim/api"
	"github.com/use-agent/logosim/api/handler"
	"github.com/use-agent/logosim/cache"
	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
	"github.com/use-agent/logosim/extractor"
	"github.com/use-agent/logosim/fingerprint"
	"github.com/use-agent/logosim/pipeline"
	"github.com/use-agent/logosim/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	config.InitLogger(cfg.Log, os.Stdout)
	slog.Info("logosim starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"browser", cfg.Browser.Enabled,
	)
	if err := cfg.Pipeline.Validate(); err != nil {
		slog.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	// ── 3. Shared HTTP client for single-item endpoints ─────────────
	client := engine.NewHTTPEngine(engine.HTTPOptions{
		Timeout:         cfg.Pipeline.Timeout,
		MaxConnsPerHost: cfg.Pipeline.MaxConcurrent,
		MaxBody:         cfg.Pipeline.MaxImageBytes,
		UserAgents:      cfg.Extract.UserAgents,
	})
	defer client.Close()

	// ── 3b. Optional browser + dispatcher ───────────────────────────
	var (
		pages   engine.Engine = client
		rod     *engine.RodEngine
		runOpts []pipeline.RunnerOption
	)
	if cfg.Browser.Enabled {
		var err error
		rod, err = engine.NewRodEngine(engine.RodOptions{
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
			os.Exit(1)
		}
		defer rod.Close()

		memory := engine.NewDomainMemory(cfg.Engine.MemoryTTL, 10*time.Minute)
		defer memory.Stop()
		runOpts = append(runOpts, pipeline.WithBrowser(rod, memory))
		if cfg.Engine.EnableMultiEngine {
			pages = engine.NewDispatcher([]engine.Engine{client, rod}, cfg.Engine.EscalationDelays, memory)
			slog.Info("multi-engine dispatcher enabled", "delays", cfg.Engine.EscalationDelays)
		}
	}

	// ── 4. Pipeline services ────────────────────────────────────────
	var chainOpts []extractor.Option
	if cfg.Extract.RespectRobots {
		chainOpts = append(chainOpts, extractor.WithRobots(extractor.NewRobotsPolicy(client, "logosim")))
	}
	if cfg.Extract.HostRPS > 0 {
		chainOpts = append(chainOpts, extractor.WithPacer(extractor.NewHostPacer(cfg.Extract.HostRPS)))
	}
	chain := extractor.New(pages, client, cfg.Extract, cfg.Pipeline.Timeout, chainOpts...)
	proc := fingerprint.NewProcessor(client, cfg.Pipeline)

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Stop()

	jobs := handler.NewJobStore(time.Hour)
	defer jobs.Stop()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Config:        cfg,
		Fingerprinter: proc,
		Logos:         chain,
		Cluster: &handler.ClusterService{
			Config:   cfg,
			Options:  append(runOpts, pipeline.WithProgress(pipeline.LogProgress)),
			Notifier: webhook.NewNotifier(10*time.Second, nil),
			Jobs:     jobs,
		},
		Cache:     cc,
		Browser:   rod,
		StartTime: time.Now(),
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("logosim stopped")
}
