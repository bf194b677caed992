package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_PipelineDefaults(t *testing.T) {
	cfg := Load()
	p := cfg.Pipeline

	if p.Timeout != 8*time.Second {
		t.Errorf("Timeout = %s, want 8s", p.Timeout)
	}
	if p.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", p.MaxRetries)
	}
	if p.BatchSize != 100 || p.MaxConcurrent != 20 || p.HashChunkSize != 200 {
		t.Errorf("unexpected scheduling defaults: %+v", p)
	}
	if p.NearDuplicateThreshold != 5 {
		t.Errorf("NearDuplicateThreshold = %d, want 5", p.NearDuplicateThreshold)
	}
	if p.MaxImagePixels != 4096*4096 {
		t.Errorf("MaxImagePixels = %d, want %d", p.MaxImagePixels, 4096*4096)
	}
	if p.NormalizeSize != 64 || p.MinImageSize != 16 {
		t.Errorf("unexpected image defaults: normalize=%d min=%d", p.NormalizeSize, p.MinImageSize)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOGOSIM_BATCH_SIZE", "7")
	t.Setenv("LOGOSIM_TIMEOUT", "3s")
	t.Setenv("LOGOSIM_GRAPH_INDEX", "bktree")
	t.Setenv("LOGOSIM_USER_AGENTS", "a, b ,,c")

	cfg := Load()
	if cfg.Pipeline.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Timeout != 3*time.Second {
		t.Errorf("Timeout = %s, want 3s", cfg.Pipeline.Timeout)
	}
	if cfg.Pipeline.GraphIndex != "bktree" {
		t.Errorf("GraphIndex = %q, want bktree", cfg.Pipeline.GraphIndex)
	}
	want := []string{"a", "b", "c"}
	if len(cfg.Extract.UserAgents) != len(want) {
		t.Fatalf("UserAgents = %v, want %v", cfg.Extract.UserAgents, want)
	}
	for i := range want {
		if cfg.Extract.UserAgents[i] != want[i] {
			t.Errorf("UserAgents[%d] = %q, want %q", i, cfg.Extract.UserAgents[i], want[i])
		}
	}
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	t.Setenv("LOGOSIM_MAX_CONCURRENT", "lots")
	cfg := Load()
	if cfg.Pipeline.MaxConcurrent != 20 {
		t.Errorf("MaxConcurrent = %d, want fallback 20", cfg.Pipeline.MaxConcurrent)
	}
}

func TestPipelineConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"zero timeout", func(p *PipelineConfig) { p.Timeout = 0 }},
		{"negative retries", func(p *PipelineConfig) { p.MaxRetries = -1 }},
		{"zero batch", func(p *PipelineConfig) { p.BatchSize = 0 }},
		{"zero concurrency", func(p *PipelineConfig) { p.MaxConcurrent = 0 }},
		{"zero chunk", func(p *PipelineConfig) { p.HashChunkSize = 0 }},
		{"negative threshold", func(p *PipelineConfig) { p.NearDuplicateThreshold = -1 }},
		{"tiny normalize", func(p *PipelineConfig) { p.NormalizeSize = 4 }},
		{"zero min size", func(p *PipelineConfig) { p.MinImageSize = 0 }},
		{"zero pixel cap", func(p *PipelineConfig) { p.MaxImagePixels = 0 }},
		{"unknown index", func(p *PipelineConfig) { p.GraphIndex = "lsh" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPipeline()
			tt.mutate(&p)
			if err := p.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestNewLogHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewLogHandler(LogConfig{Level: "warn", Format: "json"}, &buf))
	log.Info("dropped")
	log.Warn("kept", "domain", "acme.com")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"domain":"acme.com"`) {
		t.Errorf("expected JSON attrs, got %s", out)
	}

	buf.Reset()
	slog.New(NewLogHandler(LogConfig{Level: "debug", Format: "text"}, &buf)).Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}
