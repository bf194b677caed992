package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Engine    EngineConfig
	Browser   BrowserConfig
	Pipeline  PipelineConfig
	Extract   ExtractConfig
	Output    OutputConfig
}

// PipelineConfig controls the extraction, hashing and clustering phases.
type PipelineConfig struct {
	// Timeout is the total duration of one network operation
	// (connect + transfer).
	Timeout time.Duration // default: 8s

	// MaxRetries is the number of extra attempts made after a network
	// failure while downloading an image. Zero disables retries.
	MaxRetries int // default: 0

	// RetryDelay is the base backoff between retries; it doubles per attempt.
	RetryDelay time.Duration // default: 500ms

	// BatchSize is the number of domains per extraction batch.
	BatchSize int // default: 100

	// MaxConcurrent caps in-flight operations per phase and the
	// per-host connection count of each phase's client.
	MaxConcurrent int // default: 20

	// HashChunkSize bounds how many hashing units are scheduled at once.
	HashChunkSize int // default: 200

	// NearDuplicateThreshold is the maximum Hamming distance for an edge.
	NearDuplicateThreshold int // default: 5

	// NormalizeSize is the side of the square images are resized to.
	NormalizeSize int // default: 64

	// MinImageSize rejects images with a smaller width or height.
	MinImageSize int // default: 16

	// MaxImageBytes caps the downloaded body size.
	MaxImageBytes int64 // default: 10 MB

	// MaxImagePixels rejects images whose header claims more pixels,
	// before any pixel data is allocated.
	MaxImagePixels int64 // default: 4096*4096

	// BatchPause is the pause between extraction batches.
	BatchPause time.Duration // default: 200ms

	// GraphIndex selects how edges are found: "pairwise" or "bktree".
	GraphIndex string // default: "pairwise"
}

// ExtractConfig controls the logo discovery strategies.
type ExtractConfig struct {
	// UserAgents is the pool a random user agent is picked from per request.
	UserAgents []string

	// RespectRobots skips page heuristics for hosts whose robots.txt
	// disallows the homepage.
	RespectRobots bool // default: false

	// HostRPS paces requests to a single host. Zero disables pacing.
	HostRPS float64 // default: 0

	// ProbeCommonPaths enables HEAD probing of well-known logo paths.
	ProbeCommonPaths bool // default: true
}

// OutputConfig controls where run results are written.
type OutputConfig struct {
	Dir string // default: "output"

	// XLSX additionally writes clusters.xlsx.
	XLSX bool // default: false

	// SQLitePath, when set, stores run results in a SQLite database.
	SQLitePath string
}

// EngineConfig controls the multi-engine racing dispatcher.
type EngineConfig struct {
	// EnableMultiEngine toggles the multi-engine dispatcher. It only has an
	// effect when the browser engine is enabled as well.
	EnableMultiEngine bool // default: true

	// EscalationDelays is the staged start delay for each engine tier.
	EscalationDelays []time.Duration // default: [0s, 2s, 5s]

	// MemoryTTL is how long the winning engine is remembered per domain.
	MemoryTTL time.Duration // default: 24h
}

// BrowserConfig controls the optional Rod browser engine.
type BrowserConfig struct {
	// Enabled launches a headless browser for JS-rendered homepages.
	Enabled bool // default: false

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// MinPages is the minimum number of tabs kept open.
	MinPages int // default: 2

	// MaxPages is the absolute maximum number of tabs.
	MaxPages int // default: 10

	// MemThreshold is the heap fraction above which the tab pool shrinks.
	MemThreshold float64 // default: 0.9

	// ScaleStep is the fraction of the pool to grow or shrink per interval.
	ScaleStep float64 // default: 0.05
}

// CacheConfig controls the fingerprint cache used by the API.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached fingerprints.
	MaxEntries int // default: 1000

	// TTL bounds how long an entry survives the periodic sweep.
	TTL time.Duration // default: 1h
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxDomains caps the domains accepted by one cluster job.
	MaxDomains int // default: 5000
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36",
}

// Load reads configuration from an optional .env file and environment
// variables with sane defaults. Variables already present in the
// environment win over the .env file.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Host:       envOr("LOGOSIM_HOST", "0.0.0.0"),
			Port:       envIntOr("LOGOSIM_PORT", 8080),
			Mode:       envOr("LOGOSIM_MODE", "release"),
			MaxDomains: envIntOr("LOGOSIM_MAX_DOMAINS", 5000),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LOGOSIM_AUTH_ENABLED", true),
			APIKeys: envSliceOr("LOGOSIM_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LOGOSIM_RATE_RPS", 5.0),
			Burst:             envIntOr("LOGOSIM_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("LOGOSIM_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("LOGOSIM_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("LOGOSIM_LOG_LEVEL", "info"),
			Format: envOr("LOGOSIM_LOG_FORMAT", "json"),
		},
		Engine: EngineConfig{
			EnableMultiEngine: envBoolOr("LOGOSIM_MULTI_ENGINE", true),
			EscalationDelays:  envDurationSliceOr("LOGOSIM_ESCALATION_DELAYS", []time.Duration{0, 2 * time.Second, 5 * time.Second}),
			MemoryTTL:         envDurationOr("LOGOSIM_ENGINE_MEMORY_TTL", 24*time.Hour),
		},
		Browser: BrowserConfig{
			Enabled:      envBoolOr("LOGOSIM_BROWSER_ENABLED", false),
			Headless:     envBoolOr("LOGOSIM_HEADLESS", true),
			NoSandbox:    envBoolOr("LOGOSIM_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("LOGOSIM_BROWSER_BIN"),
			MinPages:     envIntOr("LOGOSIM_MIN_PAGES", 2),
			MaxPages:     envIntOr("LOGOSIM_MAX_PAGES", 10),
			MemThreshold: envFloatOr("LOGOSIM_MEM_THRESHOLD", 0.9),
			ScaleStep:    envFloatOr("LOGOSIM_SCALE_STEP", 0.05),
		},
		Pipeline: PipelineConfig{
			Timeout:                envDurationOr("LOGOSIM_TIMEOUT", 8*time.Second),
			MaxRetries:             envIntOr("LOGOSIM_MAX_RETRIES", 0),
			RetryDelay:             envDurationOr("LOGOSIM_RETRY_DELAY", 500*time.Millisecond),
			BatchSize:              envIntOr("LOGOSIM_BATCH_SIZE", 100),
			MaxConcurrent:          envIntOr("LOGOSIM_MAX_CONCURRENT", 20),
			HashChunkSize:          envIntOr("LOGOSIM_HASH_CHUNK_SIZE", 200),
			NearDuplicateThreshold: envIntOr("LOGOSIM_THRESHOLD", 5),
			NormalizeSize:          envIntOr("LOGOSIM_NORMALIZE_SIZE", 64),
			MinImageSize:           envIntOr("LOGOSIM_MIN_IMAGE_SIZE", 16),
			MaxImageBytes:          int64(envIntOr("LOGOSIM_MAX_IMAGE_BYTES", 10<<20)),
			MaxImagePixels:         int64(envIntOr("LOGOSIM_MAX_IMAGE_PIXELS", 4096*4096)),
			BatchPause:             envDurationOr("LOGOSIM_BATCH_PAUSE", 200*time.Millisecond),
			GraphIndex:             envOr("LOGOSIM_GRAPH_INDEX", "pairwise"),
		},
		Extract: ExtractConfig{
			UserAgents:       envSliceOr("LOGOSIM_USER_AGENTS", defaultUserAgents),
			RespectRobots:    envBoolOr("LOGOSIM_RESPECT_ROBOTS", false),
			HostRPS:          envFloatOr("LOGOSIM_HOST_RPS", 0),
			ProbeCommonPaths: envBoolOr("LOGOSIM_PROBE_PATHS", true),
		},
		Output: OutputConfig{
			Dir:        envOr("LOGOSIM_OUTPUT_DIR", "output"),
			XLSX:       envBoolOr("LOGOSIM_OUTPUT_XLSX", false),
			SQLitePath: os.Getenv("LOGOSIM_SQLITE_PATH"),
		},
	}
}

// DefaultPipeline returns the pipeline defaults without consulting the
// environment.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		Timeout:                8 * time.Second,
		RetryDelay:             500 * time.Millisecond,
		BatchSize:              100,
		MaxConcurrent:          20,
		HashChunkSize:          200,
		NearDuplicateThreshold: 5,
		NormalizeSize:          64,
		MinImageSize:           16,
		MaxImageBytes:          10 << 20,
		MaxImagePixels:         4096 * 4096,
		BatchPause:             200 * time.Millisecond,
		GraphIndex:             "pairwise",
	}
}

// DefaultExtract returns the extraction defaults without consulting the
// environment.
func DefaultExtract() ExtractConfig {
	return ExtractConfig{
		UserAgents:       append([]string(nil), defaultUserAgents...),
		ProbeCommonPaths: true,
	}
}

// Validate checks the pipeline settings that the coordinators cannot
// work without.
func (p PipelineConfig) Validate() error {
	switch {
	case p.Timeout <= 0:
		return fmt.Errorf("config: timeout must be > 0, got %s", p.Timeout)
	case p.MaxRetries < 0:
		return fmt.Errorf("config: max retries must be >= 0, got %d", p.MaxRetries)
	case p.BatchSize < 1:
		return fmt.Errorf("config: batch size must be >= 1, got %d", p.BatchSize)
	case p.MaxConcurrent < 1:
		return fmt.Errorf("config: max concurrent must be >= 1, got %d", p.MaxConcurrent)
	case p.HashChunkSize < 1:
		return fmt.Errorf("config: hash chunk size must be >= 1, got %d", p.HashChunkSize)
	case p.NearDuplicateThreshold < 0:
		return fmt.Errorf("config: threshold must be >= 0, got %d", p.NearDuplicateThreshold)
	case p.NormalizeSize < 8:
		return fmt.Errorf("config: normalize size must be >= 8, got %d", p.NormalizeSize)
	case p.MinImageSize < 1:
		return fmt.Errorf("config: min image size must be >= 1, got %d", p.MinImageSize)
	case p.MaxImageBytes < 1:
		return fmt.Errorf("config: max image bytes must be >= 1, got %d", p.MaxImageBytes)
	case p.MaxImagePixels < 1:
		return fmt.Errorf("config: max image pixels must be >= 1, got %d", p.MaxImagePixels)
	}
	switch p.GraphIndex {
	case "pairwise", "bktree":
	default:
		return fmt.Errorf("config: unknown graph index %q", p.GraphIndex)
	}
	return nil
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
