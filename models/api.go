package models

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// FingerprintRequest asks for the fingerprint of one image URL.
type FingerprintRequest struct {
	URL string `json:"url" binding:"required"`

	// MaxAge accepts a cached fingerprint younger than this many
	// milliseconds. Zero always recomputes.
	MaxAge int `json:"max_age,omitempty"`
}

// FingerprintResponse is the body of POST /api/v1/fingerprint.
type FingerprintResponse struct {
	Success     bool         `json:"success"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
	CacheStatus string       `json:"cache_status,omitempty"` // "hit" | "miss"
	Error       *ErrorDetail `json:"error,omitempty"`
	TookMs      int64        `json:"took_ms"`
}

// LogoRequest asks for the logo candidate of one domain.
type LogoRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// LogoResponse is the body of POST /api/v1/logo. Fallback is set when no
// strategy matched and URL is the conventional favicon location.
type LogoResponse struct {
	Success  bool   `json:"success"`
	Domain   string `json:"domain"`
	URL      string `json:"url"`
	Strategy string `json:"strategy,omitempty"`
	Fallback bool   `json:"fallback"`
	TookMs   int64  `json:"took_ms"`
}

// ClusterRequest starts an asynchronous clustering job.
type ClusterRequest struct {
	Domains []string `json:"domains" binding:"required"`

	// Threshold overrides the configured near-duplicate threshold.
	Threshold *int `json:"threshold,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Job statuses.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCanceled   = "canceled"
)

// ClusterJobResponse describes a clustering job. Clusters and Stats are
// filled once the job leaves the processing state.
type ClusterJobResponse struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id,omitempty"`
	Status     string       `json:"status"`
	Total      int          `json:"total"`
	Progress   *Progress    `json:"progress,omitempty"`
	Clusters   []Cluster    `json:"clusters,omitempty"`
	Stats      *Stats       `json:"stats,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	CreatedAt  int64        `json:"created_at"`
	FinishedAt int64        `json:"finished_at,omitempty"`
}

// PoolStats mirrors the browser tab pool counters.
type PoolStats struct {
	Size    int `json:"size"`
	Active  int `json:"active"`
	Retired int `json:"retired"`
}

// CacheStats mirrors the fingerprint cache counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"`
	Uptime  string      `json:"uptime"`
	Version string      `json:"version"`
	Jobs    int         `json:"jobs"`
	Cache   *CacheStats `json:"cache,omitempty"`
	Browser *PoolStats  `json:"browser,omitempty"`
}
