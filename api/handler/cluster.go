package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/input"
	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/pipeline"
	"github.com/use-agent/logosim/webhook"
)

// clusterJob is one asynchronous pipeline run. resp is guarded by mu.
type clusterJob struct {
	mu      sync.Mutex
	resp    models.ClusterJobResponse
	cancel  context.CancelFunc
	created time.Time
}

func (j *clusterJob) snapshot() models.ClusterJobResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.resp
	if j.resp.Progress != nil {
		p := *j.resp.Progress
		out.Progress = &p
	}
	return out
}

func (j *clusterJob) progress(p models.Progress) {
	j.mu.Lock()
	j.resp.Progress = &p
	j.mu.Unlock()
}

// JobStore holds in-flight and finished cluster jobs. Jobs older than
// ttl are dropped by a background sweep.
type JobStore struct {
	jobs     sync.Map
	ttl      time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

// NewJobStore creates a JobStore and starts its sweep.
func NewJobStore(ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &JobStore{ttl: ttl, stop: make(chan struct{})}
	go s.sweepLoop()
	return s
}

// Len counts stored jobs.
func (s *JobStore) Len() int {
	n := 0
	s.jobs.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Stop ends the sweep and cancels every running job.
func (s *JobStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.jobs.Range(func(_, v any) bool {
			v.(*clusterJob).cancel()
			return true
		})
	})
}

func (s *JobStore) get(id string) (*clusterJob, bool) {
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*clusterJob), true
}

func (s *JobStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now().Add(-s.ttl))
		}
	}
}

func (s *JobStore) sweep(cutoff time.Time) {
	s.jobs.Range(func(k, v any) bool {
		job := v.(*clusterJob)
		if job.created.Before(cutoff) {
			job.cancel()
			s.jobs.Delete(k)
		}
		return true
	})
}

// ClusterService carries what a cluster job needs to run.
type ClusterService struct {
	Config   *config.Config
	Options  []pipeline.RunnerOption
	Notifier *webhook.Notifier
	Jobs     *JobStore
}

// PostCluster returns a handler for POST /api/v1/cluster. It validates
// the request, registers a job and runs the pipeline in the background.
func PostCluster(svc *ClusterService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClusterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		domains := input.Dedupe(req.Domains)
		if len(domains) == 0 {
			badRequest(c, "no valid domains")
			return
		}
		if limit := svc.Config.Server.MaxDomains; limit > 0 && len(domains) > limit {
			badRequest(c, fmt.Sprintf("maximum %d domains per job", limit))
			return
		}

		cfg := *svc.Config
		if req.Threshold != nil {
			cfg.Pipeline.NearDuplicateThreshold = *req.Threshold
		}
		if err := cfg.Pipeline.Validate(); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		job := &clusterJob{
			cancel:  cancel,
			created: time.Now(),
			resp: models.ClusterJobResponse{
				ID:        "cluster-" + uuid.NewString(),
				Status:    models.JobProcessing,
				Total:     len(domains),
				CreatedAt: time.Now().Unix(),
			},
		}
		svc.Jobs.jobs.Store(job.resp.ID, job)

		go runCluster(ctx, svc, &cfg, job, domains, req)

		c.JSON(http.StatusAccepted, job.snapshot())
	}
}

// GetCluster returns a handler for GET /api/v1/cluster/:id.
func GetCluster(jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := jobs.get(c.Param("id"))
		if !ok {
			respondError(c, models.NewPipelineError(models.ErrCodeNotFound, "cluster job not found", nil))
			return
		}
		c.JSON(http.StatusOK, job.snapshot())
	}
}

// CancelCluster returns a handler for DELETE /api/v1/cluster/:id. A
// canceled job keeps whatever the pipeline finished before the cancel.
func CancelCluster(jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := jobs.get(c.Param("id"))
		if !ok {
			respondError(c, models.NewPipelineError(models.ErrCodeNotFound, "cluster job not found", nil))
			return
		}
		job.cancel()
		c.JSON(http.StatusAccepted, job.snapshot())
	}
}

func runCluster(ctx context.Context, svc *ClusterService, cfg *config.Config, job *clusterJob, domains []string, req models.ClusterRequest) {
	defer job.cancel()

	opts := append(append([]pipeline.RunnerOption(nil), svc.Options...), pipeline.WithProgress(pipeline.Chain(pipeline.LogProgress, job.progress)))
	res, err := pipeline.NewRunner(cfg, opts...).Run(ctx, domains)

	job.mu.Lock()
	job.resp.FinishedAt = time.Now().Unix()
	if res != nil {
		stats := res.Stats
		job.resp.RunID = res.RunID
		job.resp.Clusters = res.Clusters
		job.resp.Stats = &stats
	}
	switch {
	case err == nil:
		job.resp.Status = models.JobCompleted
	case errors.Is(err, context.Canceled):
		job.resp.Status = models.JobCanceled
		job.resp.Error = &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "job canceled"}
	default:
		job.resp.Status = models.JobFailed
		job.resp.Error = models.DetailOf(err)
	}
	status := job.resp.Status
	job.mu.Unlock()

	slog.Info("cluster job finished", "id", job.resp.ID, "status", status, "domains", len(domains), "error", err)

	if req.WebhookURL != "" && svc.Notifier != nil {
		event := webhook.EventClusterCompleted
		if status != models.JobCompleted {
			event = webhook.EventClusterFailed
		}
		svc.Notifier.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.NewEvent(event, job.resp.ID, job.snapshot()))
	}
}
