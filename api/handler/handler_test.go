package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/cache"
	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/extractor"
	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/phash"
	"github.com/use-agent/logosim/pipeline"
)

func init() { gin.SetMode(gin.TestMode) }

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type stubFingerprinter struct {
	calls atomic.Int32
	err   error
}

func (s *stubFingerprinter) Process(_ context.Context, url string) (*models.Fingerprint, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Fingerprint{URL: url, Hashes: phash.Set{Primary: phash.FromUint64(42)}, Width: 64, Height: 64, Format: "png"}, nil
}

func TestFingerprint(t *testing.T) {
	fp := &stubFingerprinter{}
	cc := cache.New(10, time.Hour)
	defer cc.Stop()

	r := gin.New()
	r.POST("/fingerprint", Fingerprint(fp, cc))

	req := models.FingerprintRequest{URL: "https://acme.com/logo.png", MaxAge: 60_000}
	w := do(t, r, http.MethodPost, "/fingerprint", req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp models.FingerprintResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || resp.CacheStatus != "miss" || resp.Fingerprint.Hashes.Primary.String() != "000000000000002a" {
		t.Errorf("first response = %+v", resp)
	}

	w = do(t, r, http.MethodPost, "/fingerprint", req)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.CacheStatus != "hit" {
		t.Errorf("second CacheStatus = %q, want hit", resp.CacheStatus)
	}
	if fp.calls.Load() != 1 {
		t.Errorf("Process calls = %d, want 1", fp.calls.Load())
	}

	req.MaxAge = 0
	do(t, r, http.MethodPost, "/fingerprint", req)
	if fp.calls.Load() != 2 {
		t.Errorf("max_age 0 should bypass cache; calls = %d", fp.calls.Load())
	}
}

func TestFingerprint_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		err      error
		wantCode int
		wantErr  string
	}{
		{"missing url", map[string]string{}, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"relative url", models.FingerprintRequest{URL: "/logo.png"}, nil, http.StatusBadRequest, models.ErrCodeInvalidInput},
		{"decode failure", models.FingerprintRequest{URL: "https://a.com/x.svg"},
			models.NewPipelineError(models.ErrCodeDecode, "cannot decode image", nil), http.StatusUnprocessableEntity, models.ErrCodeDecode},
		{"network failure", models.FingerprintRequest{URL: "https://a.com/x.png"},
			models.NewPipelineError(models.ErrCodeNetwork, "download failed", nil), http.StatusBadGateway, models.ErrCodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/fingerprint", Fingerprint(&stubFingerprinter{err: tt.err}, nil))

			w := do(t, r, http.MethodPost, "/fingerprint", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp models.ErrorResponse
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", resp.Error, tt.wantErr)
			}
		})
	}
}

type stubResolver map[string]extractor.Candidate

func (s stubResolver) Resolve(_ context.Context, domain string) extractor.Candidate {
	if c, ok := s[domain]; ok {
		return c
	}
	return extractor.Candidate{URL: "https://" + domain + "/favicon.ico", Strategy: extractor.StrategyFallback}
}

func TestLogo(t *testing.T) {
	r := gin.New()
	r.POST("/logo", Logo(stubResolver{
		"acme.com": {URL: "https://acme.com/logo.svg", Strategy: "link-icon"},
	}))

	tests := []struct {
		domain       string
		wantURL      string
		wantStrategy string
		wantFallback bool
	}{
		{"https://ACME.com/about", "https://acme.com/logo.svg", "link-icon", false},
		{"nothing.io", "https://nothing.io/favicon.ico", "", true},
	}
	for _, tt := range tests {
		w := do(t, r, http.MethodPost, "/logo", models.LogoRequest{Domain: tt.domain})
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.domain, w.Code)
		}
		var resp models.LogoResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.URL != tt.wantURL || resp.Strategy != tt.wantStrategy || resp.Fallback != tt.wantFallback {
			t.Errorf("%s: response = %+v", tt.domain, resp)
		}
	}

	if w := do(t, r, http.MethodPost, "/logo", models.LogoRequest{Domain: "  /  "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank domain status = %d, want 400", w.Code)
	}
}

func clusterRouter(t *testing.T, opts ...pipeline.RunnerOption) (*gin.Engine, *JobStore) {
	t.Helper()
	pc := config.DefaultPipeline()
	pc.BatchPause = 0
	pc.Timeout = time.Second
	cfg := &config.Config{
		Server:   config.ServerConfig{MaxDomains: 3},
		Pipeline: pc,
		Extract:  config.DefaultExtract(),
	}
	jobs := NewJobStore(time.Hour)
	t.Cleanup(jobs.Stop)

	svc := &ClusterService{Config: cfg, Options: opts, Jobs: jobs}
	r := gin.New()
	r.POST("/cluster", PostCluster(svc))
	r.GET("/cluster/:id", GetCluster(jobs))
	r.DELETE("/cluster/:id", CancelCluster(jobs))
	return r, jobs
}

func waitJob(t *testing.T, r http.Handler, id string) models.ClusterJobResponse {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		w := do(t, r, http.MethodGet, "/cluster/"+id, nil)
		var resp models.ClusterJobResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Status != models.JobProcessing {
			return resp
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return models.ClusterJobResponse{}
}

func TestCluster_Validation(t *testing.T) {
	r, _ := clusterRouter(t)
	neg := -1
	tests := []struct {
		name string
		body any
	}{
		{"no domains field", map[string]any{}},
		{"blank domains", models.ClusterRequest{Domains: []string{" ", ""}}},
		{"too many domains", models.ClusterRequest{Domains: []string{"a.com", "b.com", "c.com", "d.com"}}},
		{"negative threshold", models.ClusterRequest{Domains: []string{"a.com"}, Threshold: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, http.MethodPost, "/cluster", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", w.Code, w.Body)
			}
		})
	}

	if w := do(t, r, http.MethodGet, "/cluster/unknown", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", w.Code)
	}
}

func TestCluster_RunsJob(t *testing.T) {
	// Every domain resolves to a page without logos, so each gets the
	// favicon fallback, which 404s: the job completes with no clusters.
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r, jobs := clusterRouter(t, pipeline.WithExtractorOptions(
		extractor.WithBaseURL(func(d string) string { return srv.URL + "/" + d }),
	))

	w := do(t, r, http.MethodPost, "/cluster", models.ClusterRequest{Domains: []string{"a.com", "A.com", "b.com"}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var created models.ClusterJobResponse
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.Total != 2 || created.Status != models.JobProcessing {
		t.Errorf("created = %+v, want 2 deduplicated domains", created)
	}
	if jobs.Len() != 1 {
		t.Errorf("jobs = %d, want 1", jobs.Len())
	}

	done := waitJob(t, r, created.ID)
	if done.Status != models.JobCompleted {
		t.Fatalf("status = %s, error = %+v", done.Status, done.Error)
	}
	if done.Stats == nil || done.Stats.TotalDomains != 2 || done.Stats.LogosExtracted != 2 || done.Stats.LogosProcessed != 0 {
		t.Errorf("stats = %+v", done.Stats)
	}
	if len(done.Clusters) != 0 || done.RunID == "" {
		t.Errorf("done = %+v", done)
	}
}

func TestCluster_Cancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	defer close(release)

	r, _ := clusterRouter(t, pipeline.WithExtractorOptions(
		extractor.WithBaseURL(func(d string) string { return fmt.Sprintf("%s/%s", srv.URL, d) }),
	))

	w := do(t, r, http.MethodPost, "/cluster", models.ClusterRequest{Domains: []string{"slow.com"}})
	var created models.ClusterJobResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	if w := do(t, r, http.MethodDelete, "/cluster/"+created.ID, nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", w.Code)
	}
	if done := waitJob(t, r, created.ID); done.Status != models.JobCanceled {
		t.Errorf("status = %s, want canceled", done.Status)
	}
}

func TestHealth(t *testing.T) {
	cc := cache.New(10, time.Hour)
	defer cc.Stop()
	cc.Set("k", &models.Fingerprint{})

	r := gin.New()
	r.GET("/health", Health(time.Now(), cc, nil, nil))

	w := do(t, r, http.MethodGet, "/health", nil)
	var resp models.HealthResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "healthy" || resp.Version != Version || resp.Cache == nil || resp.Cache.Entries != 1 {
		t.Errorf("health = %+v", resp)
	}
	if resp.Browser != nil {
		t.Error("browser stats reported without a browser")
	}
}
