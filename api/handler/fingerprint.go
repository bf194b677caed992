package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/cache"
	"github.com/use-agent/logosim/models"
)

// Fingerprinter computes the fingerprint of an image URL.
type Fingerprinter interface {
	Process(ctx context.Context, url string) (*models.Fingerprint, error)
}

// Fingerprint returns a handler for POST /api/v1/fingerprint.
//
// Flow:
//  1. Parse and validate the request.
//  2. Serve from cache when max_age allows.
//  3. Download, decode, validate and hash the image.
//  4. Store in cache and respond.
func Fingerprint(fp Fingerprinter, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.FingerprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			badRequest(c, "url must be an absolute http(s) URL")
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		key := cache.Key(req.URL)
		maxAge := time.Duration(req.MaxAge) * time.Millisecond
		if cc != nil {
			if cached, hit := cc.Get(key, maxAge); hit {
				c.JSON(http.StatusOK, models.FingerprintResponse{
					Success:     true,
					Fingerprint: cached,
					CacheStatus: "hit",
					TookMs:      time.Since(start).Milliseconds(),
				})
				return
			}
		}

		// ── 3. Fingerprint ──────────────────────────────────────────
		rec, err := fp.Process(c.Request.Context(), req.URL)
		if err != nil {
			detail := models.DetailOf(err)
			c.JSON(statusFor(detail.Code), models.FingerprintResponse{
				Success: false,
				Error:   detail,
				TookMs:  time.Since(start).Milliseconds(),
			})
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		resp := models.FingerprintResponse{Success: true, Fingerprint: rec}
		if cc != nil {
			cc.Set(key, rec)
			resp.CacheStatus = "miss"
		}
		resp.TookMs = time.Since(start).Milliseconds()
		c.JSON(http.StatusOK, resp)
	}
}
