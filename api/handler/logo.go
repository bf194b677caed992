package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/extractor"
	"github.com/use-agent/logosim/input"
	"github.com/use-agent/logosim/models"
)

// LogoResolver finds the logo candidate of a domain.
type LogoResolver interface {
	Resolve(ctx context.Context, domain string) extractor.Candidate
}

// Logo returns a handler for POST /api/v1/logo. It always answers with a
// URL; Fallback marks the favicon guess.
func Logo(lr LogoResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req models.LogoRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		domain := input.Normalize(req.Domain)
		if domain == "" {
			badRequest(c, "domain is empty")
			return
		}

		cand := lr.Resolve(c.Request.Context(), domain)
		fallback := cand.Strategy == extractor.StrategyFallback
		resp := models.LogoResponse{
			Success:  true,
			Domain:   domain,
			URL:      cand.URL,
			Fallback: fallback,
			TookMs:   time.Since(start).Milliseconds(),
		}
		if !fallback {
			resp.Strategy = cand.Strategy
		}
		c.JSON(http.StatusOK, resp)
	}
}
