package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/cache"
	"github.com/use-agent/logosim/engine"
	"github.com/use-agent/logosim/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health. The status degrades
// when more than 80% of the browser tabs are busy. cc and browser may be
// nil.
func Health(startTime time.Time, cc *cache.Cache, browser *engine.RodEngine, jobs *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: Version,
		}
		if jobs != nil {
			resp.Jobs = jobs.Len()
		}
		if cc != nil {
			s := cc.Stats()
			resp.Cache = &models.CacheStats{Entries: s.Entries, Hits: s.Hits, Misses: s.Misses}
		}
		if browser != nil {
			s := browser.Stats()
			resp.Browser = &models.PoolStats{Size: s.Size, Active: s.Active, Retired: s.Retired}
			if s.Size > 0 && s.Active > int(float64(s.Size)*0.8) {
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
