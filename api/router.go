// Package api exposes the pipeline over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/api/handler"
	"github.com/use-agent/logosim/api/middleware"
	"github.com/use-agent/logosim/cache"
	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/engine"
)

// Deps are the services the routes are built on. Cache and Browser may
// be nil.
type Deps struct {
	Config        *config.Config
	Fingerprinter handler.Fingerprinter
	Logos         handler.LogoResolver
	Cluster       *handler.ClusterService
	Cache         *cache.Cache
	Browser       *engine.RodEngine
	StartTime     time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.StartTime, d.Cache, d.Browser, d.Cluster.Jobs))

	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(d.Config.RateLimit))

	protected.POST("/fingerprint", handler.Fingerprint(d.Fingerprinter, d.Cache))
	protected.POST("/logo", handler.Logo(d.Logos))

	protected.POST("/cluster", handler.PostCluster(d.Cluster))
	protected.GET("/cluster/:id", handler.GetCluster(d.Cluster.Jobs))
	protected.DELETE("/cluster/:id", handler.CancelCluster(d.Cluster.Jobs))

	return r
}
