package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/uicheck/api/handler"
	"github.com/use-agent/uicheck/api/middleware"
	"github.com/use-agent/uicheck/cache"
	"github.com/use-agent/uicheck/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(m *handler.RunManager, store *cache.Store, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(m, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/validate", handler.Validate(cfg.Harness))
	protected.POST("/runs", handler.PostRun(m))
	protected.GET("/runs/:id", handler.GetRun(store))

	return r
}
