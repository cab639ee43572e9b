package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragsearch/internal/metrics"
	"github.com/xxxsen/ragsearch/internal/middleware"
)

type RouterDeps struct {
	Search         *SearchHandler
	Session        *SessionHandler
	Ingest         *IngestHandler
	IngestCooldown time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/search/semantic", deps.Search.Semantic)
	api.POST("/search/hybrid", deps.Search.Hybrid)
	api.POST("/search/auto", deps.Search.Auto)

	api.GET("/session", deps.Session.Get)
	api.PUT("/session/preferences", deps.Session.SetPreference)

	api.POST("/ingest", middleware.RateLimit(deps.IngestCooldown), deps.Ingest.Ingest)

	api.GET("/metrics", gin.WrapH(metrics.Handler()))
}
