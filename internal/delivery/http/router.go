package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openuav/buildforge/internal/delivery/http/middleware"
	"github.com/openuav/buildforge/internal/manager"
	"github.com/openuav/buildforge/internal/meta"
)

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(
	mgr *manager.BuildManager,
	source SourceControl,
	cache *meta.Cache,
	versions *meta.VersionCatalog,
	vehicles *meta.VehicleCatalog,
	store Pinger,
	logger *zap.Logger,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(store, logger)
		v1.GET("/health", healthHandler.Health)

		// Catalogs
		metaHandler := NewMetaHandler(cache, versions, vehicles, logger)
		v1.GET("/vehicles", metaHandler.Vehicles)
		v1.GET("/remotes", metaHandler.Remotes)
		v1.GET("/remotes/:name/releases", metaHandler.Releases)
		v1.GET("/boards", metaHandler.Boards)
		v1.GET("/features", metaHandler.Features)

		// Builds
		buildHandler := NewBuildHandler(mgr, source, versions, vehicles, logger)
		v1.POST("/builds", buildHandler.Submit)
		v1.GET("/builds", buildHandler.List)
		v1.GET("/builds/:id", buildHandler.GetByID)
		v1.GET("/builds/:id/log", buildHandler.Log)
		v1.GET("/builds/:id/artifact", buildHandler.Artifact)

		// WebSocket for real-time updates
		wsHandler := NewWebSocketHandler(mgr, logger)
		v1.GET("/builds/:id/stream", wsHandler.Stream)
	}

	return router
}
