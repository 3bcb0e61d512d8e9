package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/contextbrain/internal/handlers"
	"github.com/yungbote/contextbrain/internal/middleware"
)

type RouterConfig struct {
	BrainHandler    *handlers.BrainHandler
	SearchHandler   *handlers.SearchHandler
	MemoryHandler   *handlers.MemoryHandler
	TokenMiddleware *middleware.TokenMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("contextbrain"))
	router.Use(middleware.RequestTrace())

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/api")
	protected.Use(cfg.TokenMiddleware.RequireToken())
	// Knowledge
	protected.POST("/ingest", cfg.BrainHandler.IngestDocument)
	protected.GET("/taxonomy", cfg.BrainHandler.GetTaxonomy)
	protected.POST("/taxonomy/sync", cfg.BrainHandler.SyncTaxonomy)
	protected.POST("/graph/sync", cfg.BrainHandler.SyncGraph)
	protected.POST("/resolve", cfg.BrainHandler.ResolveEntity)
	// Search
	protected.POST("/search", cfg.SearchHandler.Search)
	protected.POST("/search/stream", cfg.SearchHandler.SearchStream)
	protected.POST("/graph-search", cfg.SearchHandler.GraphSearch)
	// Memory
	protected.POST("/episodes", cfg.MemoryHandler.AddEpisode)
	protected.GET("/episodes", cfg.MemoryHandler.GetRecentEpisodes)
	protected.POST("/facts", cfg.MemoryHandler.UpsertFact)
	protected.GET("/facts", cfg.MemoryHandler.GetUserFacts)
	protected.POST("/retention/cleanup", cfg.MemoryHandler.RetentionCleanup)

	return router
}
