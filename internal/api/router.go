package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/recipe-ingest/internal/api/handler"
	"github.com/timmy/recipe-ingest/internal/api/middleware"
	"github.com/timmy/recipe-ingest/internal/config"
)

// RouterDeps are the collaborators the routes are bound to.
type RouterDeps struct {
	Ingestion handler.Ingestion
	Catalog   handler.CatalogReloader
	Health    *handler.HealthHandler
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps RouterDeps, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	// Multipart bodies beyond this are spooled to disk by net/http.
	r.MaxMultipartMemory = 8 << 20

	health := deps.Health
	if health == nil {
		health = handler.NewHealthHandler(nil)
	}
	ingestion := handler.NewIngestionHandler(deps.Ingestion, deps.Catalog, cfg.MaxUploadBytes)

	r.GET("/health", health.Health)

	v1 := r.Group("/api/v1/ingestion")
	{
		v1.GET("/status", ingestion.Status)
		v1.GET("/stats", ingestion.Stats)

		// Jobs
		v1.GET("/jobs", ingestion.ListJobs)
		v1.GET("/jobs/:id", ingestion.GetJob)
		v1.GET("/jobs/:id/similar", ingestion.SimilarRecipes)
		v1.POST("/jobs/:id/review", ingestion.Review)
		v1.POST("/jobs/:id/reprocess", ingestion.Reprocess)

		v1.POST("/upload", ingestion.Upload)
		v1.POST("/catalog/reload", ingestion.ReloadCatalog)
	}

	return r
}
