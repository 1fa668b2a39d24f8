package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pagelift/pagelift/internal/api/handlers"
	"github.com/pagelift/pagelift/internal/api/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health    *handlers.HealthHandler
	Documents *handlers.DocumentHandler
	Export    *handlers.ExportHandler
}

// NewRouter builds the HTTP surface. Everything under /v1 requires a valid
// bearer token.
func NewRouter(h Handlers, jwtSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())

	router.GET("/health", h.Health.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.Authenticate(jwtSecret))
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", h.Documents.Ingest)
			documents.GET("", h.Documents.List)
			documents.GET("/:id", h.Documents.Get)
			documents.GET("/:id/page-image/:page", h.Documents.GetPageImage)
		}

		v1.POST("/export/:format", h.Export.Export)
	}

	return router
}
