package http

import (
	"github.com/gin-gonic/gin"

	"pdfrag/internal/bootstrap"
	"pdfrag/internal/transport/http/handler"
	"pdfrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	checks := make(map[string]handler.HealthCheck)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Documents)
	queryHandler := handler.NewQueryHandler(app.Search)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	documents := v1.Group("/documents")
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/:id", documentHandler.Show)
	documents.GET("/:id/pages/:page", documentHandler.Page)
	documents.POST("/:id/reprocess", documentHandler.Reprocess)
	documents.DELETE("/:id", documentHandler.Delete)

	query := v1.Group("/query")
	query.POST("/search", queryHandler.Search)
	query.GET("/stats", queryHandler.Stats)

	return router
}
