package router

import (
	"github.com/gin-gonic/gin"

	"loadplan/internal/handler"
	"loadplan/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	jobH *handler.JobHandler,
	calcH *handler.CalcHandler,
	healthH *handler.HealthHandler,
	corsOrigins []string,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(corsOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	// Blueprint job routes
	jobs := v1.Group("/jobs")
	jobs.POST("", jobH.Submit)
	jobs.GET("", jobH.List)
	jobs.GET("/:id", jobH.GetByID)
	jobs.GET("/:id/result", jobH.GetResult)
	jobs.GET("/:id/result/export", jobH.ExportResult)

	// Synchronous calculation for small documents
	v1.POST("/calculate", calcH.Calculate)

	return r
}
