package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Sync routes
		v1.POST("/sync/all", handler.SyncAll)
		v1.POST("/sync/terms/:id", handler.SyncTerm)
		v1.POST("/sync/courses/:id", handler.SyncCourse)
		v1.GET("/sync/progress", handler.SyncProgress)
		v1.POST("/sync/cancel", handler.CancelSync)
	}
}
