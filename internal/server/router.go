package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/middleware"
)

// NewRouter builds the Gin router for the reference server.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/uploads", h.CreateUpload)
		v1.GET("/jobs/:id", h.GetJob)
		v1.GET("/jobs/:id/diff", h.GetDiff)
		v1.POST("/executions", h.CreateExecution)
		v1.GET("/history/:id", h.GetHistory)
		v1.POST("/cache-refresh", h.CreateCacheRefresh)
		v1.GET("/cache-refresh/task", h.GetCacheTask)
	}

	return router
}
