package api

import (
	"github.com/gin-gonic/gin"

	"news_crawler/internal/metrics"
)

// StaticAssets exposes a local blob directory under URLPath.
type StaticAssets struct {
	URLPath string
	Dir     string
}

// SetupRoutes registers the API. static may be nil when assets live elsewhere.
func SetupRoutes(router *gin.Engine, h *Handler, adminToken string, static *StaticAssets) {
	if static != nil {
		router.Static(static.URLPath, static.Dir)
	}

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/posts", h.ListPosts)
	// gin requires one wildcard name per path segment: :post is the slug
	// for reads and the numeric id for clicks.
	api.GET("/posts/:post", h.GetPost)
	api.PUT("/posts/:post/click", h.RecordClick)
	api.GET("/categories", h.ListCategories)
	api.GET("/categories/:slug/stats", h.CategoryStats)
	api.GET("/stats/overview", h.Overview)

	admin := api.Group("/admin")
	admin.Use(requireToken(adminToken))
	admin.POST("/jobs/:name", h.RunJob)
}
