package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visualmatch/console/config"
	"github.com/visualmatch/console/internal/infrastructure/metrics"
)

// maxMultipartMemory bounds the in-memory part of upload forms
const maxMultipartMemory = 32 << 20

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger, m *metrics.Metrics) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware(m))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/previews/:id", handler.GetPreview)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/session", handler.GetSession)
		v1.POST("/session/refresh", handler.RefreshSession)
		v1.GET("/view/results", handler.GetResultsView)

		filters := v1.Group("/filters")
		{
			filters.PUT("", handler.SyncFilters)
			filters.DELETE("", handler.ClearFilters)
			filters.POST("/actions", handler.ApplyFilterAction)
			filters.GET("/suggest", handler.SuggestFilters)
		}

		v1.POST("/uploads", handler.Upload)
		v1.POST("/clipboard", handler.Paste)

		search := v1.Group("/search")
		{
			search.DELETE("", handler.CancelSearch)
			search.POST("/text", handler.SearchText)
			search.POST("/image", handler.SearchImage)
		}

		v1.GET("/catalog", handler.ListCatalog)

		products := v1.Group("/products")
		{
			products.GET("/:id", handler.GetProduct)
			products.POST("/:id/similar", handler.FindSimilar)
			products.POST("/:id/favorite", handler.SaveFavorite)
		}

		v1.POST("/selection/:id", handler.Select)
		v1.DELETE("/selection", handler.ClearSelection)
		v1.POST("/keys/:key", handler.HandleKey)
		v1.DELETE("/toasts/:id", handler.DismissToast)
		v1.POST("/precompute", handler.Precompute)

		theme := v1.Group("/theme")
		{
			theme.GET("", handler.GetTheme)
			theme.PUT("", handler.SetTheme)
			theme.POST("/toggle", handler.ToggleTheme)
			theme.POST("/system", handler.SetSystemTheme)
		}
	}

	return router
}
