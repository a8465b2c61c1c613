package api

import (
	activityHandlers "saulto/api/handlers/activity"
	metricsHandlers "saulto/api/handlers/metrics"
	scheduleHandlers "saulto/api/handlers/schedule"
	"saulto/internal/auth"
	"saulto/internal/middleware"
	"saulto/internal/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SetupRouter 创建 Gin 路由并注册全部端点
func SetupRouter(container *AppContainer, mode string) *gin.Engine {
	gin.SetMode(mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), RequestLogger(), CORS(), monitor.PrometheusMiddleware())

	// 运维端点（公开）
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	metricsHandler := metricsHandlers.NewHandler(container.QueryService, container.ETLService)
	scheduleHandler := scheduleHandlers.NewHandler(container.EntryStore, container.Coordinator)
	activityHandler := activityHandlers.NewHandler(container.Activity)

	// 写操作限流：ETL 触发和手动同步是重操作，按租户限流
	writeLimiter := middleware.NewRateLimiter(nil)

	// 业务 API（JWT 租户上下文）
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService, container.Tenants))
	{
		metricsGroup := api.Group("/metrics")
		{
			metricsGroup.GET("/series", metricsHandler.GetSeries)
			metricsGroup.GET("/definitions", metricsHandler.ListDefinitions)
			metricsGroup.POST("/etl/run", middleware.RateLimitByTenant(writeLimiter), metricsHandler.RunETL)
			metricsGroup.GET("/etl/status", metricsHandler.GetETLStatus)
		}

		scheduleGroup := api.Group("/schedules")
		{
			scheduleGroup.GET("", scheduleHandler.List)
			scheduleGroup.PUT("/:id/enabled", scheduleHandler.SetEnabled)
			scheduleGroup.POST("/:id/trigger", middleware.RateLimitByTenant(writeLimiter), scheduleHandler.TriggerNow)
		}

		api.GET("/activities", activityHandler.List)
	}

	return router
}
