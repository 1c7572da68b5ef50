package router

import (
	"fmt"
	"strings"

	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/config"
	adminhandlers "github.com/syncbridge/internal/http/handlers/admin"
	webhookhandlers "github.com/syncbridge/internal/http/handlers/webhook"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	webhookHandler := webhookhandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sb"
	}
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: cfg.Security.WebhookRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.WebhookRateLimit.MaxRequests,
	}
	redisClient := cache.Client()

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 商城 Webhook 接入（按渠道限流）
		webhooks := apiV1.Group("/webhooks/:channel")
		webhooks.Use(RateLimitMiddleware(redisClient, webhookRule, KeyByChannel))
		{
			webhooks.POST("/orders", webhookHandler.IngestOrder)
			webhooks.POST("/returns", webhookHandler.IngestReturn)
			webhooks.POST("/products", webhookHandler.IngestProduct)
		}

		// 运维后台接口
		admin := apiV1.Group("/admin")
		admin.Use(AdminTokenMiddleware(cfg.Admin.Token))
		{
			admin.GET("/orders", adminHandler.ListOrders)
			admin.GET("/orders/:id", adminHandler.GetOrder)
			admin.POST("/orders/:id/release", adminHandler.ReleaseOrderHold)
			admin.POST("/orders/:id/cancel", adminHandler.CancelOrder)
			admin.GET("/mismatches", adminHandler.ListMismatches)
			admin.POST("/mismatches/:id/resolve", adminHandler.ResolveMismatch)
			admin.GET("/job-failures", adminHandler.ListJobFailures)
			admin.POST("/job-failures/:id/requeue", adminHandler.RequeueJobFailure)
			admin.GET("/sync-logs", adminHandler.ListSyncLogs)
			admin.POST("/products/import", adminHandler.ImportProducts)
			admin.POST("/orders/import", adminHandler.ImportOrders)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
