package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gmailbulker/internal/config"
	"gmailbulker/internal/health"
	"gmailbulker/internal/middleware"
	"gmailbulker/internal/monitoring"
	"gmailbulker/internal/relay"
	"gmailbulker/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	Relay        relay.Handler  // 处理中继消息
	Downloads    DownloadReader // 后台下载记录，可为空
	WebSocketHub *websocket.Hub // 为空时不提供 /v1/ws
	Health       *health.HealthChecker
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// NewRouter 创建并返回中继的 Gin 路由实例
func NewRouter(deps RouterDependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.Relay, deps.Downloads, deps.Logger)
	limiter := middleware.NewRateLimiter(deps.Config.RateLimit.RPS, deps.Config.RateLimit.Burst, deps.Logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		results := deps.Health.CheckHealth()
		code := http.StatusOK
		for key, value := range results {
			if key != "timestamp" && value != "OK" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, results)
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", middleware.SystemMetrics(deps.Metrics), gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/messages", limiter.Middleware(), handler.HandleMessage)

		if deps.WebSocketHub != nil {
			v1.GET("/ws", limiter.Middleware(), websocket.HandleWebSocket(deps.WebSocketHub))
		}

		if deps.Downloads != nil {
			downloads := v1.Group("/downloads")
			downloads.GET("", handler.ListDownloads)
			downloads.GET("/:id", handler.GetDownload)
		}
	}

	return router
}
