// Package main 是应用程序入口
package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/dumeirei/barbershop-backend/docs"
	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/jwt"
	"github.com/dumeirei/barbershop-backend/internal/common/metrics"
	"github.com/dumeirei/barbershop-backend/internal/common/response"
	"github.com/dumeirei/barbershop-backend/internal/middleware"
)

// setupRouter 设置路由
func setupRouter(
	r *gin.Engine,
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	redisClient *redis.Client,
	m *metrics.Metrics,
	a *app,
) {
	jwtManager := jwt.NewManager(&jwt.Config{
		Secret:           cfg.JWT.Secret,
		AccessExpireTime: cfg.JWT.AccessTokenDuration(),
		Issuer:           cfg.JWT.Issuer,
	})

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RealIP())
	r.Use(middleware.RequestSizeLimiter(maxRequestBodyBytes))
	r.Use(middleware.CORS(&cfg.CORS))
	r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	r.Use(middleware.AccessLog(logger))
	r.Use(m.Middleware())
	if cfg.RateLimit.Enabled {
		r.Use(middleware.IPRateLimit(redisClient, cfg.RateLimit.Limit, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second))
	}

	// 健康检查（不需要认证）
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(db, redisClient))

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, m.Handler())
	}

	// Swagger 文档
	if !cfg.IsRelease() {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// 所有业务接口都需要登录，门店归属与管理员权限在服务层校验
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(jwtManager))
	if cfg.RateLimit.Enabled {
		v1.Use(costlyRateLimit(middleware.UserRateLimit(redisClient, costlyRequestLimit, time.Minute)))
	}
	{
		a.financialH.RegisterRoutes(v1)
		a.campaignH.RegisterRoutes(v1)
		a.notificationH.RegisterRoutes(v1)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
}

// maxRequestBodyBytes 请求体上限
const maxRequestBodyBytes = 1 << 20

// costlyRequestLimit 每分钟每用户触发打款或群发的上限
const costlyRequestLimit = 10

// costlyRoutes 会调用外部支付的接口
var costlyRoutes = map[string]bool{
	"POST /api/v1/shops/:shop_id/payouts": true,
	"POST /api/v1/campaigns/send":         true,
}

// costlyRateLimit 只对打款与群发接口按用户额外限流
func costlyRateLimit(limiter gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if costlyRoutes[c.Request.Method+" "+c.FullPath()] {
			limiter(c)
			return
		}
		c.Next()
	}
}
