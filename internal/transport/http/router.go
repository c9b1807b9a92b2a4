package httptransport

import (
	"net/http"
	"path/filepath"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	altchasvc "mailalias/backend/internal/altcha"
	"mailalias/backend/internal/auth"
	"mailalias/backend/internal/config"
	"mailalias/backend/internal/middleware"
	"mailalias/backend/internal/monitoring"
	"mailalias/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Loader        *config.Loader
	AliasService  *service.AliasService
	AuthService   *auth.Service
	AltchaService *altchasvc.Service
	Prober        MailcowProber
	Metrics       *monitoring.Metrics
	Health        healthcheck.Handler
	RateLimiter   *middleware.IPRateLimiter
	WebDir        string // 静态页面目录
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	// 前端与后端同源部署，CORS 放开只为本地开发方便
	router.Use(gincors.New(gincors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}))

	// 静态页面
	if deps.WebDir != "" {
		router.StaticFile("/", filepath.Join(deps.WebDir, "index.html"))
		router.StaticFile("/login", filepath.Join(deps.WebDir, "login.html"))
	}

	api := router.Group("/api")

	aliasHandler := NewAliasHandler(deps.Loader, deps.AliasService, deps.Prober, deps.Logger)
	api.POST("/create-alias", aliasHandler.CreateAlias)
	api.GET("/status", aliasHandler.Status)
	api.GET("/config", aliasHandler.ClientConfig)

	// 只对认证相关端点限流，别名创建由前端门控
	authGroup := api.Group("")
	if deps.RateLimiter != nil {
		authGroup.Use(deps.RateLimiter.Middleware(deps.Metrics))
	}
	authHandler := NewAuthHandler(deps.Loader, deps.AuthService, deps.AltchaService, deps.Logger)
	authGroup.GET("/altcha/challenge", authHandler.Challenge)
	authGroup.POST("/auth", authHandler.Authenticate)

	// 运维端点不走 API 限流
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "Not found")
	})

	return router
}
