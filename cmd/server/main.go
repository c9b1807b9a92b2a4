package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mailalias/backend/internal/altcha"
	"mailalias/backend/internal/auth"
	"mailalias/backend/internal/config"
	"mailalias/backend/internal/health"
	"mailalias/backend/internal/logger"
	"mailalias/backend/internal/mailcow"
	"mailalias/backend/internal/middleware"
	"mailalias/backend/internal/monitoring"
	"mailalias/backend/internal/service"
	"mailalias/backend/internal/storage/activitylog"
	httptransport "mailalias/backend/internal/transport/http"
)

const defaultPort = 8080

// envOr 读取环境变量，为空时取默认值
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// main 启动别名网关 HTTP 服务。
func main() {
	// .env 是可选的，仅为本地开发方便
	_ = godotenv.Load()

	development := os.Getenv("MAILALIAS_DEV") == "1"
	if development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var log *zap.Logger
	if development {
		devLog, err := logger.New(logger.Config{Level: "debug", Development: true})
		if err != nil {
			panic(fmt.Sprintf("failed to initialize logger: %v", err))
		}
		log = devLog
	} else {
		log = logger.NewProduction(envOr("MAILALIAS_LOG_FILE", "logs/server.log"))
	}
	defer log.Sync()

	configPath := envOr("MAILALIAS_CONFIG", "config.json")
	loader := config.NewLoader(configPath, log)

	// 启动时校验一次配置。之后每个请求重新读取，
	// 所以这里的失败只拦截明显配错的部署
	cfg, err := loader.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingFile) {
			log.Fatal("configuration file not found, a sample has been written next to it",
				zap.String("path", configPath),
				zap.String("sample", config.SampleFileName),
			)
		}
		log.Fatal("invalid configuration", zap.String("path", configPath), zap.Error(err))
	}

	log.Info("starting mail alias gateway",
		zap.String("config", configPath),
		zap.Strings("domains", cfg.Domains),
		zap.String("default_domain", cfg.DefaultDomain),
		zap.Bool("altcha_enabled", cfg.AltchaEnabled),
		zap.Bool("multi_user", cfg.MultiUser()),
	)

	metrics := monitoring.NewMetrics()
	mailcowClient := mailcow.NewClient(log, metrics)

	var recorder service.ActivityRecorder
	activityPath := envOr("MAILALIAS_ACTIVITY_LOG", "logs/alias_log.json")
	if store, err := activitylog.NewStore(activityPath); err != nil {
		// 活动日志不可用不阻止启动，创建别名仍然可用
		log.Warn("activity log unavailable", zap.String("path", activityPath), zap.Error(err))
	} else {
		recorder = store
	}

	aliasService := service.NewAliasService(mailcowClient, recorder, log, metrics)
	altchaService := altcha.NewService(log, metrics)
	authService := auth.NewService(altchaService, log, metrics)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Loader:        loader,
		AliasService:  aliasService,
		AuthService:   authService,
		AltchaService: altchaService,
		Prober:        mailcowClient,
		Metrics:       metrics,
		Health:        health.NewHandler(loader, mailcowClient),
		RateLimiter:   middleware.NewIPRateLimiter(rate.Limit(10), 20),
		WebDir:        envOr("MAILALIAS_WEB_DIR", "web"),
		Logger:        log,
	})

	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatal("server terminated", zap.Error(err))
	}
	log.Info("server stopped")
}
