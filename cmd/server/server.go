package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"SkillSwap/config"
	"SkillSwap/internal/bootstrap"
	"SkillSwap/internal/cache"
	"SkillSwap/internal/handler"
	"SkillSwap/internal/middleware"
	"SkillSwap/internal/queue"
	"SkillSwap/internal/repository"
	"SkillSwap/internal/router"
	"SkillSwap/internal/service"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/snowflake"
	"SkillSwap/pkg/token"
	"SkillSwap/storage"
	"SkillSwap/storage/database"
	"SkillSwap/storage/redis"
)

func main() {
	cfg := config.MustLoad()

	// 日志部分
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry, err := bootstrap.Telemetry(ctx, cfg, "api")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Logger.Warn("Failed to flush telemetry", zap.Error(err))
		}
	}()
	if err := middleware.InitMetrics(otel.Meter(cfg.ServiceName)); err != nil {
		logger.Logger.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	} // token 在中间件前初始化，middleware 依赖 token

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	rdb := redis.Client()
	signalStore := cache.NewCompletionSignal(rdb, cfg.OnboardingSessionTTL)
	users := service.NewUserService(
		repository.NewGormUserRepository(database.DB()),
		service.WithStatusCache(cache.NewUserStatusCache(rdb)),
		service.WithEventPublisher(queue.NewProducer(cfg.RabbitMQExchange)),
		service.WithCompletionSignal(signalStore),
		service.WithMaxUsernameAttempts(cfg.UsernameMaxAttempts),
	)
	wizard := service.NewOnboardingService(users,
		cache.NewSessionStore(rdb, cfg.OnboardingSessionTTL),
		signalStore,
		service.OnboardingConfig{
			DefaultLanguage:      cfg.DefaultLanguage,
			RedirectURL:          cfg.OnboardingRedirectURL,
			UsernameCheckTimeout: cfg.UsernameCheckTimeout,
			EventsTimeout:        cfg.OnboardingEventsWait,
		},
	)

	opts := router.Options{
		Users:                  handler.NewUserHandler(users, cfg.OnboardingRedirectURL),
		Onboarding:             handler.NewOnboardingHandler(wizard),
		RateLimitEnabled:       cfg.RateLimitEnabled,
		RateLimitRPS:           cfg.RateLimitRPS,
		UsernameCheckPerMinute: cfg.UsernameCheckPerMinute,
	}
	if cfg.CSRFEnabled {
		opts.CSRFSecret = cfg.SessionSecret
	}

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
		zap.Bool("csrf", cfg.CSRFEnabled),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	tracerOpt, tracerMW := middleware.NewServerTracerConfig()
	h := server.Default(server.WithHostPorts(addr), tracerOpt)
	h.Use(tracerMW)

	router.Register(h, opts)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
