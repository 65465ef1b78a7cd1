package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"SkillSwap/config"
	"SkillSwap/internal/bootstrap"
	"SkillSwap/internal/queue"
	"SkillSwap/internal/repository"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/snowflake"
	"SkillSwap/storage"
	"SkillSwap/storage/database"
)

func main() {
	cfg := config.MustLoad()

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

	shutdownTelemetry, err := bootstrap.Telemetry(ctx, cfg, "worker")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Logger.Warn("Failed to flush telemetry", zap.Error(err))
		}
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	consumer := queue.NewRewardConsumer(
		repository.NewGormUserRepository(database.DB()),
		cfg.NewcomerBadge,
		cfg.NewcomerReputation,
	)

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)

	// 每个消费者独占一个 channel，任一退出都会取消其余消费者
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		worker := strconv.Itoa(i)
		g.Go(func() error {
			err := consumer.Start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Logger.Error("Reward consumer stopped",
					zap.String("worker", worker),
					zap.Error(err),
				)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Logger.Error("Worker exited with error", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
