package bootstrap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"SkillSwap/config"
	pkgdb "SkillSwap/pkg/database"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/metrics"
	"SkillSwap/pkg/mq"
	pkgotel "SkillSwap/pkg/otel"
	pkgredis "SkillSwap/pkg/redis"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

// Telemetry 初始化链路与指标导出，并注册存储层和业务指标。
// 返回的 shutdown 负责刷新并关闭导出器。
func Telemetry(ctx context.Context, cfg *config.Config, component string) (func(context.Context) error, error) {
	shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:    cfg.ServiceName + "-" + component,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampler,
	})
	if err != nil {
		return nil, fmt.Errorf("init opentelemetry: %w", err)
	}

	if err := metrics.InitMetrics(); err != nil {
		return shutdown, fmt.Errorf("init business metrics: %w", err)
	}

	meter := otel.Meter(cfg.ServiceName)
	if err := pkgdb.InitDatabaseMetrics(meter); err != nil {
		return shutdown, fmt.Errorf("init database metrics: %w", err)
	}
	if err := pkgredis.InitRedisMetrics(meter); err != nil {
		return shutdown, fmt.Errorf("init redis metrics: %w", err)
	}
	if err := mq.InitMQMetrics(meter); err != nil {
		return shutdown, fmt.Errorf("init mq metrics: %w", err)
	}

	logger.Logger.Info("Telemetry initialized",
		zap.String("component", component),
		zap.Bool("exporting", cfg.OTelEndpoint != ""),
	)
	return shutdown, nil
}
