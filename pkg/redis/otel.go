package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// Redis 相关指标，未初始化时不记录
	redisCommandsTotal   metric.Int64Counter
	redisCommandDuration metric.Float64Histogram
)

// InitRedisMetrics 初始化 Redis 指标
func InitRedisMetrics(meter metric.Meter) error {
	var err error

	redisCommandsTotal, err = meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return err
	}

	redisCommandDuration, err = meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	return err
}

// TracingHook Redis 追踪 Hook。只记录命令名和脱敏后的键，不记录值（会话 JSON 含用户资料）
type TracingHook struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue
}

func NewTracingHook(serviceName string, db int) *TracingHook {
	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case errors.Is(err, redis.Nil):
			status = "not_found"
			span.SetStatus(codes.Ok, "key not found")
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Ok, "")
		}

		record(ctx, cmd.Name(), status, time.Since(start).Seconds())
		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		start := time.Now()
		err := next(ctx, cmds)

		status := "success"
		if err != nil && !errors.Is(err, redis.Nil) {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		record(ctx, "pipeline", status, time.Since(start).Seconds())
		return err
	}
}

func record(ctx context.Context, command, status string, seconds float64) {
	if redisCommandsTotal == nil || redisCommandDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("redis.status", status),
	)
	redisCommandsTotal.Add(ctx, 1, attrs)
	redisCommandDuration.Record(ctx, seconds, attrs)
}

// extractKeys 取命令的前几个参数作为键名，最多 5 个
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	keys := make([]string, 0, 5)
	for i := 1; i < len(args) && len(keys) < 5; i++ {
		if key, ok := args[i].(string); ok && strings.Contains(key, ":") {
			keys = append(keys, SanitizeKey(key))
		}
	}
	return keys
}

// SanitizeKey 把键的最后一段（通常是用户标识）替换为 *
func SanitizeKey(key string) string {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return "*"
	}
	key = key[:i] + ":*"
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}

// InstrumentRedisClient 为 Redis 客户端添加 OpenTelemetry 支持
func InstrumentRedisClient(client *redis.Client, serviceName string, db int) *redis.Client {
	client.AddHook(NewTracingHook(serviceName, db))
	return client
}
