package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	// 数据库相关指标，未初始化时不记录
	dbQueriesTotal  metric.Int64Counter
	dbQueryDuration metric.Float64Histogram

	// 日志/链路里不应出现的字段值
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(password\s*=\s*)'[^']*'`),
		regexp.MustCompile(`(token\s*=\s*)'[^']*'`),
		regexp.MustCompile(`(secret\s*=\s*)'[^']*'`),
		regexp.MustCompile(`(wallet_signature\s*=\s*)'[^']*'`),
	}
)

// InitDatabaseMetrics 初始化数据库指标
func InitDatabaseMetrics(meter metric.Meter) error {
	var err error

	dbQueriesTotal, err = meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return err
	}

	dbQueryDuration, err = meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer trace.Tracer
	config PluginConfig
}

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName   string
	EnableMetrics bool
	MaxSQLLength  int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:   "skillswap",
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

func NewOTELPlugin(config PluginConfig) *OTELPlugin {
	if config.ServiceName == "" {
		config.ServiceName = "skillswap"
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	return &OTELPlugin{
		tracer: otel.Tracer(config.ServiceName + ".gorm"),
		config: config,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)
}

func (p *OTELPlugin) before(db *gorm.DB) {
	ctx, span := p.tracer.Start(db.Statement.Context, "db."+tableOf(db),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.DBSystemPostgreSQL, attribute.String("db.table", tableOf(db))),
	)

	db.InstanceSet("otel:start_time", time.Now())
	db.InstanceSet("otel:span", span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet("otel:span")
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationOf(db.Statement.SQL.String())
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBStatement(p.statement(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Ok, "record not found")
	default:
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	if !p.config.EnableMetrics {
		return
	}
	var seconds float64
	if start, ok := db.InstanceGet("otel:start_time"); ok {
		if t, ok := start.(time.Time); ok {
			seconds = time.Since(t).Seconds()
		}
	}
	recordQuery(db.Statement.Context, operation, db.Error, seconds)
}

func recordQuery(ctx context.Context, operation string, err error, seconds float64) {
	if dbQueriesTotal == nil || dbQueryDuration == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	dbQueriesTotal.Add(ctx, 1, attrs)
	dbQueryDuration.Record(ctx, seconds, attrs)
}

func tableOf(db *gorm.DB) string {
	if db.Statement.Table == "" {
		return "unknown"
	}
	return db.Statement.Table
}

// operationOf 从 SQL 开头判断操作类型
func operationOf(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return "db." + strings.ToLower(op)
		}
	}
	if sql == "" {
		return "db.unknown"
	}
	return "db.query"
}

// statement 截断并脱敏后的 SQL
func (p *OTELPlugin) statement(sql string) string {
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return SanitizeSQL(sql)
}

// SanitizeSQL 把敏感字段的字面值替换为 ***
func SanitizeSQL(sql string) string {
	for _, re := range sensitivePatterns {
		sql = re.ReplaceAllString(sql, "$1'***'")
	}
	return sql
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	return db.Use(NewOTELPlugin(config))
}

// WithDefaultOTELPlugin 使用默认配置添加 OpenTelemetry 插件
func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	config := DefaultPluginConfig()
	config.ServiceName = serviceName
	return WithOTELPlugin(db, config)
}
