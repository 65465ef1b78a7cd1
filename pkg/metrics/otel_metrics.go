package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 引导流程相关指标
	StepTransitionsTotal metric.Int64Counter
	StepRejectionsTotal  metric.Int64Counter
	SubmissionsTotal     metric.Int64Counter
	SubmissionDuration   metric.Float64Histogram
	ActiveSubmissions    metric.Int64UpDownCounter

	// 用户名检查相关指标
	UsernameChecksTotal  metric.Int64Counter
	UsernameCheckLatency metric.Float64Histogram

	// 事件相关指标
	EventsPublishedTotal metric.Int64Counter
	BadgesAwardedTotal   metric.Int64Counter
}

var metrics *OTelMetrics

// InitMetrics 初始化 OpenTelemetry 指标，使用全局 MeterProvider
func InitMetrics() error {
	m, err := New(otel.Meter("skillswap"))
	if err != nil {
		return err
	}
	metrics = m
	return nil
}

// New 基于给定 meter 创建指标集合
func New(meter metric.Meter) (*OTelMetrics, error) {
	var err error
	m := &OTelMetrics{}

	m.StepTransitionsTotal, err = meter.Int64Counter(
		"onboarding_step_transitions_total",
		metric.WithDescription("Total number of onboarding step transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.StepRejectionsTotal, err = meter.Int64Counter(
		"onboarding_step_rejections_total",
		metric.WithDescription("Total number of advance attempts rejected by validation"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	m.SubmissionsTotal, err = meter.Int64Counter(
		"onboarding_submissions_total",
		metric.WithDescription("Total number of onboarding submissions"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	m.SubmissionDuration, err = meter.Float64Histogram(
		"onboarding_submission_duration_seconds",
		metric.WithDescription("Time spent completing onboarding in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSubmissions, err = meter.Int64UpDownCounter(
		"onboarding_active_submissions",
		metric.WithDescription("Number of onboarding submissions in flight"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		return nil, err
	}

	m.UsernameChecksTotal, err = meter.Int64Counter(
		"username_checks_total",
		metric.WithDescription("Total number of username availability checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	m.UsernameCheckLatency, err = meter.Float64Histogram(
		"username_check_duration_seconds",
		metric.WithDescription("Username availability check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsPublishedTotal, err = meter.Int64Counter(
		"onboarding_events_published_total",
		metric.WithDescription("Total number of onboarding events published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	m.BadgesAwardedTotal, err = meter.Int64Counter(
		"badges_awarded_total",
		metric.WithDescription("Total number of badges awarded"),
		metric.WithUnit("{badge}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordStepTransition 记录步骤切换，direction 为 advance、retreat 或 restart
func (m *OTelMetrics) RecordStepTransition(ctx context.Context, from, to, direction string) {
	m.StepTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("direction", direction),
	))
}

// RecordStepRejected 记录校验失败
func (m *OTelMetrics) RecordStepRejected(ctx context.Context, step, field string) {
	m.StepRejectionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("field", field),
	))
}

// RecordSubmission 记录一次提交的结果
func (m *OTelMetrics) RecordSubmission(ctx context.Context, outcome string, duration float64) {
	m.SubmissionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.SubmissionDuration.Record(ctx, duration, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordUsernameCheck 记录用户名检查结果
func (m *OTelMetrics) RecordUsernameCheck(ctx context.Context, result string, duration float64) {
	m.UsernameChecksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.UsernameCheckLatency.Record(ctx, duration, metric.WithAttributes(attribute.String("result", result)))
}

// RecordEventPublished 记录事件发布
func (m *OTelMetrics) RecordEventPublished(ctx context.Context, routingKey, status string) {
	m.EventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("routing_key", routingKey),
		attribute.String("status", status),
	))
}

// RecordBadgeAwarded 记录徽章发放
func (m *OTelMetrics) RecordBadgeAwarded(ctx context.Context, badge string) {
	m.BadgesAwardedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("badge", badge)))
}
