package metrics

import (
	"context"
)

// 以下函数在指标未初始化时直接返回

func RecordStepTransition(ctx context.Context, from, to, direction string) {
	if m := GetMetrics(); m != nil {
		m.RecordStepTransition(ctx, from, to, direction)
	}
}

func RecordStepRejected(ctx context.Context, step, field string) {
	if m := GetMetrics(); m != nil {
		m.RecordStepRejected(ctx, step, field)
	}
}

func RecordSubmission(ctx context.Context, outcome string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordSubmission(ctx, outcome, duration)
	}
}

// AddActiveSubmission 增加进行中的提交数，delta 可为负
func AddActiveSubmission(ctx context.Context, delta int64) {
	if m := GetMetrics(); m != nil {
		m.ActiveSubmissions.Add(ctx, delta)
	}
}

func RecordUsernameCheck(ctx context.Context, result string, duration float64) {
	if m := GetMetrics(); m != nil {
		m.RecordUsernameCheck(ctx, result, duration)
	}
}

func RecordEventPublished(ctx context.Context, routingKey, status string) {
	if m := GetMetrics(); m != nil {
		m.RecordEventPublished(ctx, routingKey, status)
	}
}

func RecordBadgeAwarded(ctx context.Context, badge string) {
	if m := GetMetrics(); m != nil {
		m.RecordBadgeAwarded(ctx, badge)
	}
}
