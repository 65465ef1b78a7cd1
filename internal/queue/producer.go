package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/metrics"
	"SkillSwap/storage/mq"
)

// PublishFunc 底层发布函数，默认是 mq.PublishMessage
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Producer 发布领域事件，MQ 不可用时由熔断器快速失败
type Producer struct {
	exchange string
	publish  PublishFunc
	breaker  *cache.CircuitBreaker
	now      func() time.Time
}

func NewProducer(exchange string) *Producer {
	return &Producer{
		exchange: exchange,
		publish:  mq.PublishMessage,
		breaker:  cache.EventPublishBreaker,
		now:      time.Now,
	}
}

// PublishOnboardingCompleted 发布引导完成事件，MessageID 为空时生成 uuid
func (p *Producer) PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = p.now().UTC().Format(time.RFC3339)
	}

	err := p.breaker.Call(ctx, func(ctx context.Context) error {
		return p.publish(ctx, p.exchange, mq.RoutingKeyOnboardingCompleted, msg.MessageID, msg)
	})
	if err != nil {
		metrics.RecordEventPublished(ctx, mq.RoutingKeyOnboardingCompleted, "error")
		logger.Logger.Error("Failed to publish onboarding completed event",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
		return err
	}

	metrics.RecordEventPublished(ctx, mq.RoutingKeyOnboardingCompleted, "success")
	logger.Logger.Info("Published onboarding completed event",
		zap.String("message_id", msg.MessageID),
		zap.String("user_id", msg.UserID),
	)
	return nil
}
