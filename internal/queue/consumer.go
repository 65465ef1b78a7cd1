package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/internal/repository"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/metrics"
	"SkillSwap/storage/mq"
)

// BadgeAwarder 发放徽章，已拥有时返回 false
type BadgeAwarder interface {
	AwardBadge(ctx context.Context, subject, badge string, reputation int) (bool, error)
}

// RewardConsumer 消费引导完成事件，为新用户发放新人徽章和初始声望
type RewardConsumer struct {
	awarder    BadgeAwarder
	badge      string
	reputation int
}

func NewRewardConsumer(awarder BadgeAwarder, badge string, reputation int) *RewardConsumer {
	return &RewardConsumer{awarder: awarder, badge: badge, reputation: reputation}
}

// Start 阻塞消费，直到 ctx 取消
func (c *RewardConsumer) Start(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueOnboardingCompleted,
		ConsumerTag:   "onboarding_reward_consumer",
		PrefetchCount: 10,
		Handler:       c.Handle,
	})
}

// Handle 处理一条消息。重复投递直接确认；消息格式错误或用户不存在不重试
func (c *RewardConsumer) Handle(ctx context.Context, d mq.Delivery) error {
	var msg model.OnboardingCompletedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return mq.Permanent(fmt.Errorf("failed to unmarshal onboarding completed message: %w", err))
	}
	if msg.MessageID == "" {
		msg.MessageID = d.MessageID
	}
	if msg.UserID == "" || msg.MessageID == "" {
		return mq.Permanent(errors.New("onboarding completed message missing user_id or message_id"))
	}

	processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
	if err != nil {
		// 标记失败时继续处理，AwardBadge 本身是幂等的
		logger.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	} else if !processed {
		logger.Logger.Info("Message already processed or being processed, skipping",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
		)
		return nil
	}

	awarded, err := c.awarder.AwardBadge(ctx, msg.UserID, c.badge, c.reputation)
	if err != nil {
		if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
			logger.Logger.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(unmarkErr))
		}
		if errors.Is(err, repository.ErrNotFound) {
			return mq.Permanent(fmt.Errorf("user %s not found: %w", msg.UserID, err))
		}
		return fmt.Errorf("failed to award badge: %w", err)
	}

	if awarded {
		metrics.RecordBadgeAwarded(ctx, c.badge)
		logger.Logger.Info("Awarded newcomer badge",
			zap.String("message_id", msg.MessageID),
			zap.String("user_id", msg.UserID),
			zap.String("badge", c.badge),
			zap.Int("reputation", c.reputation),
		)
	}

	if err := cache.MarkMessageProcessed(ctx, msg.MessageID, 48*time.Hour); err != nil {
		logger.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
	}
	return nil
}
