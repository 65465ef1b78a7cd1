package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkillSwap/pkg/logger"
	"SkillSwap/storage/redis"
)

const completedPrefix = "onboarding:completed"

// CompletionSignal 跨实例的完成信号：哨兵键 + pub/sub 频道。
// 哨兵键让之后打开的流程也能看到，频道通知已经打开的流程。
type CompletionSignal struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCompletionSignal(client *goredis.Client, ttl time.Duration) *CompletionSignal {
	return &CompletionSignal{client: client, ttl: ttl}
}

func (s *CompletionSignal) Broadcast(ctx context.Context, userID string) error {
	key := redis.Key(completedPrefix, userID)

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, "1", s.ttl)
	pipe.Publish(ctx, key, "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to broadcast completion: %w", err)
	}
	return nil
}

func (s *CompletionSignal) Completed(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, redis.Key(completedPrefix, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read completion signal: %w", err)
	}
	return n > 0, nil
}

// Watch 订阅成功后才返回；ctx 取消时退订并关闭通道
func (s *CompletionSignal) Watch(ctx context.Context, userID string) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, redis.Key(completedPrefix, userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe completion signal: %w", err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				logger.Logger.Warn("Failed to close completion subscription", zap.String("user_id", userID), zap.Error(err))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, nil
}
