package cache

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkillSwap/internal/onboarding"
	"SkillSwap/pkg/logger"
)

const (
	userStatusPrefix = "user:status"
	userStatusTTL    = 5 * time.Minute
)

// UserStatusCache 缓存 /users/me/status 的结果，未注册的用户以空值缓存。
// 缓存读写失败只降级到数据库，不影响请求。
type UserStatusCache struct {
	cache   *ProtectedCache
	breaker *CircuitBreaker
}

func NewUserStatusCache(client *goredis.Client) *UserStatusCache {
	return &UserStatusCache{
		cache:   NewProtectedCache(client, userStatusPrefix, userStatusTTL, 20*time.Millisecond),
		breaker: RedisBreaker,
	}
}

// Get 命中返回 (status, true)；未注册用户命中空值时 status.Exists 为 false
func (c *UserStatusCache) Get(ctx context.Context, userID string) (onboarding.Status, bool) {
	var (
		status     onboarding.Status
		hit, empty bool
	)
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		hit, empty, err = c.cache.Get(ctx, userID, &status)
		return err
	})
	if err != nil {
		logger.Logger.Warn("User status cache read failed", zap.String("user_id", userID), zap.Error(err))
		return onboarding.Status{}, false
	}
	if !hit {
		return onboarding.Status{}, false
	}
	if empty {
		return onboarding.Status{}, true
	}
	return status, true
}

func (c *UserStatusCache) Set(ctx context.Context, userID string, status onboarding.Status) {
	var value interface{}
	if status.Exists {
		value = status
	}
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, userID, value)
	})
	if err != nil {
		logger.Logger.Warn("User status cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Invalidate 用户记录变化后调用
func (c *UserStatusCache) Invalidate(ctx context.Context, userID string) {
	if err := c.cache.Delete(ctx, userID); err != nil {
		logger.Logger.Warn("User status cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
