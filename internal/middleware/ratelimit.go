package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkillSwap/pkg/errors"
	"SkillSwap/pkg/logger"
	pkgredis "SkillSwap/pkg/redis"
	"SkillSwap/pkg/response"
	"SkillSwap/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口
	Window time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 是否按用户ID限流（需要认证）
	ByUserID bool
	// 是否按IP限流
	ByIP bool
	// 超过限制后禁止访问的时长，0 表示不额外封禁
	BlockDuration time.Duration
}

// UsernameCheckRateLimitConfig 用户名查重按用户限流，输入防抖之外的服务端保护
func UsernameCheckRateLimitConfig(perMinute int) RateLimitConfig {
	return RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: perMinute,
		KeyPrefix:   "rate:username_check",
		ByUserID:    true,
		ByIP:        true,
	}
}

// GeneralRateLimitConfig 所有认证路由的兜底限流，rps 来自配置
func GeneralRateLimitConfig(rps int) RateLimitConfig {
	return RateLimitConfig{
		Window:        time.Second,
		MaxRequests:   rps,
		KeyPrefix:     "rate:general",
		ByUserID:      true,
		ByIP:          true,
		BlockDuration: time.Minute,
	}
}

// RateLimiter 基于 Redis ZSET 的滑动窗口限流器
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
	}
}

// getKey 生成限流键
func (rl *RateLimiter) getKey(ctx context.Context, c *app.RequestContext) string {
	var identifier string

	if rl.config.ByUserID {
		if userID, exists := GetUserID(ctx, c); exists {
			identifier = "user:" + userID
		}
	}

	if identifier == "" && rl.config.ByIP {
		identifier = "ip:" + c.ClientIP()
	}

	return redis.Key(rl.config.KeyPrefix, identifier)
}

// Allow 检查是否允许请求，返回窗口内（含本次）的请求数
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := time.Now()
	windowStart := now.Add(-rl.config.Window)

	pipe := redis.Client().Pipeline()

	// 先移除窗口之外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(key string) string {
	return redis.Key(rl.config.KeyPrefix+":block", key)
}

func (rl *RateLimiter) Block(ctx context.Context, key string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return redis.Client().Set(ctx, rl.blockKey(key), "1", rl.config.BlockDuration).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	result, err := redis.Client().Exists(ctx, rl.blockKey(key)).Result()
	return result > 0, err
}

// RateLimitMiddleware 创建限流中间件，Redis 不可用时返回 500
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)

	return func(ctx context.Context, c *app.RequestContext) {
		key := limiter.getKey(ctx, c)

		blocked, err := limiter.IsBlocked(ctx, key)
		if err != nil {
			logger.Logger.Error("Failed to check block status", zap.Error(err))
			response.Error(ctx, c, err)
			c.Abort()
			return
		}
		if blocked {
			response.Error(ctx, c, errors.RateLimited)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.Logger.Error("Failed to check rate limit", zap.Error(err))
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(max(config.MaxRequests-count, 0)))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, key); err != nil {
				logger.Logger.Error("Failed to block client", zap.Error(err))
			}
			logger.Logger.Warn("Rate limit exceeded",
				zap.String("key", pkgredis.SanitizeKey(key)),
				zap.Int("count", count),
			)
			response.Error(ctx, c, errors.RateLimited)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
