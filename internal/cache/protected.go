package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"SkillSwap/pkg/logger"
	"SkillSwap/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL，较短时间避免长期占用
	emptyValueTTL = 1 * time.Minute
)

// ProtectedCache 带空值保护和随机延迟的缓存包装器
type ProtectedCache struct {
	client    *goredis.Client
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
	jitterMax time.Duration
}

// NewProtectedCache 创建受保护的缓存实例，jitterMax 为 0 时不加随机延迟
func NewProtectedCache(client *goredis.Client, keyPrefix string, ttl, jitterMax time.Duration) *ProtectedCache {
	return &ProtectedCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
		jitterMax: jitterMax,
	}
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	data := emptyValueFlag
	ttl := pc.emptyTTL

	if value != nil {
		dataBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(dataBytes)
		ttl = pc.ttl
	}

	return pc.client.Set(ctx, redis.Key(pc.keyPrefix, key), data, ttl).Err()
}

// Get 返回 (命中, 是否空值, 错误)
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (bool, bool, error) {
	if err := pc.addJitter(ctx); err != nil {
		logger.Logger.Warn("Failed to add cache jitter",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	data, err := pc.client.Get(ctx, redis.Key(pc.keyPrefix, key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to get cache: %w", err)
	}

	if data == emptyValueFlag {
		return true, true, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, false, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	return pc.client.Del(ctx, redis.Key(pc.keyPrefix, key)).Err()
}

func (pc *ProtectedCache) addJitter(ctx context.Context) error {
	if pc.jitterMax <= 0 {
		return nil
	}
	delay := time.Duration(rand.Int63n(int64(pc.jitterMax)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
