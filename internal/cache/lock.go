package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"SkillSwap/storage/redis"
)

// 基于 SETNX 的分布式锁，值为持有者令牌，只有持有者能释放
const lockPrefix = "lock"

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 成功时返回持有者令牌
func TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := redis.Client().SetNX(ctx, redis.Key(lockPrefix, key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock 令牌不匹配（锁已过期被他人获取）时不做任何事
func Unlock(ctx context.Context, key, token string) error {
	return unlockScript.Run(ctx, redis.Client(), []string{redis.Key(lockPrefix, key)}, token).Err()
}
