package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"SkillSwap/internal/onboarding"
	"SkillSwap/storage/redis"
)

// SessionStore 把引导会话以 JSON 保存在 Redis，每次写入刷新 TTL
type SessionStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewSessionStore(client *goredis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Load(ctx context.Context, key string) (onboarding.Session, bool, error) {
	data, err := s.client.Get(ctx, redis.Key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return onboarding.Session{}, false, nil
	}
	if err != nil {
		return onboarding.Session{}, false, fmt.Errorf("failed to load session: %w", err)
	}

	var session onboarding.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return onboarding.Session{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, true, nil
}

func (s *SessionStore) Save(ctx context.Context, key string, session onboarding.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redis.Key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redis.Key(key)).Err()
}
