package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/internal/repository"
	"SkillSwap/storage/mq"
	"SkillSwap/storage/redis"
)

func useMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.SetClient(client)
	return mr
}

func delivery(t *testing.T, msg model.OnboardingCompletedMessage) mq.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return mq.Delivery{MessageID: msg.MessageID, RoutingKey: mq.RoutingKeyOnboardingCompleted, Body: body}
}

func TestProducerFillsIdentifiers(t *testing.T) {
	var (
		gotKey  string
		gotID   string
		gotBody model.OnboardingCompletedMessage
	)
	p := NewProducer("skillswap.events")
	p.breaker = cache.NewCircuitBreaker("test", 3, time.Minute)
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	p.publish = func(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
		assert.Equal(t, "skillswap.events", exchange)
		gotKey, gotID = routingKey, messageID
		gotBody = body.(model.OnboardingCompletedMessage)
		return nil
	}

	require.NoError(t, p.PublishOnboardingCompleted(context.Background(), model.OnboardingCompletedMessage{UserID: "u1"}))

	assert.Equal(t, mq.RoutingKeyOnboardingCompleted, gotKey)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, gotBody.MessageID)
	assert.Equal(t, "2026-01-02T03:04:05Z", gotBody.OccurredAt)
}

func TestProducerOpensBreaker(t *testing.T) {
	calls := 0
	p := NewProducer("skillswap.events")
	p.breaker = cache.NewCircuitBreaker("test", 2, time.Minute)
	p.publish = func(context.Context, string, string, string, interface{}) error {
		calls++
		return errors.New("broker down")
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.Error(t, p.PublishOnboardingCompleted(ctx, model.OnboardingCompletedMessage{UserID: "u1"}))
	}
	assert.Equal(t, 2, calls)
}

func TestRewardConsumerAwardsOnce(t *testing.T) {
	useMiniredis(t)
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	require.NoError(t, repo.Create(ctx, &model.User{Subject: "u1", PublicID: "p1"}))

	c := NewRewardConsumer(repo, "newcomer", 10)
	d := delivery(t, model.OnboardingCompletedMessage{MessageID: "m1", UserID: "u1"})

	require.NoError(t, c.Handle(ctx, d))
	require.NoError(t, c.Handle(ctx, d))

	// 新消息 ID 的重复事件同样不会重复发放
	require.NoError(t, c.Handle(ctx, delivery(t, model.OnboardingCompletedMessage{MessageID: "m2", UserID: "u1"})))

	u, err := repo.FindBySubject(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"newcomer"}, u.Badges)
	assert.Equal(t, 10, u.Reputation)
}

func TestRewardConsumerPermanentFailures(t *testing.T) {
	useMiniredis(t)
	ctx := context.Background()
	c := NewRewardConsumer(repository.NewMemoryUserRepository(), "newcomer", 10)

	err := c.Handle(ctx, mq.Delivery{MessageID: "m1", Body: []byte("{")})
	assert.ErrorIs(t, err, mq.ErrPermanent)

	err = c.Handle(ctx, delivery(t, model.OnboardingCompletedMessage{MessageID: "m2", UserID: "ghost"}))
	assert.ErrorIs(t, err, mq.ErrPermanent)
}

type flakyAwarder struct{ err error }

func (f flakyAwarder) AwardBadge(context.Context, string, string, int) (bool, error) {
	return false, f.err
}

func TestRewardConsumerTransientFailureAllowsRetry(t *testing.T) {
	mr := useMiniredis(t)
	ctx := context.Background()
	c := NewRewardConsumer(flakyAwarder{err: errors.New("db down")}, "newcomer", 10)

	err := c.Handle(ctx, delivery(t, model.OnboardingCompletedMessage{MessageID: "m1", UserID: "u1"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, mq.ErrPermanent)
	assert.False(t, mr.Exists("skillswap:message:processed:m1"))
}
