package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/internal/onboarding"
	"SkillSwap/storage/redis"
)

func newRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redis.SetClient(client)
	return client, mr
}

func TestSessionStoreRoundTrip(t *testing.T) {
	client, mr := newRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "onboarding:session:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	s := onboarding.NewSession()
	s.Step = onboarding.StepAboutYou
	s.Answers.DisplayName = "Ada"
	s.Answers.Username = "ada"
	require.NoError(t, store.Save(ctx, "onboarding:session:u1", s))

	assert.True(t, mr.Exists("skillswap:onboarding:session:u1"))
	assert.Equal(t, time.Hour, mr.TTL("skillswap:onboarding:session:u1"))

	loaded, ok, err := store.Load(ctx, "onboarding:session:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, onboarding.StepAboutYou, loaded.Step)
	assert.Equal(t, "ada", loaded.Answers.Username)

	require.NoError(t, store.Delete(ctx, "onboarding:session:u1"))
	_, ok, err = store.Load(ctx, "onboarding:session:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionStoreCorruptValue(t *testing.T) {
	client, mr := newRedis(t)
	store := NewSessionStore(client, time.Hour)
	require.NoError(t, mr.Set("skillswap:onboarding:session:u1", "{not json"))

	_, _, err := store.Load(context.Background(), "onboarding:session:u1")
	assert.Error(t, err)
}

func TestCompletionSignal(t *testing.T) {
	client, _ := newRedis(t)
	signal := NewCompletionSignal(client, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done, err := signal.Completed(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, done)

	ch, err := signal.Watch(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, signal.Broadcast(ctx, "u1"))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("completion was not delivered to watcher")
	}

	done, err = signal.Completed(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, done)

	other, err := signal.Completed(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, other)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestLockOnlyReleasedByHolder(t *testing.T) {
	_, mr := newRedis(t)
	ctx := context.Background()

	token, ok, err := TryLock(ctx, "onboarding:u1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = TryLock(ctx, "onboarding:u1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Unlock(ctx, "onboarding:u1", "someone-else"))
	assert.True(t, mr.Exists("skillswap:lock:onboarding:u1"))

	require.NoError(t, Unlock(ctx, "onboarding:u1", token))
	assert.False(t, mr.Exists("skillswap:lock:onboarding:u1"))
}

func TestMessageMarks(t *testing.T) {
	_, mr := newRedis(t)
	ctx := context.Background()

	first, err := TryMarkMessageProcessing(ctx, "m1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := TryMarkMessageProcessing(ctx, "m1", time.Hour)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, MarkMessageProcessed(ctx, "m1", 0))
	v, err := mr.Get("skillswap:message:processed:m1")
	require.NoError(t, err)
	assert.Equal(t, "completed", v)
	assert.Equal(t, processedTTL, mr.TTL("skillswap:message:processed:m1"))

	require.NoError(t, UnmarkMessageProcessing(ctx, "m1"))
	retry, err := TryMarkMessageProcessing(ctx, "m1", time.Hour)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 2, time.Minute)
	cb.now = func() time.Time { return now }

	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, func(context.Context) error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.GetState())

	now = now.Add(time.Second)
	_ = cb.Call(ctx, func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, "open", cb.GetStats()["state"])
}

func TestUserStatusCache(t *testing.T) {
	client, _ := newRedis(t)
	c := NewUserStatusCache(client)
	c.breaker = NewCircuitBreaker("test", 5, time.Minute)
	ctx := context.Background()

	_, hit := c.Get(ctx, "u1")
	assert.False(t, hit)

	c.Set(ctx, "u1", onboarding.Status{})
	status, hit := c.Get(ctx, "u1")
	assert.True(t, hit)
	assert.False(t, status.Exists)

	c.Set(ctx, "u2", onboarding.Status{Exists: true, Onboarded: true, User: &onboarding.UserRecord{ID: "u2", Username: "ada"}})
	status, hit = c.Get(ctx, "u2")
	require.True(t, hit)
	assert.True(t, status.Onboarded)
	require.NotNil(t, status.User)
	assert.Equal(t, "ada", status.User.Username)

	c.Invalidate(ctx, "u2")
	_, hit = c.Get(ctx, "u2")
	assert.False(t, hit)
}

func TestUserStatusCacheDegradesWhenRedisDown(t *testing.T) {
	client, mr := newRedis(t)
	c := NewUserStatusCache(client)
	c.breaker = NewCircuitBreaker("test", 5, time.Minute)
	mr.Close()

	_, hit := c.Get(context.Background(), "u1")
	assert.False(t, hit)
}
