package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "skillswap:onboarding:session:*", SanitizeKey("skillswap:onboarding:session:idp|42"))
	assert.Equal(t, "*", SanitizeKey("plain"))
}

func TestExtractKeysSkipsValues(t *testing.T) {
	keys := extractKeys([]interface{}{"set", "skillswap:lock:u1", `{"step":1}`, "ex", 30})
	assert.Equal(t, []string{"skillswap:lock:*"}, keys)
}

func TestInstrumentedClientStillWorks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := InstrumentRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", 0)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "skillswap:k:1", "v", 0).Err())
	_, err := client.Get(ctx, "skillswap:missing:1").Result()
	assert.ErrorIs(t, err, redis.Nil)

	pipe := client.Pipeline()
	pipe.Incr(ctx, "skillswap:n:1")
	pipe.Incr(ctx, "skillswap:n:1")
	_, err = pipe.Exec(ctx)
	require.NoError(t, err)
	n, err := mr.Get("skillswap:n:1")
	require.NoError(t, err)
	assert.Equal(t, "2", n /* miniredis stores as string */)
}
