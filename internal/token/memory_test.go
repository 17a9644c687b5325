package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore()
	s.now = clock.Now
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "blacklist:a", "1", time.Minute))

	val, ok, err := s.Get(ctx, "blacklist:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	ttl, err := s.TTL(ctx, "blacklist:a")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	clock.Advance(time.Minute + time.Second)

	_, ok, err = s.Get(ctx, "blacklist:a")
	require.NoError(t, err)
	assert.False(t, ok, "expired entries must disappear")

	ttl, err = s.TTL(ctx, "blacklist:a")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestMemoryStoreRejectsNonPositiveTTL(t *testing.T) {
	s := NewMemoryStore()
	assert.Error(t, s.Set(context.Background(), "k", "v", 0))
	assert.Error(t, s.Set(context.Background(), "k", "v", -time.Second))
}

func TestMemoryStoreGetDelConsumesOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "whitelist:j1:u1", "1", time.Minute))

	val, ok, err := s.GetDel(ctx, "whitelist:j1:u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	_, ok, err = s.GetDel(ctx, "whitelist:j1:u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreKeysPattern(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "whitelist:j1:u1", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "whitelist:j2:u1", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "whitelist:j3:u2", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "blacklist:j4", "1", time.Minute))

	keys, err := s.Keys(ctx, "whitelist:*:u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"whitelist:j1:u1", "whitelist:j2:u1"}, keys)

	keys, err = s.Keys(ctx, "whitelist:*:u3")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStoreDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "b", "1", time.Minute))

	require.NoError(t, s.Del(ctx, "a", "b", "missing"))

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
