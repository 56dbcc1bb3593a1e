package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetThenGetRoundTrips(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "k1", map[string]string{"a": "b"}, time.Minute))

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "k1", &out))
	assert.Equal(t, "b", out["a"])
}

func TestMemoryCache_GetMissingKeyReturnsCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	var out string
	err := c.Get(context.Background(), "missing", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_ExpiredEntryIsTreatedAsMiss(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "k1", "v1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var out string
	err := c.Get(context.Background(), "k1", &out)
	assert.ErrorIs(t, err, ErrCacheMiss)

	exists, err := c.Exists(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryCache_ZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "k1", "v1", 0))

	ttl, err := c.TTL(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)

	var out string
	require.NoError(t, c.Get(context.Background(), "k1", &out))
	assert.Equal(t, "v1", out)
}

func TestMemoryCache_DeleteRemovesKeys(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "k1", "v1", time.Minute))
	require.NoError(t, c.Set(context.Background(), "k2", "v2", time.Minute))

	require.NoError(t, c.Delete(context.Background(), "k1", "k2"))

	exists, _ := c.Exists(context.Background(), "k1")
	assert.False(t, exists)
	exists, _ = c.Exists(context.Background(), "k2")
	assert.False(t, exists)
}

func TestMemoryCache_DeletePatternMatchesWildcardPrefix(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Set(context.Background(), "analysis:ev1:fp1", "v", time.Minute))
	require.NoError(t, c.Set(context.Background(), "analysis:ev1:fp2", "v", time.Minute))
	require.NoError(t, c.Set(context.Background(), "analysis:ev2:fp1", "v", time.Minute))

	require.NoError(t, c.DeletePattern(context.Background(), "analysis:ev1:*"))

	exists, _ := c.Exists(context.Background(), "analysis:ev1:fp1")
	assert.False(t, exists)
	exists, _ = c.Exists(context.Background(), "analysis:ev2:fp1")
	assert.True(t, exists)
}

func TestMemoryCache_SetNXOnlyFirstCallerSucceeds(t *testing.T) {
	c := NewMemoryCache()

	acquired, err := c.SetNX(context.Background(), "lock1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = c.SetNX(context.Background(), "lock1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestMemoryCache_SetNXReacquiresAfterExpiry(t *testing.T) {
	c := NewMemoryCache()

	acquired, err := c.SetNX(context.Background(), "lock1", 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired)

	time.Sleep(5 * time.Millisecond)

	acquired, err = c.SetNX(context.Background(), "lock1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestMemoryCache_IncrementByAccumulates(t *testing.T) {
	c := NewMemoryCache()

	v, err := c.Increment(context.Background(), "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = c.IncrementBy(context.Background(), "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)
}

func TestMemoryCache_ExpireUpdatesExistingKeyOnly(t *testing.T) {
	c := NewMemoryCache()
	require.NoError(t, c.Expire(context.Background(), "missing", time.Minute))

	require.NoError(t, c.Set(context.Background(), "k1", "v1", time.Hour))
	require.NoError(t, c.Expire(context.Background(), "k1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	exists, _ := c.Exists(context.Background(), "k1")
	assert.False(t, exists)
}

func TestNewRemoteCache_DisabledSkipsConnection(t *testing.T) {
	c, err := NewRemoteCache(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	err = c.Get(context.Background(), "k1", &struct{}{})
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Set(context.Background(), "k1", "v1", time.Minute))
	assert.NoError(t, c.Close())
}

func TestNewRemoteCache_EnabledWithUnreachableHostFails(t *testing.T) {
	_, err := NewRemoteCache(Config{Enabled: true, Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}
