package ratebucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_GrantsUpToCapacity(t *testing.T) {
	b := New()

	allowed, _ := b.Allow("user-1:upload", 2, 0.001)
	assert.True(t, allowed)
	allowed, _ = b.Allow("user-1:upload", 2, 0.001)
	assert.True(t, allowed)

	allowed, retryAfter := b.Allow("user-1:upload", 2, 0.001)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
}

func TestAllow_SeparateKeysHaveIndependentBuckets(t *testing.T) {
	b := New()

	allowed, _ := b.Allow("user-1:upload", 1, 0.001)
	assert.True(t, allowed)

	allowed, _ = b.Allow("user-2:upload", 1, 0.001)
	assert.True(t, allowed)
}

func TestCompact_RemovesStaleBuckets(t *testing.T) {
	b := New()
	b.Allow("user-1:upload", 5, 1)
	assert.Equal(t, 1, b.Len())

	removed := b.Compact(time.Now().Add(time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, b.Len())
}
