package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegister_IsIdempotent(t *testing.T) {
	r := New()
	r.Register("cache", "first")
	r.Register("cache", "second")

	instance, ok := r.Get("cache")
	assert.True(t, ok)
	assert.Equal(t, "second", instance)
}

func TestDeregister_KeepsEntryReachableButNotReady(t *testing.T) {
	r := New()
	r.Register("queue", "worker-pool")

	r.Deregister("queue")

	instance, ok := r.Get("queue")
	assert.True(t, ok)
	assert.Equal(t, "worker-pool", instance)
	assert.False(t, r.Ready("queue"))
}

func TestReady_FalseForUnknownName(t *testing.T) {
	r := New()
	assert.False(t, r.Ready("nonexistent"))
}

func TestNames_ListsEveryRegisteredEntry(t *testing.T) {
	r := New()
	r.Register("cache", 1)
	r.Register("queue", 2)

	assert.ElementsMatch(t, []string{"cache", "queue"}, r.Names())
}
