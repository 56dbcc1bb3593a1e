package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_EmptyPathIsNoOp(t *testing.T) {
	cfg := &Config{TierLimits: defaultTierLimits()}
	w, err := NewWatcher(cfg, "")
	require.NoError(t, err)

	w.Start()
	w.Stop()
}

func TestWatcher_ReloadsTierLimitsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tier_limits:\n  free:\n    rate_bucket_capacity: 2\n"), 0644))

	cfg := &Config{TierLimits: defaultTierLimits()}
	w, err := NewWatcher(cfg, path)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("tier_limits:\n  free:\n    rate_bucket_capacity: 99\n"), 0644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cfg.LimitFor("free").RateBucketCapacity == 99 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, float64(99), cfg.LimitFor("free").RateBucketCapacity)
}

func TestWatcher_EmptyReloadIsRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tier_limits:\n  free:\n    rate_bucket_capacity: 2\n"), 0644))

	cfg := &Config{TierLimits: defaultTierLimits()}
	w, err := NewWatcher(cfg, path)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// A half-written/empty file must never wipe out the tier table.
	require.NoError(t, os.WriteFile(path, []byte("env: development\n"), 0644))
	time.Sleep(300 * time.Millisecond)

	assert.Equal(t, float64(2), cfg.LimitFor("free").RateBucketCapacity)
}
