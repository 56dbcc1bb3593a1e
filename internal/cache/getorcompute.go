package cache

import (
	"context"
	"errors"
	"time"
)

// ErrComputeInProgress is returned by GetOrCompute when another caller
// currently holds the lock for this key and waitForLock is false.
var ErrComputeInProgress = errors.New("cache: compute already in progress for key")

// lockSuffix namespaces the SetNX lock key away from the value key so a
// lock never shadows a cached result with the same logical name.
const lockSuffix = ":lock"

// GetOrCompute implements the Evidence Processor's single-flight
// get-or-compute contract (spec.md §4.1, §5.2): on a cache hit, return
// the stored value; on a miss, exactly one caller runs fn while the
// others either wait for its result or fail fast, depending on
// waitForLock. The winner's result is stored under key with ttl before
// being returned to every waiter.
func GetOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, waitForLock bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}

	lockKey := key + lockSuffix
	lockTTL := 2 * time.Minute
	acquired, err := c.SetNX(ctx, lockKey, time.Now().Unix(), lockTTL)
	if err != nil {
		return result, err
	}

	if !acquired {
		if !waitForLock {
			var zero T
			return zero, ErrComputeInProgress
		}
		return waitForCachedResult[T](ctx, c, key, lockKey, lockTTL)
	}
	defer c.Delete(ctx, lockKey)

	computed, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Set(ctx, key, computed, ttl); err != nil {
		return computed, nil
	}

	return computed, nil
}

// waitForCachedResult polls for the winner's result to land, bounded by
// the lock's own TTL so a crashed winner can never wedge a waiter forever.
func waitForCachedResult[T any](ctx context.Context, c Cache, key, lockKey string, timeout time.Duration) (T, error) {
	var result T
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
			if err := c.Get(ctx, key, &result); err == nil {
				return result, nil
			}
			held, _ := c.Exists(ctx, lockKey)
			if !held || time.Now().After(deadline) {
				var zero T
				return zero, ErrComputeInProgress
			}
		}
	}
}
