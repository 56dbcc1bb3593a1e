// Package cache provides the Cache abstraction used by the Evidence
// Processor's single-flight pipeline (spec.md §4.1, §5.2) and by the
// Access & Quota Gate's distributed locking. Two backends satisfy the
// same interface: a Redis-backed RemoteCache for multi-instance
// deployments, and an in-process MemoryCache for single-instance or
// development deployments (internal/config's CacheBackend selects one).
//
// Cache Strategy:
//   - Get/Set: JSON-serialized values with TTL-based expiration
//   - SetNX: distributed lock acquisition (single-flight, Gate charge tokens)
//   - DeletePattern: bulk invalidation for HTTP response caching
//
// Dependencies:
// - github.com/redis/go-redis/v9 for the remote backend
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the interface every component in this service programs
// against; callers never depend on the concrete backend.
type Cache interface {
	IsEnabled() bool
	Get(ctx context.Context, key string, target interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Increment(ctx context.Context, key string) (int64, error)
	IncrementBy(ctx context.Context, key string, amount int64) (int64, error)
	Close() error
}

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = fmt.Errorf("cache: key not found")

// RemoteCache provides Redis-backed caching with connection pooling.
type RemoteCache struct {
	client *redis.Client
}

// Config holds remote (Redis) cache configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NewRemoteCache creates a new Redis-backed Cache.
func NewRemoteCache(config Config) (*RemoteCache, error) {
	if !config.Enabled {
		return &RemoteCache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RemoteCache{client: client}, nil
}

func (c *RemoteCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *RemoteCache) IsEnabled() bool {
	return c.client != nil
}

func (c *RemoteCache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.IsEnabled() {
		return ErrCacheMiss
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

func (c *RemoteCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

func (c *RemoteCache) Delete(ctx context.Context, keys ...string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (c *RemoteCache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.IsEnabled() {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	keys := []string{}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}

	return nil
}

func (c *RemoteCache) Exists(ctx context.Context, key string) (bool, error) {
	if !c.IsEnabled() {
		return false, nil
	}
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

func (c *RemoteCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !c.IsEnabled() {
		return false, fmt.Errorf("cache not enabled")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	set, err := c.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return set, nil
}

func (c *RemoteCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expiration on key %s: %w", key, err)
	}
	return nil
}

func (c *RemoteCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	if !c.IsEnabled() {
		return 0, fmt.Errorf("cache not enabled")
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL for key %s: %w", key, err)
	}
	return ttl, nil
}

func (c *RemoteCache) Increment(ctx context.Context, key string) (int64, error) {
	if !c.IsEnabled() {
		return 0, fmt.Errorf("cache not enabled")
	}
	val, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return val, nil
}

func (c *RemoteCache) IncrementBy(ctx context.Context, key string, amount int64) (int64, error) {
	if !c.IsEnabled() {
		return 0, fmt.Errorf("cache not enabled")
	}
	val, err := c.client.IncrBy(ctx, key, amount).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return val, nil
}

// GetStats returns Redis pool and server statistics, remote-backend only.
func (c *RemoteCache) GetStats(ctx context.Context) (map[string]string, error) {
	if !c.IsEnabled() {
		return map[string]string{"enabled": "false"}, nil
	}

	info, err := c.client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	poolStats := c.client.PoolStats()
	return map[string]string{
		"enabled":     "true",
		"info":        info,
		"hits":        fmt.Sprintf("%d", poolStats.Hits),
		"misses":      fmt.Sprintf("%d", poolStats.Misses),
		"total_conns": fmt.Sprintf("%d", poolStats.TotalConns),
		"idle_conns":  fmt.Sprintf("%d", poolStats.IdleConns),
		"stale_conns": fmt.Sprintf("%d", poolStats.StaleConns),
	}, nil
}

// entry is one stored value with its expiry, used by MemoryCache.
type entry struct {
	payload []byte
	expires time.Time
}

// MemoryCache is an in-process Cache for single-instance deployments. It
// satisfies the same interface as RemoteCache so the rest of the service
// never branches on which backend is active.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

func (m *MemoryCache) IsEnabled() bool { return true }

func (m *MemoryCache) Close() error { return nil }

func (m *MemoryCache) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false
	}
	return e.payload, true
}

func (m *MemoryCache) Get(ctx context.Context, key string, target interface{}) error {
	payload, ok := m.get(key)
	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = entry{payload: data, expires: expires}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if matchPattern(pattern, k) {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.get(key)
	return ok, nil
}

// SetNX emulates Redis's atomic set-if-absent under the same mutex used
// by every other MemoryCache operation, giving single-process callers the
// same distributed-lock semantics RemoteCache gives multi-process ones.
func (m *MemoryCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		if e.expires.IsZero() || time.Now().Before(e.expires) {
			return false, nil
		}
	}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	m.entries[key] = entry{payload: data, expires: expires}
	return true, nil
}

func (m *MemoryCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	e.expires = time.Now().Add(ttl)
	m.entries[key] = e
	return nil
}

func (m *MemoryCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expires.IsZero() {
		return 0, nil
	}
	return time.Until(e.expires), nil
}

func (m *MemoryCache) Increment(ctx context.Context, key string) (int64, error) {
	return m.IncrementBy(ctx, key, 1)
}

func (m *MemoryCache) IncrementBy(ctx context.Context, key string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if e, ok := m.entries[key]; ok {
		_ = json.Unmarshal(e.payload, &current)
	}
	current += amount
	data, _ := json.Marshal(current)
	m.entries[key] = entry{payload: data}
	return current, nil
}

// matchPattern supports the single '*' wildcard form used by this
// service's own DeletePattern callers (e.g. "response:*"), not full glob
// syntax.
func matchPattern(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if idx := indexByte(pattern, '*'); idx >= 0 {
		prefix, suffix := pattern[:idx], pattern[idx+1:]
		return len(key) >= len(prefix)+len(suffix) &&
			key[:len(prefix)] == prefix &&
			key[len(key)-len(suffix):] == suffix
	}
	return pattern == key
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
