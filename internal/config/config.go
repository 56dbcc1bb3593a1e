// Package config loads the single, fixed configuration bag described in
// spec.md §6.4. Configuration is read once at startup from environment
// variables, optionally overridden by a YAML file, validated, and never
// mutated again (the one exception is the tier_limits subset, which
// internal/config's Watcher hot-reloads via fsnotify — see watch.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Env is the deployment environment.
type Env string

const (
	Development Env = "development"
	Staging     Env = "staging"
	Production  Env = "production"
)

// CacheBackend selects the Cache implementation (internal/cache).
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRemote CacheBackend = "remote"
)

// TierLimit is the per-tier quota/rate shape referenced by internal/quota
// and internal/gate.
type TierLimit struct {
	UploadsPerMonth    int64   `yaml:"uploads_per_month"`
	VideosPerMonth     int64   `yaml:"videos_per_month"`
	APICallsPerMinute  float64 `yaml:"api_calls_per_minute"`
	RateBucketCapacity float64 `yaml:"rate_bucket_capacity"`
	MaxUploadBytesOverride int64 `yaml:"max_upload_bytes_override"`

	// VideoHoursPerMonth, TranscriptionMinutesPerMonth, and CasesPerMonth
	// round out the remaining UsageCounter fields (spec.md §4 "UsageCounter")
	// that the Gate's monthly-counter check (spec.md §4.8 step 5) enforces.
	VideoHoursPerMonth           float64 `yaml:"video_hours_per_month"`
	TranscriptionMinutesPerMonth float64 `yaml:"transcription_minutes_per_month"`
	CasesPerMonth                int64   `yaml:"cases_per_month"`
	APICallsPerMonth             int64   `yaml:"api_calls_per_month"`

	// Features lists the optional capability flags this tier includes
	// (spec.md §4.8 step 3), e.g. "bulk_export", "custom_analyzer_profiles".
	// A flag absent from this set is unavailable regardless of tier floor.
	Features []string `yaml:"features"`
}

// HasFeature reports whether this tier includes the named feature flag.
func (t TierLimit) HasFeature(flag string) bool {
	for _, f := range t.Features {
		if f == flag {
			return true
		}
	}
	return false
}

// MonthlyLimit returns the tier's limit for the named usage counter, and
// whether that counter is recognized. Unlimited (-1) means the Gate must
// skip the monthly-counter check entirely for this (tier, counter) pair.
func (t TierLimit) MonthlyLimit(counter string) (float64, bool) {
	switch counter {
	case "pdf_documents_processed":
		return float64(t.UploadsPerMonth), true
	case "videos_processed":
		return float64(t.VideosPerMonth), true
	case "video_hours":
		return t.VideoHoursPerMonth, true
	case "transcription_minutes":
		return t.TranscriptionMinutesPerMonth, true
	case "api_calls":
		return float64(t.APICallsPerMonth), true
	case "cases_created":
		return float64(t.CasesPerMonth), true
	default:
		return 0, false
	}
}

// Unlimited is the sentinel for "no limit" per spec.md §6.4.
const Unlimited int64 = -1

// Config is the fixed, enumerated configuration bag. Every field here
// corresponds to exactly one key named in spec.md §6.4; unknown keys
// encountered while loading are rejected at startup.
type Config struct {
	Env                Env                     `yaml:"env"`
	ContentStoreRoot   string                  `yaml:"content_store_root"`
	MetadataURL        string                  `yaml:"metadata_url"`
	CacheBackend       CacheBackend            `yaml:"cache_backend"`
	CacheURL           string                  `yaml:"cache_url"`
	WorkerPoolSize     int                     `yaml:"worker_pool_size"`
	QueueCapacity      int                     `yaml:"queue_capacity"`
	TranscriptTTLSeconds int                   `yaml:"transcript_ttl_seconds"`
	OCRTTLSeconds      int                     `yaml:"ocr_ttl_seconds"`
	ResultTTLSeconds   int                     `yaml:"result_ttl_seconds"`
	TierLimits         map[string]TierLimit    `yaml:"tier_limits"`
	MaxUploadBytes     int64                   `yaml:"max_upload_bytes"`
	TrustProxy         bool                    `yaml:"trust_proxy"`
	EventsBackend      string                  `yaml:"events_backend"`
	EventsURL          string                  `yaml:"events_url"`

	// JWTSecret, DBPassword, etc. are credentials, never echoed back, and
	// always read from the environment even when an override file is used.
	JWTSecret string `yaml:"-"`

	// tierLimitsMu guards TierLimits against concurrent reads from
	// request handlers and writes from Watcher's reload goroutine.
	tierLimitsMu sync.RWMutex
}

// knownKeys is used to reject unrecognized keys in an override file.
var knownKeys = map[string]bool{
	"env": true, "content_store_root": true, "metadata_url": true,
	"cache_backend": true, "cache_url": true, "worker_pool_size": true,
	"queue_capacity": true, "transcript_ttl_seconds": true,
	"ocr_ttl_seconds": true, "result_ttl_seconds": true,
	"tier_limits": true, "max_upload_bytes": true, "trust_proxy": true,
	"events_backend": true, "events_url": true,
}

func defaults() *Config {
	return &Config{
		Env:                Development,
		ContentStoreRoot:   "./data/blobs",
		CacheBackend:       CacheMemory,
		WorkerPoolSize:     4,
		QueueCapacity:      1024,
		TranscriptTTLSeconds: 3600,
		OCRTTLSeconds:      3600,
		ResultTTLSeconds:   3600,
		MaxUploadBytes:     2 << 30, // 2 GiB
		TrustProxy:         false,
		EventsBackend:      "memory",
		TierLimits:         defaultTierLimits(),
	}
}

func defaultTierLimits() map[string]TierLimit {
	return map[string]TierLimit{
		"free": {
			UploadsPerMonth: 5, VideosPerMonth: 1, APICallsPerMinute: 1, RateBucketCapacity: 2,
			VideoHoursPerMonth: 2, TranscriptionMinutesPerMonth: 120, CasesPerMonth: 1, APICallsPerMonth: 500,
		},
		"starter": {
			UploadsPerMonth: 50, VideosPerMonth: 10, APICallsPerMinute: 5.0 / 60.0, RateBucketCapacity: 5,
			VideoHoursPerMonth: 20, TranscriptionMinutesPerMonth: 1200, CasesPerMonth: 5, APICallsPerMonth: 5000,
		},
		"professional": {
			UploadsPerMonth: 500, VideosPerMonth: 100, APICallsPerMinute: 2, RateBucketCapacity: 20,
			VideoHoursPerMonth: 200, TranscriptionMinutesPerMonth: 12000, CasesPerMonth: 50, APICallsPerMonth: 50000,
			Features: []string{"bulk_export", "custom_analyzer_profiles"},
		},
		"premium": {
			UploadsPerMonth: 2000, VideosPerMonth: 500, APICallsPerMinute: 10, RateBucketCapacity: 100,
			VideoHoursPerMonth: 1000, TranscriptionMinutesPerMonth: 60000, CasesPerMonth: 250, APICallsPerMonth: 250000,
			Features: []string{"bulk_export", "custom_analyzer_profiles", "priority_processing"},
		},
		"enterprise": {
			UploadsPerMonth: Unlimited, VideosPerMonth: Unlimited, APICallsPerMinute: 1000, RateBucketCapacity: 1e9,
			VideoHoursPerMonth: -1, TranscriptionMinutesPerMonth: -1, CasesPerMonth: Unlimited, APICallsPerMonth: -1,
			Features: []string{"bulk_export", "custom_analyzer_profiles", "priority_processing", "sso"},
		},
		"admin": {
			UploadsPerMonth: Unlimited, VideosPerMonth: Unlimited, APICallsPerMinute: 1e6, RateBucketCapacity: 1e9,
			VideoHoursPerMonth: -1, TranscriptionMinutesPerMonth: -1, CasesPerMonth: Unlimited, APICallsPerMonth: -1,
			Features: []string{"bulk_export", "custom_analyzer_profiles", "priority_processing", "sso"},
		},
	}
}

// Load builds a Config from environment variables, optionally overlaying a
// YAML file named by EVIDENT_CONFIG_FILE. Missing required keys fail
// startup in production; in development they fall back to declared
// defaults, exactly as spec.md §6.4 requires.
func Load() (*Config, error) {
	cfg := defaults()

	if env := os.Getenv("EVIDENT_ENV"); env != "" {
		cfg.Env = Env(env)
	}
	if v := os.Getenv("CONTENT_STORE_ROOT"); v != "" {
		cfg.ContentStoreRoot = v
	}
	if v := os.Getenv("METADATA_URL"); v != "" {
		cfg.MetadataURL = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = CacheBackend(v)
	}
	if v := os.Getenv("CACHE_URL"); v != "" {
		cfg.CacheURL = v
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WORKER_POOL_SIZE: %w", err)
		}
		cfg.WorkerPoolSize = n
	}
	if v := os.Getenv("QUEUE_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUEUE_CAPACITY: %w", err)
		}
		cfg.QueueCapacity = n
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		cfg.TrustProxy = v == "true"
	}
	if v := os.Getenv("EVENTS_BACKEND"); v != "" {
		cfg.EventsBackend = v
	}
	if v := os.Getenv("EVENTS_URL"); v != "" {
		cfg.EventsURL = v
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	if overrideFile := os.Getenv("EVIDENT_CONFIG_FILE"); overrideFile != "" {
		if err := applyOverrideFile(cfg, overrideFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrideFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config override %s: %w", path, err)
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to parse config override %s: %w", path, err)
	}
	for key := range generic {
		if !knownKeys[key] {
			return fmt.Errorf("unknown configuration key %q in %s", key, path)
		}
	}

	return yaml.Unmarshal(raw, cfg)
}

// Validate enforces the fixed-key, fail-fast-in-production contract of
// spec.md §6.4.
func (c *Config) Validate() error {
	switch c.Env {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("invalid env %q", c.Env)
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be >= 1")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1")
	}

	if c.Env == Production {
		if c.MetadataURL == "" {
			return fmt.Errorf("metadata_url is required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters")
		}
		if c.CacheBackend == CacheRemote && c.CacheURL == "" {
			return fmt.Errorf("cache_url is required when cache_backend is remote")
		}
		if c.EventsBackend == "nats" && c.EventsURL == "" {
			return fmt.Errorf("events_url is required when events_backend is nats")
		}
	} else if c.JWTSecret == "" {
		// development fallback, never used in production (guarded above)
		c.JWTSecret = "development-only-insecure-secret-key-do-not-use-in-prod"
	}

	return nil
}

// LimitFor returns the tier limit for t, falling back to the free tier's
// limit if the tier is somehow unconfigured.
func (c *Config) LimitFor(tier string) TierLimit {
	c.tierLimitsMu.RLock()
	defer c.tierLimitsMu.RUnlock()
	if l, ok := c.TierLimits[tier]; ok {
		return l
	}
	return c.TierLimits["free"]
}

// SetTierLimits atomically replaces the tier-limit table, the one piece
// of Config a running process may update after startup (Watcher's
// fsnotify-driven reload).
func (c *Config) SetTierLimits(limits map[string]TierLimit) {
	c.tierLimitsMu.Lock()
	defer c.tierLimitsMu.Unlock()
	c.TierLimits = limits
}
