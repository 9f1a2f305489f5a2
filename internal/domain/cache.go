package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetHistory retrieves a cached member claim history.
	GetHistory(ctx context.Context, tenantID string, memberID string) (*HistoryCache, error)

	// SetHistory caches a member claim history for adjudication.
	SetHistory(ctx context.Context, tenantID string, memberID string, data *HistoryCache, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for submission-frequency checks.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// HistoryCache holds a member's cached claim history passed into the
// adjudication pipeline.
type HistoryCache struct {
	MemberID  string          `json:"memberId"`
	YTDClaims float64         `json:"ytdClaims"`
	Claims    []PreviousClaim `json:"claims"`
	FetchedAt string          `json:"fetchedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
