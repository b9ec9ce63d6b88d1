package store

import (
	"context"
	"time"
)

// DefaultKeyPrefix is prepended to the client identifier to build the record key.
const DefaultKeyPrefix = "rate_limit_"

// Record is the fixed-window counter kept for a single client.
type Record struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
}

// Store persists rate limit records in a shared key-value backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the record stored under key, or nil if there is none.
	Get(ctx context.Context, key string) (*Record, error)
	// Set overwrites the record under key and (re)arms its expiry to ttl.
	Set(ctx context.Context, key string, record Record, ttl time.Duration) error
}

// Admin is implemented by stores that support operator tooling.
type Admin interface {
	Store
	// Delete removes the record under key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Key builds the storage key for clientId.
func Key(prefix, clientId string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + clientId
}
