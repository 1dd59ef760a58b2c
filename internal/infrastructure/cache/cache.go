// Package cache provides the shared key/value store used for rate limiting
// and short-lived response caching. Deployments with multiple API instances
// use the Redis implementation; single-instance runs and tests use the
// in-process implementation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the injected cache abstraction. TTLs are mandatory; a zero TTL
// means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Increment atomically adds one to the counter at key and returns the
	// new value. The TTL applies only when the counter is created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Clock abstracts time for the in-process store so tests can control expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
