package http

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"flint/internal/infrastructure/cache"
)

// ViewCache memoizes rendered dashboard payloads per user for a short
// window. Mutating handlers invalidate the entry so the next read rebuilds
// the view. Cache failures are logged and treated as misses; a nil
// ViewCache disables caching entirely.
type ViewCache struct {
	store cache.Store
	ttl   time.Duration
}

func NewViewCache(store cache.Store, ttl time.Duration) *ViewCache {
	return &ViewCache{store: store, ttl: ttl}
}

func (c *ViewCache) key(userID int64) string {
	return "dashboard:view:" + strconv.FormatInt(userID, 10)
}

func (c *ViewCache) get(ctx context.Context, userID int64) ([]byte, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	body, err := c.store.Get(ctx, c.key(userID))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("User %d: Dashboard cache read failed: %v", userID, err)
		}
		return nil, false
	}
	return []byte(body), true
}

func (c *ViewCache) put(ctx context.Context, userID int64, body []byte) {
	if c == nil || c.ttl <= 0 {
		return
	}
	if err := c.store.Set(ctx, c.key(userID), string(body), c.ttl); err != nil {
		log.Printf("User %d: Dashboard cache write failed: %v", userID, err)
	}
}

// Invalidate drops the cached view after a change to the user's
// connections or linked accounts.
func (c *ViewCache) Invalidate(ctx context.Context, userID int64) {
	if c == nil {
		return
	}
	if err := c.store.Delete(ctx, c.key(userID)); err != nil {
		log.Printf("User %d: Dashboard cache invalidation failed: %v", userID, err)
	}
}
