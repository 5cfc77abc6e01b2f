package identity

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const userIDKey = "user_id"

// Cached memoises a provider's user id for a TTL. Lookup failures are not
// cached, so a login is picked up on the next call.
type Cached struct {
	inner Provider
	cache *cache.Cache
}

// NewCached wraps inner. The cache runs without a janitor goroutine; expired
// entries are dropped on read.
func NewCached(inner Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 0),
	}
}

// UserID implements Provider.
func (c *Cached) UserID(ctx context.Context) (string, error) {
	if cached, found := c.cache.Get(userIDKey); found {
		if id, ok := cached.(string); ok {
			return id, nil
		}
	}

	id, err := c.inner.UserID(ctx)
	if err != nil {
		return "", err
	}
	c.cache.Set(userIDKey, id, cache.DefaultExpiration)
	return id, nil
}

// Invalidate drops the cached id, e.g. after login or logout.
func (c *Cached) Invalidate() {
	c.cache.Flush()
}
