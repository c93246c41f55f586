package quote

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CachedSource wraps a RateSource with a TTL cache so bursts of quote
// requests don't hammer the upstream price API. Expired entries are
// refetched on demand; a fetch failure never serves a stale cached value.
type CachedSource struct {
	inner RateSource
	ttl   time.Duration

	mu        sync.RWMutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

var _ RateSource = (*CachedSource)(nil)

// NewCachedSource wraps inner with a TTL cache.
func NewCachedSource(inner RateSource, ttl time.Duration) *CachedSource {
	return &CachedSource{inner: inner, ttl: ttl}
}

// Rate returns the cached rate when fresh, otherwise fetches a new one.
func (c *CachedSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	c.mu.RLock()
	rate, fetchedAt := c.rate, c.fetchedAt
	c.mu.RUnlock()

	if !fetchedAt.IsZero() && time.Since(fetchedAt) <= c.ttl {
		return rate, nil
	}

	fresh, err := c.inner.Rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	c.rate = fresh
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return fresh, nil
}

// Clear drops the cached value, forcing the next Rate call to refetch.
func (c *CachedSource) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}
