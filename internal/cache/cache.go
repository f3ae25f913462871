// Package cache stores similarity search results keyed by a hash of the
// normalized query and filters.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/metrics"
)

// DefaultTTL is used when Set is called without a TTL.
const DefaultTTL = time.Hour

// DefaultLookupTimeout bounds a single Get or Set against the store.
const DefaultLookupTimeout = 500 * time.Millisecond

// Store persists cache entries. Get returns nil, nil on a miss and must
// never return an entry that has expired at now. A hit increments the
// entry's hit count atomically with the read.
type Store interface {
	Get(ctx context.Context, key string, now time.Time) (*domain.CacheEntry, error)
	Set(ctx context.Context, entry domain.CacheEntry) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (domain.CacheStats, error)
}

// ResultCache is the query-level cache in front of embedding and
// similarity search.
type ResultCache struct {
	store   Store
	logger  *slog.Logger
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// New creates a ResultCache. A non-positive ttl uses DefaultTTL.
func New(store Store, logger *slog.Logger, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{
		store:   store,
		logger:  logger,
		ttl:     ttl,
		timeout: DefaultLookupTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithTimeout sets the deadline applied to each Get and Set. A non-positive
// timeout keeps the current one.
func (c *ResultCache) WithTimeout(timeout time.Duration) *ResultCache {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithClock replaces the cache's time source. Used by tests.
func (c *ResultCache) WithClock(now func() time.Time) *ResultCache {
	c.now = now
	return c
}

// TTL returns the default entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the live entry for query and filters, or nil on a miss.
func (c *ResultCache) Get(ctx context.Context, query string, filters domain.SearchFilters) (*domain.CacheEntry, error) {
	const op = "cache.get"

	key, err := Key(query, filters)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entry, err := c.store.Get(ctx, key, c.now())
	if err != nil {
		metrics.CacheLookup("error")
		return nil, domain.Unavailable(err, op, "cache lookup failed")
	}
	if entry == nil {
		metrics.CacheLookup("miss")
		return nil, nil
	}

	metrics.CacheLookup("hit")
	return entry, nil
}

// Set stores results for query and filters, replacing any previous entry.
// A non-positive ttl uses the cache default.
func (c *ResultCache) Set(ctx context.Context, query string, results json.RawMessage, filters domain.SearchFilters, ttl time.Duration) error {
	const op = "cache.set"

	if !json.Valid(results) {
		return domain.Invalid(op, "results must be valid JSON")
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	key, err := Key(query, filters)
	if err != nil {
		return err
	}

	now := c.now().Truncate(time.Microsecond)
	entry := domain.CacheEntry{
		QueryHash: key,
		Query:     query,
		Filters:   filters,
		Results:   results,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Set(ctx, entry); err != nil {
		return domain.Unavailable(err, op, "cache write failed")
	}
	return nil
}

// Invalidate removes the entry for query and filters. Removing a missing
// entry is not an error.
func (c *ResultCache) Invalidate(ctx context.Context, query string, filters domain.SearchFilters) error {
	const op = "cache.invalidate"

	key, err := Key(query, filters)
	if err != nil {
		return err
	}

	if err := c.store.Delete(ctx, key); err != nil {
		return domain.Unavailable(err, op, "cache delete failed")
	}
	return nil
}

// ClearExpired deletes every expired entry and returns how many it removed.
func (c *ResultCache) ClearExpired(ctx context.Context) (int64, error) {
	const op = "cache.clear_expired"

	n, err := c.store.DeleteExpired(ctx, c.now())
	if err != nil {
		return 0, domain.Unavailable(err, op, "cache sweep failed")
	}

	metrics.CacheEvicted(n)
	if n > 0 {
		c.logger.Info("Expired cache entries removed", "count", n)
	}
	return n, nil
}

// Stats reports entry and hit counts.
func (c *ResultCache) Stats(ctx context.Context) (domain.CacheStats, error) {
	stats, err := c.store.Stats(ctx, c.now())
	if err != nil {
		return domain.CacheStats{}, domain.Unavailable(err, "cache.stats", "cache stats failed")
	}
	return stats, nil
}
