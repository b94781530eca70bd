package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a cached page stays valid.
const DefaultTTL = 5 * time.Minute

// Cached is a pagination.Fetcher that serves pages from the cache and
// delegates misses to the wrapped fetcher, storing what it returns.
// Cache failures are logged and fall through to the wrapped fetcher;
// they never fail the page.
type Cached[T any] struct {
	next     pagination.Fetcher[T]
	manager  *Manager
	endpoint string
	query    url.Values
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewCached wraps next. endpoint and query identify the source in cache
// keys. A ttl of zero uses DefaultTTL.
func NewCached[T any](next pagination.Fetcher[T], manager *Manager, endpoint string, query url.Values, ttl time.Duration) *Cached[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached[T]{
		next:     next,
		manager:  manager,
		endpoint: endpoint,
		query:    query,
		ttl:      ttl,
		logger:   log.With().Str("component", "pagecache").Str("endpoint", endpoint).Logger(),
	}
}

// Fetch implements pagination.Fetcher.
func (c *Cached[T]) Fetch(ctx context.Context, page, pageSize int, it *pagination.Iterator[T]) *pagination.Future[[]T] {
	key := c.key(page, pageSize)

	if items, ok := c.lookup(ctx, key); ok {
		return pagination.Resolved(items)
	}

	fut := c.next.Fetch(ctx, page, pageSize, it)
	if fut == nil {
		return pagination.Rejected[[]T](pagination.ErrNilFuture)
	}

	return pagination.Go(func() ([]T, error) {
		items, err := fut.Wait(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, items)
		return items, nil
	})
}

// Purge drops every cached page of this source.
func (c *Cached[T]) Purge(ctx context.Context) (int, error) {
	return c.manager.Purge(ctx, c.key(0, 0))
}

func (c *Cached[T]) key(page, pageSize int) Key {
	return Key{Endpoint: c.endpoint, Query: c.query, Page: page, PageSize: pageSize}
}

func (c *Cached[T]) lookup(ctx context.Context, key Key) ([]T, bool) {
	entry, err := c.manager.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil, false
	}

	var items []T
	if err := json.Unmarshal(entry.Items, &items); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Discarding undecodable cached page")
		_ = c.manager.Delete(ctx, key)
		return nil, false
	}

	c.logger.Debug().Int("page", key.Page).Int("items", len(items)).Msg("Page served from cache")
	return items, true
}

func (c *Cached[T]) store(ctx context.Context, key Key, items []T) {
	entry, err := newEntry(items, c.ttl)
	if err != nil {
		c.logger.Warn().Err(err).Int("page", key.Page).Msg("Failed to create cache entry")
		return
	}
	if err := c.manager.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Int("page", key.Page).Msg("Failed to cache page")
		return
	}
	c.logger.Debug().Int("page", key.Page).Dur("ttl", c.ttl).Msg("Cached page")
}

func newEntry[T any](items []T, ttl time.Duration) (*Entry, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}
	now := time.Now()
	return &Entry{
		Items:    data,
		Count:    len(items),
		Expires:  now.Add(ttl),
		CachedAt: now,
	}, nil
}
