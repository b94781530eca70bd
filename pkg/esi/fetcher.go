package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/Sternrassler/eve-esi-pager/pkg/pagination"
)

// PageFetcher is a pagination.Fetcher over a paginated ESI endpoint such
// as /markets/{region_id}/orders/. ESI pages are 1-based, so iterators
// using it start at page 1.
//
// Once a response reported X-Pages, pages past it resolve empty without a
// request. A 404 for any page after the first is treated the same way.
// The iterator page size must equal the endpoint's page length; a short
// page before the last one fails with ErrPageSizeMismatch.
type PageFetcher[T any] struct {
	client   *Client
	endpoint string
	query    url.Values

	mu         sync.Mutex
	totalPages int
}

// NewPageFetcher creates a fetcher for endpoint with fixed query parameters.
func NewPageFetcher[T any](client *Client, endpoint string, query url.Values) *PageFetcher[T] {
	return &PageFetcher[T]{
		client:   client,
		endpoint: endpoint,
		query:    query,
	}
}

// NewIterator creates an iterator over endpoint starting at page 1.
// cfg.Page is ignored when it is 0.
func NewIterator[T any](client *Client, endpoint string, query url.Values, cfg pagination.Config) (*pagination.Iterator[T], error) {
	if cfg.Page == 0 {
		cfg.Page = 1
	}
	if cfg.Name == "" {
		cfg.Name = endpoint
	}
	return pagination.New[T](NewPageFetcher[T](client, endpoint, query), cfg)
}

// Fetch implements pagination.Fetcher. The request runs on its own
// goroutine; the returned future settles with the decoded page.
func (f *PageFetcher[T]) Fetch(ctx context.Context, page, pageSize int, _ *pagination.Iterator[T]) *pagination.Future[[]T] {
	return pagination.Go(func() ([]T, error) {
		return f.fetch(ctx, page, pageSize)
	})
}

// TotalPages returns the last X-Pages value seen, or 0.
func (f *PageFetcher[T]) TotalPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalPages
}

func (f *PageFetcher[T]) fetch(ctx context.Context, page, pageSize int) ([]T, error) {
	if page < 1 {
		return nil, fmt.Errorf("esi page %d: pages start at 1", page)
	}

	if total := f.TotalPages(); total > 0 && page > total {
		return nil, nil
	}

	p, err := f.client.FetchPage(ctx, f.endpoint, f.query, page)
	if err != nil {
		if page > 1 && IsNotFound(err) {
			return nil, nil
		}
		if !isContextErr(err) {
			f.client.logger.Error().Err(err).Str("endpoint", f.endpoint).Int("page", page).Msg("ESI page fetch failed")
		}
		return nil, err
	}

	if p.TotalPages > 0 {
		f.mu.Lock()
		f.totalPages = p.TotalPages
		f.mu.Unlock()
	}

	var items []T
	if err := json.Unmarshal(p.Body, &items); err != nil {
		return nil, fmt.Errorf("decode %s page %d: %w", f.endpoint, page, err)
	}

	// More pages follow, so this page must be full.
	if p.TotalPages > page && len(items) < pageSize {
		return nil, fmt.Errorf("%s page %d of %d has %d items, want %d: %w",
			f.endpoint, page, p.TotalPages, len(items), pageSize, ErrPageSizeMismatch)
	}
	return items, nil
}
