package pagination

import (
	"context"
)

// Fetcher produces pages for an Iterator. Fetch is called with the index of
// the page to load, the iterator's fixed page size and the iterator itself.
// The returned future settles with the items of that page, in order. A page
// with fewer than pageSize items (including none) signals the end of the
// source.
//
// Fetch is never called concurrently for the same Iterator.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, page, pageSize int, it *Iterator[T]) *Future[[]T]
}

// FetchFunc adapts a plain blocking function to a Fetcher. Its immediate
// result is wrapped in an already settled future.
type FetchFunc[T any] func(ctx context.Context, page, pageSize int, it *Iterator[T]) ([]T, error)

// Fetch implements Fetcher.
func (f FetchFunc[T]) Fetch(ctx context.Context, page, pageSize int, it *Iterator[T]) *Future[[]T] {
	items, err := f(ctx, page, pageSize, it)
	if err != nil {
		return Rejected[[]T](err)
	}
	return Resolved(items)
}

// AsyncFetchFunc adapts a function that already returns a future.
type AsyncFetchFunc[T any] func(ctx context.Context, page, pageSize int, it *Iterator[T]) *Future[[]T]

// Fetch implements Fetcher.
func (f AsyncFetchFunc[T]) Fetch(ctx context.Context, page, pageSize int, it *Iterator[T]) *Future[[]T] {
	return f(ctx, page, pageSize, it)
}

// isNilFetcher catches typed nil function adapters, which are non-nil
// interface values.
func isNilFetcher[T any](f Fetcher[T]) bool {
	switch fn := f.(type) {
	case nil:
		return true
	case FetchFunc[T]:
		return fn == nil
	case AsyncFetchFunc[T]:
		return fn == nil
	}
	return false
}
