package pagination

import (
	"context"
	"fmt"
	"time"
)

// buffer holds the undelivered items of the most recently fetched page.
type buffer[T any] struct {
	items []T
	short bool // the last fetch returned fewer items than the page size
}

// next pops the first buffered item.
func (b *buffer[T]) next() (T, bool) {
	if len(b.items) == 0 {
		var zero T
		return zero, false
	}
	item := b.items[0]
	b.items = b.items[1:]
	return item, true
}

// fill replaces the buffer contents with a freshly fetched page.
func (b *buffer[T]) fill(items []T, pageSize int) {
	b.items = items
	b.short = len(items) < pageSize
}

func (b *buffer[T]) len() int {
	return len(b.items)
}

// drained reports whether the source is exhausted and nothing is left to
// hand out.
func (b *buffer[T]) drained() bool {
	return b.short && len(b.items) == 0
}

// refill loads the next page into the buffer. It is only called by the
// worker, with it.mu released, when the buffer is empty.
func (it *Iterator[T]) refill() error {
	it.mu.Lock()
	page := it.page
	it.mu.Unlock()

	ctx, cancel := it.fetchContext()
	defer cancel()

	start := time.Now()
	items, err := it.fetch(ctx, page)
	elapsed := time.Since(start)
	pagerFetchDuration.WithLabelValues(it.name).Observe(elapsed.Seconds())

	it.mu.Lock()
	defer it.mu.Unlock()

	if err != nil {
		pagerFetchesTotal.WithLabelValues(it.name, "error").Inc()
		return &FetchError{Page: page, PageSize: it.pageSize, Err: err}
	}

	pagerFetchesTotal.WithLabelValues(it.name, "ok").Inc()
	it.buf.fill(items, it.pageSize)

	it.logger.Debug().
		Int("page", page).
		Int("page_size", it.pageSize).
		Int("items", len(items)).
		Bool("short", it.buf.short).
		Dur("duration", elapsed).
		Msg("Page fetched")

	return nil
}

// fetch invokes the fetcher for page, advances the page index and waits
// for the page. The index advances once per invocation, whatever the
// outcome.
func (it *Iterator[T]) fetch(ctx context.Context, page int) ([]T, error) {
	var fut *Future[[]T]
	func() {
		defer func() {
			it.mu.Lock()
			it.page++
			it.mu.Unlock()
			if r := recover(); r != nil {
				fut = Rejected[[]T](fmt.Errorf("fetcher panicked: %v", r))
			}
		}()
		fut = it.fetcher.Fetch(ctx, page, it.pageSize, it)
	}()

	if fut == nil {
		return nil, ErrNilFuture
	}
	return fut.Wait(ctx)
}

func (it *Iterator[T]) fetchContext() (context.Context, context.CancelFunc) {
	if it.timeout > 0 {
		return context.WithTimeout(it.ctx, it.timeout)
	}
	return context.WithCancel(it.ctx)
}
