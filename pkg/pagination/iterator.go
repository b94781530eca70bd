package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Iterator serves the items of a paginated source one at a time.
//
// All state is owned by the iterator and guarded by mu. Requests are
// serviced by a single worker goroutine, started when a request arrives
// while none is active and exiting once the queue is empty. The worker
// releases mu only while it waits for a page.
type Iterator[T any] struct {
	fetcher  Fetcher[T]
	pageSize int
	timeout  time.Duration
	name     string
	logger   zerolog.Logger

	ctx    context.Context // parent of every fetch, cancelled by Close
	cancel context.CancelFunc

	mu     sync.Mutex
	page   int
	buf    buffer[T]
	done   bool
	err    error // terminal failure; nil when the source was exhausted
	closed bool
	queue  requestQueue[T]
	active activeSlot[T]
	nextID uint64
}

// New creates an iterator over the pages produced by fetcher.
// It fails with ErrNoFetcher, ErrInvalidPage or ErrInvalidPageSize on
// invalid input; no request can be issued in that case.
func New[T any](fetcher Fetcher[T], cfg Config) (*Iterator[T], error) {
	if isNilFetcher(fetcher) {
		return nil, ErrNoFetcher
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w (page=%d, page_size=%d)", err, cfg.Page, cfg.PageSize)
	}

	logger := log.With().Str("component", "pagination").Str("iterator", cfg.Name).Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("iterator", cfg.Name).Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Iterator[T]{
		fetcher:  fetcher,
		pageSize: cfg.PageSize,
		timeout:  cfg.FetchTimeout,
		name:     cfg.Name,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		page:     cfg.Page,
	}, nil
}

// Request asks for the next item and returns a future for it. It never
// blocks on a fetch and may be called from any number of goroutines.
// Futures settle in the order their requests were issued, with an item,
// with ErrDone once the source is exhausted, or with an error.
//
// Cancelling ctx withdraws the request: its future is rejected with
// ctx.Err() and the remaining requests keep their order.
func (it *Iterator[T]) Request(ctx context.Context) *Future[T] {
	return it.request(ctx).fut
}

func (it *Iterator[T]) request(ctx context.Context) *request[T] {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.nextID++
	r := newRequest[T](it.nextID)
	it.queue.push(r)
	pagerPendingRequests.WithLabelValues(it.name).Inc()

	if _, busy := it.active.get(); !busy {
		it.promote()
		// Processing starts once this call has returned and mu is free.
		go it.run()
	}

	r.watch(ctx, func(err error) {
		it.withdraw(r, err)
	})

	return r
}

// Next requests the next item and waits for it.
// It returns ErrDone once the source is exhausted.
// If ctx is done after the request already settled with an item, the item
// is returned rather than lost.
func (it *Iterator[T]) Next(ctx context.Context) (T, error) {
	r := it.request(ctx)
	select {
	case <-r.fut.Ready():
	case <-ctx.Done():
		// Withdraw under mu so the worker cannot settle r in between.
		it.withdraw(r, ctx.Err())
	}
	return r.fut.Result()
}

// run is the worker loop. It services the active request, then each
// promoted successor, until no request is left.
func (it *Iterator[T]) run() {
	it.mu.Lock()
	defer it.mu.Unlock()

	for {
		r, ok := it.active.get()
		if !ok {
			return
		}

		// Withdrawn or closed while waiting.
		if r.fut.Settled() {
			it.active.clear()
			it.promote()
			continue
		}

		if it.done {
			it.settle(r, *new(T), it.terminal())
			continue
		}

		if item, ok := it.buf.next(); ok {
			it.settle(r, item, nil)
			continue
		}

		if it.buf.drained() {
			it.done = true
			pagerExhaustedTotal.WithLabelValues(it.name).Inc()
			it.logger.Info().
				Int("next_page", it.page).
				Int("page_size", it.pageSize).
				Msg("Source exhausted")
			it.settle(r, *new(T), ErrDone)
			continue
		}

		it.mu.Unlock()
		err := it.refill()
		it.mu.Lock()

		if err != nil {
			it.fail(err)
		}
		// Retry the same active request against the new buffer.
	}
}

// promote moves the head of the queue into the active slot, if any.
// Callers hold mu and the slot must be empty.
func (it *Iterator[T]) promote() {
	if r, ok := it.queue.pop(); ok {
		it.active.set(r)
	}
}

// settle completes the active request and promotes its successor.
// Callers hold mu.
func (it *Iterator[T]) settle(r *request[T], item T, err error) {
	if !it.active.holds(r) {
		panic(fmt.Sprintf("pagination: internal error: settling request %d which is not active", r.id))
	}
	it.complete(r, item, err)
	it.active.clear()
	it.promote()
}

// complete settles r's future exactly once and releases its resources.
// Request futures are only settled here, under mu, so the metrics are
// updated before any waiter wakes up.
func (it *Iterator[T]) complete(r *request[T], item T, err error) {
	if r.fut.Settled() {
		return
	}
	r.release()
	pagerPendingRequests.WithLabelValues(it.name).Dec()
	if err != nil {
		r.fut.Reject(err)
		return
	}
	pagerItemsDelivered.WithLabelValues(it.name).Inc()
	r.fut.Resolve(item)
}

// fail records a terminal fetch failure and rejects the active request and
// every queued request with it. Callers hold mu.
func (it *Iterator[T]) fail(err error) {
	if it.done {
		// Close won the race; its error stands.
		return
	}
	it.done = true
	it.err = err

	pending := it.queue.drain()
	it.logger.Error().
		Err(err).
		Int("rejected", len(pending)+1).
		Msg("Page fetch failed, iterator stopped")

	if r, ok := it.active.get(); ok {
		it.complete(r, *new(T), err)
		it.active.clear()
	}
	for _, r := range pending {
		it.complete(r, *new(T), err)
	}
}

// withdraw rejects a request whose context ended before it was served.
func (it *Iterator[T]) withdraw(r *request[T], err error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if r.fut.Settled() {
		return
	}
	if it.queue.remove(r) || it.active.holds(r) {
		// An active request is rejected here; the worker notices and
		// promotes the next one without consuming an item.
		it.complete(r, *new(T), err)
		it.logger.Debug().Uint64("request", r.id).Err(err).Msg("Request withdrawn")
	}
}

// terminal returns the error every request receives once done is set.
func (it *Iterator[T]) terminal() error {
	if it.err != nil {
		return it.err
	}
	return ErrDone
}

// Close stops the iterator. Pending requests and later ones are rejected
// with ErrClosed, and an in-flight fetch has its context cancelled. On an
// iterator that is already done, Close only releases resources.
func (it *Iterator[T]) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil
	}
	it.closed = true
	it.cancel()

	if it.done {
		return nil
	}
	it.done = true
	it.err = ErrClosed

	for _, r := range it.queue.drain() {
		it.complete(r, *new(T), ErrClosed)
	}
	if r, ok := it.active.get(); ok {
		// The worker clears the slot when it next looks at it.
		it.complete(r, *new(T), ErrClosed)
	}

	it.logger.Debug().Int("next_page", it.page).Msg("Iterator closed")
	return nil
}

// Page returns the index of the next page to fetch.
func (it *Iterator[T]) Page() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.page
}

// PageSize returns the fixed page size.
func (it *Iterator[T]) PageSize() int {
	return it.pageSize
}

// Name returns the iterator's name.
func (it *Iterator[T]) Name() string {
	return it.name
}

// Done reports whether the iterator reached a terminal state: exhausted,
// failed or closed.
func (it *Iterator[T]) Done() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.done
}

// Err returns the terminal failure, or nil if the iterator is still live or
// its source was simply exhausted.
func (it *Iterator[T]) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Pending returns the number of requests that are queued or active.
func (it *Iterator[T]) Pending() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := it.queue.len()
	if r, ok := it.active.get(); ok && !r.fut.Settled() {
		n++
	}
	return n
}

// Buffered returns the number of fetched items not yet handed out.
func (it *Iterator[T]) Buffered() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.buf.len()
}
