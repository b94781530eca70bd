// Package pagination turns a paginated data source into a sequential,
// pull-based stream of items.
//
// An Iterator buffers one page at a time and hands out single items on
// request. Concurrent callers are queued and served strictly in the order
// they asked, and at most one page fetch is ever in flight for a given
// Iterator. Pages are requested from a caller-supplied Fetcher with an
// auto-incrementing page index and a fixed page size; a page shorter than
// the page size marks the source as exhausted.
//
// Example usage:
//
//	fetch := pagination.FetchFunc[Order](func(ctx context.Context, page, size int, _ *pagination.Iterator[Order]) ([]Order, error) {
//		return api.ListOrders(ctx, page, size)
//	})
//	it, err := pagination.New[Order](fetch, pagination.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//
//	for order, err := range it.All(ctx) {
//		if err != nil {
//			return err
//		}
//		process(order)
//	}
//
// Terminal states:
//   - ErrDone is returned once the source is exhausted, for every request
//     from then on. It is a marker, not a failure.
//   - A failed fetch is terminal. The *FetchError is delivered to the
//     active request, every queued request and every later request.
//     No further pages are fetched.
//   - Close rejects pending requests with ErrClosed.
//
// Request returns a Future, so a caller may issue several requests back to
// back and wait on them later; they settle in issue order.
package pagination
