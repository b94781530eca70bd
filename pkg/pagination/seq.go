package pagination

import (
	"context"
	"errors"
	"iter"
)

// All returns a sequence over the remaining items. The sequence ends
// quietly on ErrDone; any other error is yielded once and ends it.
func (it *Iterator[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, err := it.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield(item, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Collect reads up to limit items from it, or all remaining items when
// limit is zero or negative. Items read before a failure are returned
// along with the error.
func Collect[T any](ctx context.Context, it *Iterator[T], limit int) ([]T, error) {
	var items []T
	for item, err := range it.All(ctx) {
		if err != nil {
			return items, err
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}
