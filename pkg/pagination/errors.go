package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrDone is the terminal marker returned once the source is exhausted.
	ErrDone = errors.New("pagination: no more items")

	// ErrClosed is returned for requests pending on, or issued after, Close.
	ErrClosed = errors.New("pagination: iterator closed")

	// ErrNoFetcher is returned by New when no fetcher is supplied.
	ErrNoFetcher = errors.New("pagination: fetcher is required")

	// ErrInvalidPageSize is returned by New for a negative page size.
	ErrInvalidPageSize = errors.New("pagination: page size must be positive")

	// ErrInvalidPage is returned by New for a negative start page.
	ErrInvalidPage = errors.New("pagination: start page must not be negative")

	// ErrNilFuture is reported when a Fetcher returns a nil future.
	ErrNilFuture = errors.New("pagination: fetcher returned nil future")
)

// FetchError wraps a failure of the fetcher for a single page.
type FetchError struct {
	Page     int
	PageSize int
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("pagination: fetch page %d (size %d): %v", e.Page, e.PageSize, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
