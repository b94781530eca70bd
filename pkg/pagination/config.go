package pagination

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is used when Config.PageSize is zero.
	DefaultPageSize = 100

	defaultName = "default"
)

// Config holds iterator configuration.
type Config struct {
	// Page is the index of the first page to fetch (default: 0).
	// Sources with 1-based pages such as ESI start at 1.
	Page int

	// PageSize is the number of items requested per page (default: 100).
	// It is fixed for the lifetime of the iterator.
	PageSize int

	// FetchTimeout bounds a single page fetch (default: no timeout).
	FetchTimeout time.Duration

	// Name labels the iterator's metrics and log lines (default: "default").
	Name string

	// Logger overrides the component logger derived from the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default iterator configuration.
func DefaultConfig() Config {
	return Config{
		Page:     0,
		PageSize: DefaultPageSize,
		Name:     defaultName,
	}
}

// validate fills unset fields and rejects invalid ones.
func (c *Config) validate() error {
	if c.Page < 0 {
		return ErrInvalidPage
	}
	if c.PageSize < 0 {
		return ErrInvalidPageSize
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.FetchTimeout < 0 {
		c.FetchTimeout = 0
	}
	return nil
}
