// Package pagecache caches the pages of a paginated source in Redis so
// repeated iterations within the data's lifetime skip the upstream fetch.
package pagecache

import (
	"encoding/json"
	"time"
)

// Entry is one cached page.
type Entry struct {
	// Items is the page encoded as a JSON array.
	Items json.RawMessage `json:"items"`

	// Count is the number of items on the page.
	Count int `json:"count"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this page.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
