// Package ratelimit tracks the ESI error limit and gates page requests.
// It reads the X-ESI-Error-Limit-Remain and X-ESI-Error-Limit-Reset
// headers so an iterator stops hammering ESI before the IP gets banned.
package ratelimit

import (
	"time"
)

// RedisKey is the hash holding the shared error limit state.
const RedisKey = "esi:pager:rate_limit"

// Thresholds for rate limit decisions.
const (
	// ErrorThresholdCritical blocks requests below this many remaining errors.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning throttles requests below this many remaining errors.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy marks the state healthy at or above this value.
	ErrorThresholdHealthy = 50

	// defaultErrorsRemaining is assumed until ESI reports a value.
	defaultErrorsRemaining = 100
)

// State is the ESI error limit as last reported.
type State struct {
	// ErrorsRemaining comes from X-ESI-Error-Limit-Remain.
	ErrorsRemaining int `json:"errors_remaining"`

	// ResetAt is derived from X-ESI-Error-Limit-Reset (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were read.
	LastUpdate time.Time `json:"last_update"`
}

// defaultState is the optimistic state used before any response was seen.
func defaultState() State {
	now := time.Now()
	return State{
		ErrorsRemaining: defaultErrorsRemaining,
		ResetAt:         now.Add(60 * time.Second),
		LastUpdate:      now,
	}
}

// IsHealthy reports whether no restriction applies.
func (s State) IsHealthy() bool {
	return s.ErrorsRemaining >= ErrorThresholdHealthy || s.windowReset()
}

// IsStale reports whether the state is older than maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock reports whether requests must be blocked.
// A window that has already reset never blocks.
func (s State) NeedsCriticalBlock() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical && !s.windowReset()
}

// NeedsThrottling reports whether requests should be slowed down.
func (s State) NeedsThrottling() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock() && !s.windowReset()
}

// TimeUntilReset returns the duration until the error window resets,
// or 0 if it already has.
func (s State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

func (s State) windowReset() bool {
	return !s.ResetAt.IsZero() && time.Now().After(s.ResetAt)
}
