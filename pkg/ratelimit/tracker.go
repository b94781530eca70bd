package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	esiErrorsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "esi_errors_remaining",
		Help: "Number of errors remaining in current ESI rate limit window",
	})

	esiRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esi_rate_limit_blocks_total",
		Help: "Total number of page requests blocked due to critical error limit",
	})
)

// DefaultThrottle is the pause applied to each request in the warning zone.
const DefaultThrottle = time.Second

// Tracker monitors the ESI error limit and gates page requests.
//
// State is kept in memory. With a Redis client it is also written to and
// read from RedisKey, so several pagers on one IP share a single view.
type Tracker struct {
	redis    *redis.Client
	logger   zerolog.Logger
	throttle time.Duration

	mu    sync.Mutex
	local State
}

// NewTracker creates a tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:    redisClient,
		logger:   logger,
		throttle: DefaultThrottle,
		local:    defaultState(),
	}
}

// SetThrottle overrides the warning-zone pause (for testing).
func (t *Tracker) SetThrottle(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.throttle = d
}

// GetState returns the current state, preferring the shared copy in Redis.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	t.mu.Lock()
	local := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return local, nil
	}

	fields, err := t.redis.HGetAll(ctx, RedisKey).Result()
	if err != nil {
		return local, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		return local, nil
	}

	remain, err := strconv.Atoi(fields["errors_remaining"])
	if err != nil {
		return local, fmt.Errorf("parse errors_remaining: %w", err)
	}
	resetUnix, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return local, fmt.Errorf("parse reset_at: %w", err)
	}
	updatedUnix, err := strconv.ParseInt(fields["last_update"], 10, 64)
	if err != nil {
		return local, fmt.Errorf("parse last_update: %w", err)
	}

	return State{
		ErrorsRemaining: remain,
		ResetAt:         time.Unix(resetUnix, 0),
		LastUpdate:      time.Unix(updatedUnix, 0),
	}, nil
}

// UpdateFromHeaders records the error limit reported by an ESI response.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-ESI-Error-Limit-Remain")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-ESI-Error-Limit-Remain header: %w", err)
	}

	resetStr := headers.Get("X-ESI-Error-Limit-Reset")
	if resetStr == "" {
		return errors.New("X-ESI-Error-Limit-Reset header missing")
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return fmt.Errorf("parse X-ESI-Error-Limit-Reset header: %w", err)
	}

	now := time.Now()
	state := State{
		ErrorsRemaining: remain,
		ResetAt:         now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate:      now,
	}

	t.mu.Lock()
	t.local = state
	t.mu.Unlock()

	esiErrorsRemaining.Set(float64(remain))

	if t.redis != nil {
		err := t.redis.HSet(ctx, RedisKey,
			"errors_remaining", state.ErrorsRemaining,
			"reset_at", state.ResetAt.Unix(),
			"last_update", state.LastUpdate.Unix(),
		).Err()
		if err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().Int("errors_remaining", remain).Time("reset_at", state.ResetAt).
			Msg("ESI error limit CRITICAL - page requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().Int("errors_remaining", remain).Time("reset_at", state.ResetAt).
			Msg("ESI error limit WARNING - page requests will be throttled")
	default:
		t.logger.Debug().Int("errors_remaining", remain).Msg("ESI error limit state updated")
	}

	return nil
}

// Allow reports whether a page request may be sent now. In the warning
// zone it pauses for the throttle duration first. A Redis failure falls
// back to the local state.
func (t *Tracker) Allow(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable, using local state")
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("ESI error limit critical - blocking page request")
		esiRateLimitBlocksTotal.Inc()
		return false, nil
	}

	t.mu.Lock()
	throttle := t.throttle
	t.mu.Unlock()

	if state.NeedsThrottling() && throttle > 0 {
		t.logger.Warn().
			Int("errors_remaining", state.ErrorsRemaining).
			Dur("throttle", throttle).
			Msg("ESI error limit warning - throttling page request")

		timer := time.NewTimer(throttle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}
