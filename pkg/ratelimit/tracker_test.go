package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func headers(remain, reset string) http.Header {
	h := http.Header{}
	if remain != "" {
		h.Set("X-ESI-Error-Limit-Remain", remain)
	}
	if reset != "" {
		h.Set("X-ESI-Error-Limit-Reset", reset)
	}
	return h
}

func TestUpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name        string
		remain      string
		reset       string
		wantRemain  int
		shouldError bool
	}{
		{name: "healthy", remain: "100", reset: "60", wantRemain: 100},
		{name: "warning", remain: "15", reset: "30", wantRemain: 15},
		{name: "critical", remain: "3", reset: "45", wantRemain: 3},
		{name: "no headers keeps default", wantRemain: defaultErrorsRemaining},
		{name: "invalid remain", remain: "abc", reset: "60", wantRemain: defaultErrorsRemaining, shouldError: true},
		{name: "missing reset", remain: "50", wantRemain: defaultErrorsRemaining, shouldError: true},
		{name: "invalid reset", remain: "50", reset: "soon", wantRemain: defaultErrorsRemaining, shouldError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := NewTracker(nil, zerolog.Nop())

			err := tracker.UpdateFromHeaders(ctx, headers(tt.remain, tt.reset))
			if tt.shouldError && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.ErrorsRemaining != tt.wantRemain {
				t.Errorf("ErrorsRemaining = %d, want %d", state.ErrorsRemaining, tt.wantRemain)
			}
		})
	}
}

func TestAllow(t *testing.T) {
	tests := []struct {
		name   string
		remain string
		allow  bool
	}{
		{"healthy", "100", true},
		{"warning throttles but allows", "10", true},
		{"critical blocks", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := NewTracker(nil, zerolog.Nop())
			tracker.SetThrottle(time.Millisecond)

			if err := tracker.UpdateFromHeaders(ctx, headers(tt.remain, "60")); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			allowed, err := tracker.Allow(ctx)
			if err != nil {
				t.Fatalf("Allow() error = %v", err)
			}
			if allowed != tt.allow {
				t.Errorf("Allow() = %v, want %v", allowed, tt.allow)
			}
		})
	}
}

func TestAllow_ThrottleRespectsContext(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.SetThrottle(time.Hour)

	if err := tracker.UpdateFromHeaders(context.Background(), headers("10", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	allowed, err := tracker.Allow(ctx)
	if err != context.DeadlineExceeded {
		t.Errorf("Allow() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if allowed {
		t.Error("Allow() should not allow after context expiry")
	}
	if time.Since(start) > time.Second {
		t.Error("Allow() ignored context cancellation")
	}
}

func TestSetThrottle_ConcurrentWithAllow(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil, zerolog.Nop())
	if err := tracker.UpdateFromHeaders(ctx, headers("10", "60")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				tracker.SetThrottle(time.Duration(j%2) * time.Microsecond)
			}
			return nil
		})
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				if _, err := tracker.Allow(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
}

func TestAllow_CriticalWindowReset(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	// Reset in 0 seconds: the window is over by the time Allow runs.
	if err := tracker.UpdateFromHeaders(context.Background(), headers("0", "0")); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	allowed, err := tracker.Allow(context.Background())
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("Allow() should pass once the error window reset")
	}
}
