package esi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fastRetry keeps backoff in the millisecond range for tests.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.MaxBackoff)
	}
}

func TestRetryConfig_ForClass(t *testing.T) {
	base := DefaultRetryConfig()

	tests := []struct {
		class       ErrorClass
		wantInitial time.Duration
		wantMax     time.Duration
	}{
		{ErrorClassServer, time.Second, 30 * time.Second},
		{ErrorClassNetwork, 2 * time.Second, 30 * time.Second},
		{ErrorClassRateLimit, 5 * time.Second, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			got := base.forClass(tt.class)
			if got.InitialBackoff != tt.wantInitial {
				t.Errorf("InitialBackoff = %v, want %v", got.InitialBackoff, tt.wantInitial)
			}
			if got.MaxBackoff != tt.wantMax {
				t.Errorf("MaxBackoff = %v, want %v", got.MaxBackoff, tt.wantMax)
			}
		})
	}
}

func TestRetryWithBackoff(t *testing.T) {
	serverErr := &Error{StatusCode: 500, Class: ErrorClassServer}
	clientErr := &Error{StatusCode: 400, Class: ErrorClassClient}

	tests := []struct {
		name         string
		failures     int
		class        ErrorClass
		failErr      error
		wantAttempts int
		wantErr      error
	}{
		{name: "success first try", failures: 0, wantAttempts: 1},
		{name: "success after retry", failures: 2, class: ErrorClassServer, failErr: serverErr, wantAttempts: 3},
		{name: "exhausted", failures: 10, class: ErrorClassServer, failErr: serverErr, wantAttempts: 3, wantErr: ErrRetryExhausted},
		{name: "client error not retried", failures: 10, class: ErrorClassClient, failErr: clientErr, wantAttempts: 1, wantErr: clientErr},
		{name: "context error not retried", failures: 10, failErr: context.DeadlineExceeded, wantAttempts: 1, wantErr: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := retryWithBackoff(context.Background(), fastRetry(3), zerolog.Nop(), func() (ErrorClass, error) {
				attempts++
				if attempts <= tt.failures {
					return tt.class, tt.failErr
				}
				return "", nil
			})

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryWithBackoff_ExhaustedKeepsCause(t *testing.T) {
	cause := &Error{StatusCode: 503, Class: ErrorClassServer}
	err := retryWithBackoff(context.Background(), fastRetry(2), zerolog.Nop(), func() (ErrorClass, error) {
		return ErrorClassServer, cause
	})

	var esiErr *Error
	if !errors.As(err, &esiErr) {
		t.Fatalf("error %v should wrap *Error", err)
	}
	if esiErr.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", esiErr.StatusCode)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, cfg, zerolog.Nop(), func() (ErrorClass, error) {
			attempts++
			return ErrorClassServer, errors.New("boom")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("error = %v, want %v", err, ErrContextCancelled)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on context cancellation")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 10,
	}

	start := time.Now()
	retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func() (ErrorClass, error) {
		return ErrorClassServer, errors.New("boom")
	})

	// Three waits of at most 6ms each (5ms + 20% jitter).
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("elapsed = %v, backoff was not capped", elapsed)
	}
}
