package ratelimit

import (
	"testing"
	"time"
)

func TestState_Thresholds(t *testing.T) {
	future := time.Now().Add(30 * time.Second)

	tests := []struct {
		name     string
		remain   int
		resetAt  time.Time
		healthy  bool
		throttle bool
		block    bool
	}{
		{"healthy", 100, future, true, false, false},
		{"at healthy threshold", ErrorThresholdHealthy, future, true, false, false},
		{"between warning and healthy", 30, future, false, false, false},
		{"warning", 15, future, false, true, false},
		{"at critical threshold", ErrorThresholdCritical, future, false, true, false},
		{"critical", 3, future, false, false, true},
		{"zero", 0, future, false, false, true},
		{"critical but window reset", 0, time.Now().Add(-time.Second), true, false, false},
		{"warning but window reset", 10, time.Now().Add(-time.Second), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{ErrorsRemaining: tt.remain, ResetAt: tt.resetAt, LastUpdate: time.Now()}

			if got := s.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := s.NeedsThrottling(); got != tt.throttle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.throttle)
			}
			if got := s.NeedsCriticalBlock(); got != tt.block {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.block)
			}
		})
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	s := State{ResetAt: time.Now().Add(10 * time.Second)}
	if d := s.TimeUntilReset(); d <= 9*time.Second || d > 10*time.Second {
		t.Errorf("TimeUntilReset() = %v, want about 10s", d)
	}

	s.ResetAt = time.Now().Add(-time.Minute)
	if d := s.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() after reset = %v, want 0", d)
	}
}

func TestState_IsStale(t *testing.T) {
	s := State{LastUpdate: time.Now().Add(-2 * time.Minute)}
	if !s.IsStale(time.Minute) {
		t.Error("expected state older than maxAge to be stale")
	}
	if s.IsStale(5 * time.Minute) {
		t.Error("expected state younger than maxAge to be fresh")
	}
}

func TestDefaultState(t *testing.T) {
	s := defaultState()
	if s.ErrorsRemaining != defaultErrorsRemaining {
		t.Errorf("ErrorsRemaining = %d, want %d", s.ErrorsRemaining, defaultErrorsRemaining)
	}
	if !s.IsHealthy() {
		t.Error("default state should be healthy")
	}
}
