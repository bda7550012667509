package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

func fastRetries(t *testing.T) {
	t.Helper()
	setRetryIntervals(t, time.Millisecond, 5*time.Millisecond)
}

func setRetryIntervals(t *testing.T, initial, maxInterval time.Duration) {
	t.Helper()
	oldInitial, oldMax := retryInitialInterval, retryMaxInterval
	retryInitialInterval, retryMaxInterval = initial, maxInterval
	t.Cleanup(func() { retryInitialInterval, retryMaxInterval = oldInitial, oldMax })
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	fastRetries(t)

	calls := 0
	err := withRetry(context.Background(), 3, func() error {
		calls++
		if calls < 3 {
			return midea.NewTimeoutError("status", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	fastRetries(t)

	calls := 0
	err := withRetry(context.Background(), 2, func() error {
		calls++
		return midea.NewConnectionLost("status", nil)
	})
	if !midea.IsConnectionLost(err) {
		t.Errorf("withRetry() error = %v, want ConnectionLost", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
}

func TestWithRetry_PermanentStopsAtOnce(t *testing.T) {
	fastRetries(t)

	tests := []struct {
		name string
		err  error
	}{
		{"auth", midea.NewAuthError("rejected", nil)},
		{"validation", midea.NewValidationError("bad setpoint")},
		{"integrity", midea.NewIntegrityError("bad signature")},
		{"plain", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := withRetry(context.Background(), 5, func() error {
				calls++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("withRetry() error = %v, want %v", err, tt.err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	setRetryIntervals(t, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- withRetry(ctx, 10, func() error {
			return midea.NewTimeoutError("status", nil)
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("withRetry() = nil after cancel, want an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("withRetry() did not return after cancel")
	}
}
