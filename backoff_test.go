package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoffSucceedsEventually(t *testing.T) {
	p := BackoffPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5, Jitter: 0.1}
	attempts := 0
	got, err := retryWithBackoff(context.Background(), p, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoffExhausts(t *testing.T) {
	p := BackoffPolicy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3, Jitter: 0.1}
	attempts := 0
	_, err := retryWithBackoff(context.Background(), p, func() (int, error) {
		attempts++
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithBackoffRespectsCancellation(t *testing.T) {
	p := BackoffPolicy{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 10, Jitter: 0.1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := retryWithBackoff(ctx, p, func() (int, error) {
		return 0, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error when context is already cancelled")
	}
}
