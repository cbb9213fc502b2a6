package util

import (
	"context"
	"errors"
	"testing"
)

func TestRetryErr(t *testing.T) {
	attempts := 0
	err := RetryErr(3, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryErr() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryErrExhausted(t *testing.T) {
	wantErr := errors.New("always fails")
	attempts := 0
	err := RetryErr(3, func() error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("RetryErr() error = %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryErrZeroTries(t *testing.T) {
	attempts := 0
	if err := RetryErr(0, func() error {
		attempts++
		return nil
	}); err != nil {
		t.Fatalf("RetryErr() error = %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryErrWithContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryErrWithContext(ctx, 5, func(context.Context) error {
		attempts++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RetryErrWithContext() error = %v, want %v", err, context.Canceled)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestRetryErrWithContextStopsOnContextError(t *testing.T) {
	attempts := 0
	err := RetryErrWithContext(context.Background(), 5, func(context.Context) error {
		attempts++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RetryErrWithContext() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
