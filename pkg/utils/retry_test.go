package utils

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Factor: 1, MaxDelay: time.Millisecond}
}

func TestRetryTransient_RetriesConnectionErrors(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryTransient_DoesNotRetryLogicErrors(t *testing.T) {
	sentinel := errors.New("constraint violated")
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryTransient_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := RetryTransient(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return io.EOF
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestIsTransientStorageErr(t *testing.T) {
	if IsTransientStorageErr(nil) {
		t.Fatalf("nil must not be transient")
	}
	if IsTransientStorageErr(context.Canceled) {
		t.Fatalf("cancellation must not be transient")
	}
	if !IsTransientStorageErr(io.ErrUnexpectedEOF) {
		t.Fatalf("unexpected EOF should be transient")
	}
	if IsTransientStorageErr(errors.New("duplicate key value violates unique constraint")) {
		t.Fatalf("plain errors must not be transient")
	}
}
