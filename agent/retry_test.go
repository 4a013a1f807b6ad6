package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Microsecond},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("transient %d", calls)
			}
			return "ok", nil
		}, nil)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad credentials")
	calls := 0
	_, err := Retry(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Microsecond},
		func(context.Context) (int, error) {
			calls++
			return 0, fatal
		},
		func(err error) bool { return !errors.Is(err, fatal) })
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Microsecond},
		func(context.Context) (int, error) {
			calls++
			return 0, errors.New("still down")
		}, nil)
	if err == nil {
		t.Fatal("want error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour},
		func(context.Context) (int, error) {
			return 0, errors.New("down")
		}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
