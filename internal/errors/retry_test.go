package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func quickConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), quickConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewTransient(errors.New("blip"), "")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	perm := NewPermanent(errors.New("bad request"), "")
	_, err := RetryWithResult(context.Background(), quickConfig(5), func(ctx context.Context) (string, error) {
		calls++
		return "", perm
	})
	if !errors.Is(err, perm) {
		t.Fatalf("want the permanent error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), quickConfig(2), func(ctx context.Context) (string, error) {
		calls++
		return "", NewTransient(errors.New("still down"), "")
	})
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	// First attempt plus MaxAttempts retries.
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithResult(ctx, RetryConfig{MaxAttempts: 10, BaseDelay: time.Hour}, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransient(errors.New("blip"), "")
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestBackoffDelayCapsAtMax(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	if d := backoffDelay(10, config); d != 4*time.Second {
		t.Fatalf("delay %v, want cap %v", d, 4*time.Second)
	}
	if d := backoffDelay(0, config); d != time.Second {
		t.Fatalf("delay %v, want base %v", d, time.Second)
	}
}

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", NewTransient(errors.New("x"), ""), true},
		{"permanent", NewPermanent(errors.New("x"), ""), false},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransient(errors.New("x"), "")), true},
		{"permanent wrapping transient cause", NewPermanent(NewTransient(errors.New("x"), ""), ""), true},
		{"plain", errors.New("x"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestTransientHTTPStatus(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		if !TransientHTTPStatus(status) {
			t.Errorf("status %d should be transient", status)
		}
	}
	for _, status := range []int{200, 400, 401, 404, 422} {
		if TransientHTTPStatus(status) {
			t.Errorf("status %d should not be transient", status)
		}
	}
}

func TestDegradedCarriesFallback(t *testing.T) {
	err := NewDegraded(errors.New("kb offline"), "knowledge base unreachable", "general guidance")
	if !IsDegraded(err) {
		t.Fatal("want IsDegraded true")
	}
	var degraded *DegradedError
	if !errors.As(err, &degraded) || degraded.FallbackContent != "general guidance" {
		t.Fatalf("fallback content lost: %+v", degraded)
	}
}
