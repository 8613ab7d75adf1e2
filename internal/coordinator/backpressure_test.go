package coordinator

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBasicAcquireRelease(t *testing.T) {
	l := newAgentLimiter(2)
	ctx := context.Background()

	if err := l.Acquire(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire(ctx, false); err != nil {
		t.Fatal(err)
	}
	if got := l.InFlight(); got != 2 {
		t.Fatalf("InFlight = %d, want 2", got)
	}

	l.Release()
	l.Release()
	if got := l.InFlight(); got != 0 {
		t.Fatalf("InFlight = %d, want 0", got)
	}
}

func TestLimiterBlocksAtCapacity(t *testing.T) {
	l := newAgentLimiter(1)
	ctx := context.Background()

	if err := l.Acquire(ctx, false); err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx, false); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block at capacity")
	case <-time.After(30 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("released slot never reached the waiter")
	}
}

func TestLimiterEmergencyJumpsQueue(t *testing.T) {
	l := newAgentLimiter(1)
	ctx := context.Background()

	if err := l.Acquire(ctx, false); err != nil {
		t.Fatal(err)
	}

	normal := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx, false); err == nil {
			close(normal)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	emergency := make(chan struct{})
	go func() {
		if err := l.Acquire(ctx, true); err == nil {
			close(emergency)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	// The emergency waiter queued later but gets the slot first.
	l.Release()
	select {
	case <-emergency:
	case <-normal:
		t.Fatal("normal waiter served before the emergency")
	case <-time.After(time.Second):
		t.Fatal("no waiter served")
	}

	l.Release()
	select {
	case <-normal:
	case <-time.After(time.Second):
		t.Fatal("normal waiter starved")
	}
}

func TestLimiterAcquireHonorsContext(t *testing.T) {
	l := newAgentLimiter(1)
	if err := l.Acquire(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, false); err == nil {
		t.Fatal("expected context deadline error")
	}

	// The canceled waiter must not leak a queue entry.
	l.Release()
	if err := l.Acquire(context.Background(), false); err != nil {
		t.Fatal(err)
	}
}
