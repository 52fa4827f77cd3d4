package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireEnforcesMinInterval(t *testing.T) {
	lim := New(10.0) // 100ms min interval
	ctx := context.Background()
	start := time.Now()
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Errorf("two acquisitions took %v, want >= 100ms", elapsed)
	}
}

func TestAcquireFirstCallDoesNotBlock(t *testing.T) {
	lim := New(1.0)
	ctx := context.Background()
	start := time.Now()
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("first acquire blocked for %v, want immediate", elapsed)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	lim := New(1.0) // 1s min interval
	ctx := context.Background()
	if err := lim.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lim.Acquire(cancelCtx); err == nil {
		t.Fatal("want error from Acquire on an already-canceled context")
	}
}
