package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "test-model"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}

func TestLimiterBlocksUntilWindowFrees(t *testing.T) {
	l := NewLimiter(1, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx, "m"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	start := time.Now()
	if err := l.Acquire(ctx, "m"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 30*time.Millisecond {
		t.Errorf("second Acquire returned after %v, expected to wait close to the window", elapsed)
	}
}

func TestLimiterRespectsContextCancellation(t *testing.T) {
	l := NewLimiter(1, time.Hour)
	ctx := context.Background()
	if err := l.Acquire(ctx, "m"); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if err := l.Acquire(cancelCtx, "m"); err == nil {
		t.Error("expected Acquire to return an error once context is cancelled")
	}
}

func TestRegistryCreatesLimiterPerModel(t *testing.T) {
	r := NewRegistry(RegistryDefaults{MaxRequests: 1, PeriodSeconds: 3600})
	ctx := context.Background()

	if err := r.Acquire(ctx, "model-a"); err != nil {
		t.Fatalf("acquire model-a: %v", err)
	}
	// A distinct model name must have its own independent budget.
	if err := r.Acquire(ctx, "model-b"); err != nil {
		t.Fatalf("acquire model-b: %v", err)
	}
}

func TestRegistryRequiresDefaultsForUnseenModel(t *testing.T) {
	r := NewRegistry(RegistryDefaults{})
	if err := r.Acquire(context.Background(), "model-a"); err == nil {
		t.Error("expected error when no defaults are configured")
	}
}

func TestRegistryConfigureOverridesDefaultsForThatModel(t *testing.T) {
	r := NewRegistry(RegistryDefaults{})
	r.Configure("model-a", 1, 3600)

	ctx := context.Background()
	if err := r.Acquire(ctx, "model-a"); err != nil {
		t.Fatalf("acquire pre-configured model-a: %v", err)
	}
	// A model with no pre-registered budget and no defaults still errors.
	if err := r.Acquire(ctx, "model-b"); err == nil {
		t.Error("expected error for an unconfigured model with no defaults")
	}
}
