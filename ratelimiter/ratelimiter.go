// Package ratelimiter implements the shared per-LLM-model rate limiter
// (spec.md §4.6): one limiter instance per distinct model name, process-wide,
// enforcing max_requests per period_seconds with a blocking acquire.
package ratelimiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Limiter tracks request timestamps for a single model within a sliding
// window and blocks Acquire callers once the window is full.
type Limiter struct {
	mu          sync.Mutex
	timestamps  []time.Time
	maxRequests int
	period      time.Duration
}

// NewLimiter constructs a Limiter for a single model.
func NewLimiter(maxRequests int, period time.Duration) *Limiter {
	return &Limiter{maxRequests: maxRequests, period: period}
}

// Acquire blocks until a slot is available, pruning timestamps older than
// now-period and sleeping (interruptibly on ctx) until the oldest kept
// timestamp exits the window, then retrying the prune — spec.md §4.6.
func (l *Limiter) Acquire(ctx context.Context, modelName string) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}
		slog.Info("rate limiter: waiting for window", "model", modelName, "delay", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// tryAcquire prunes expired timestamps and either records now and succeeds,
// or returns the duration to wait before the oldest kept timestamp exits the
// window.
func (l *Limiter) tryAcquire() (wait time.Duration, acquired bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.period)

	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept

	if len(l.timestamps) < l.maxRequests {
		l.timestamps = append(l.timestamps, now)
		return 0, true
	}

	oldest := l.timestamps[0]
	return oldest.Add(l.period).Sub(now), false
}

// Registry is the process-wide map of model name to Limiter. Registry is
// safe for concurrent use by multiple Downloader/agent goroutines.
type Registry struct {
	limiters sync.Map // model name (string) -> *Limiter
	defaults RegistryDefaults
}

// RegistryDefaults supplies the max_requests/period_seconds used the first
// time a previously-unseen model name is acquired.
type RegistryDefaults struct {
	MaxRequests   int
	PeriodSeconds int
}

// NewRegistry builds a Registry that lazily creates a Limiter per model
// name using defaults on first use.
func NewRegistry(defaults RegistryDefaults) *Registry {
	return &Registry{defaults: defaults}
}

// Configure pre-registers an explicit (max_requests, period_seconds) budget
// for modelName, overriding the Registry's defaults for that name. Used at
// startup to give the basic and light agent tiers their own limit (the
// supplementary model is not pre-registered and falls back to the
// Registry's defaults) (spec.md §6.1's per-tier REQUEST_LIMIT/
// REQUEST_LIMIT_PERIOD_SECONDS vars) instead of sharing one process-wide
// default across every model name.
func (r *Registry) Configure(modelName string, maxRequests, periodSeconds int) {
	r.limiters.Store(modelName, NewLimiter(maxRequests, time.Duration(periodSeconds)*time.Second))
}

// Acquire blocks on the Limiter for modelName, creating it with the
// Registry's defaults if this is the first time the model name is seen.
func (r *Registry) Acquire(ctx context.Context, modelName string) error {
	limiter, err := r.limiterFor(modelName)
	if err != nil {
		return err
	}
	return limiter.Acquire(ctx, modelName)
}

func (r *Registry) limiterFor(modelName string) (*Limiter, error) {
	if existing, ok := r.limiters.Load(modelName); ok {
		return existing.(*Limiter), nil
	}
	if r.defaults.MaxRequests <= 0 || r.defaults.PeriodSeconds <= 0 {
		return nil, fmt.Errorf("ratelimiter: no defaults configured for model %q", modelName)
	}
	fresh := NewLimiter(r.defaults.MaxRequests, time.Duration(r.defaults.PeriodSeconds)*time.Second)
	actual, _ := r.limiters.LoadOrStore(modelName, fresh)
	return actual.(*Limiter), nil
}
