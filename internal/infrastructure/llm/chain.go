package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"NarrativeScanner/internal/domain"
	"NarrativeScanner/internal/ports"
)

// RateLimiter enforces a per-minute request ceiling with a sliding window.
// Reserve reports whether another request may start now; callers that get
// false move on to the next provider instead of waiting.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

// NewRateLimiter allows limit requests per minute. limit <= 0 disables
// limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: time.Minute,
		now:    time.Now,
	}
}

// SetClock overrides the time source in tests.
func (r *RateLimiter) SetClock(now func() time.Time) {
	r.now = now
}

// Reserve records a call slot if capacity remains in the current window.
func (r *RateLimiter) Reserve() bool {
	if r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	kept := r.calls[:0]
	for _, t := range r.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.calls = kept

	if len(r.calls) >= r.limit {
		return false
	}
	r.calls = append(r.calls, now)
	return true
}

// Remaining reports unused capacity in the current window.
func (r *RateLimiter) Remaining() int {
	if r.limit <= 0 {
		return int(^uint(0) >> 1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	active := 0
	for _, t := range r.calls {
		if t.After(cutoff) {
			active++
		}
	}
	return r.limit - active
}

// link pairs a provider with its rate limiter.
type link struct {
	provider ports.TextClassifier
	limiter  *RateLimiter
}

// Chain tries providers in order, skipping any that are rate limited and
// falling through on errors. It satisfies ports.TextClassifier itself so
// callers never see which provider answered.
type Chain struct {
	links  []link
	logger *slog.Logger
}

var _ ports.TextClassifier = (*Chain)(nil)

func NewChain(logger *slog.Logger) *Chain {
	return &Chain{logger: logger}
}

// Add appends a provider with a per-minute request limit.
func (c *Chain) Add(provider ports.TextClassifier, requestsPerMinute int) *Chain {
	if provider != nil {
		c.links = append(c.links, link{
			provider: provider,
			limiter:  NewRateLimiter(requestsPerMinute),
		})
	}
	return c
}

// Name identifies the chain in logs.
func (c *Chain) Name() string {
	return "chain"
}

// Len reports the number of configured providers.
func (c *Chain) Len() int {
	return len(c.links)
}

// Complete walks the chain until a provider answers. When every provider
// is exhausted or failing it returns domain.ErrProviderUnavailable so
// callers can fall back to lexical analysis.
func (c *Chain) Complete(ctx context.Context, system, prompt string) (string, error) {
	if len(c.links) == 0 {
		return "", fmt.Errorf("no providers configured: %w", domain.ErrProviderUnavailable)
	}

	var errs []error
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !l.limiter.Reserve() {
			c.debug("provider rate limited, trying next", "provider", l.provider.Name())
			continue
		}

		out, err := l.provider.Complete(ctx, system, prompt)
		if err != nil {
			c.debug("provider failed, trying next", "provider", l.provider.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", l.provider.Name(), err))
			continue
		}
		return out, nil
	}

	errs = append(errs, domain.ErrProviderUnavailable)
	return "", errors.Join(errs...)
}

func (c *Chain) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
