// Package fallback implements the Fallback Coordinator (C7): per-provider
// health tracking and ordered failover, invoked by the Embedding
// Pipeline's Dispatcher once its own in-line retries are exhausted.
package fallback

import (
	"context"
	"sync"
	"time"

	"github.com/aman-cerp/semindex/internal/embed"
	ierrors "github.com/aman-cerp/semindex/internal/errors"
)

const (
	maxConsecutiveFailures = 3
	rateLimitMinCooldown   = 60 * time.Second
	authCooldown           = 5 * time.Minute
	responseTimeWindow     = 10
)

// health is one provider's rolling reliability state. Consecutive-failure
// tripping and half-open recovery are delegated to a CircuitBreaker;
// cooldownUntil layers the failure-kind-specific delays (rate-limit
// retry-after, auth lockout) on top of it.
type health struct {
	breaker       *ierrors.CircuitBreaker
	cooldownUntil time.Time
	responseTimes []time.Duration // ring buffer, most recent last
}

func newHealth(providerID string) *health {
	return &health{
		breaker: ierrors.NewCircuitBreaker(providerID,
			ierrors.WithMaxFailures(maxConsecutiveFailures),
			ierrors.WithResetTimeout(rateLimitMinCooldown)),
	}
}

func (h *health) recordSuccess(d time.Duration) {
	h.breaker.RecordSuccess()
	h.responseTimes = append(h.responseTimes, d)
	if len(h.responseTimes) > responseTimeWindow {
		h.responseTimes = h.responseTimes[len(h.responseTimes)-responseTimeWindow:]
	}
}

func (h *health) recordFailure(f *embed.Failure, now time.Time) {
	h.breaker.RecordFailure()

	switch f.Kind {
	case embed.FailureRateLimit:
		retryAfter := time.Duration(f.RetryAfterMS) * time.Millisecond
		if retryAfter < rateLimitMinCooldown {
			retryAfter = rateLimitMinCooldown
		}
		h.cooldownUntil = now.Add(retryAfter)
	case embed.FailureAuth:
		h.cooldownUntil = now.Add(authCooldown)
	}
}

func (h *health) available(now time.Time) bool {
	if now.Before(h.cooldownUntil) {
		return false
	}
	return h.breaker.Allow()
}

func (h *health) healthy() bool {
	return h.breaker.State() == ierrors.StateClosed
}

// Coordinator selects among a configured provider order, skipping
// candidates in cooldown or with too many consecutive failures, and
// tracks each provider's rolling health.
type Coordinator struct {
	mu        sync.Mutex
	providers []embed.Provider // [primary, secondaries...], configured order
	states    map[string]*health
	now       func() time.Time
}

// New builds a Coordinator over providers in fallback order (the first
// is the primary). The order is fixed at construction and used exactly as
// given; config.BuildProviders supplies default_provider first and the
// remaining providers sorted by name.
func New(providers []embed.Provider) *Coordinator {
	states := make(map[string]*health, len(providers))
	for _, p := range providers {
		states[p.ID()] = newHealth(p.ID())
	}
	return &Coordinator{providers: providers, states: states, now: time.Now}
}

// Embed tries each available provider in order, recording health
// transitions as it goes. It returns the first success, or a terminal
// AllProvidersFailed error naming every provider attempted.
func (c *Coordinator) Embed(ctx context.Context, texts []string) (vectors [][]float32, providerID, modelID string, err error) {
	now := c.now()
	var attempted []string
	var lastErr error

	for _, p := range c.providers {
		c.mu.Lock()
		st := c.states[p.ID()]
		available := st.available(now)
		c.mu.Unlock()
		if !available {
			continue
		}

		attempted = append(attempted, p.ID())
		start := time.Now()
		vecs, embErr := p.Embed(ctx, texts)
		elapsed := time.Since(start)

		c.mu.Lock()
		if embErr == nil {
			st.recordSuccess(elapsed)
			c.mu.Unlock()
			return vecs, p.ID(), p.ModelID(), nil
		}
		st.recordFailure(embed.AsFailure(embErr), c.now())
		c.mu.Unlock()
		lastErr = embErr
	}

	return nil, "", "", ierrors.AllProvidersFailedError(attempted, lastErr)
}

// Healthy reports a provider's current health flag, for telemetry.
func (c *Coordinator) Healthy(providerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[providerID]
	return ok && st.healthy()
}
