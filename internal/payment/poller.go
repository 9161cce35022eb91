package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/momo-gateway/internal/momo"
	"github.com/noah-isme/momo-gateway/internal/obs"
)

// Default poll policy for resolving a submitted request-to-pay.
const (
	DefaultPollMaxAttempts = 8
	DefaultPollInterval    = 5 * time.Second
)

// StatusFetcher fetches the provider-side status of a request-to-pay.
type StatusFetcher interface {
	RequestToPayStatus(ctx context.Context, token string, referenceID uuid.UUID) (momo.RequestToPayStatus, error)
}

// TokenSource hands out bearer tokens and supports invalidation after a 401.
type TokenSource interface {
	GetToken(ctx context.Context) (momo.AccessToken, error)
	Invalidate()
}

// TerminalCache remembers terminal outcomes per reference ID so a reference
// is never re-polled once resolved. Redis-backed when R is set, otherwise an
// in-process map.
type TerminalCache struct {
	R   *redis.Client
	TTL time.Duration

	mu    sync.Mutex
	local map[uuid.UUID]Outcome
}

func (c *TerminalCache) key(ref uuid.UUID) string { return "payterm:" + ref.String() }

// Get returns the cached terminal outcome for the reference, if any.
func (c *TerminalCache) Get(ctx context.Context, ref uuid.UUID) (Outcome, bool) {
	if c == nil {
		return "", false
	}
	if c.R != nil {
		v, err := c.R.Get(ctx, c.key(ref)).Result()
		if err != nil {
			return "", false
		}
		return Outcome(v), Outcome(v).Terminal()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.local[ref]
	return o, ok
}

// Put records a terminal outcome. Non-terminal outcomes are ignored.
func (c *TerminalCache) Put(ctx context.Context, ref uuid.UUID, o Outcome) {
	if c == nil || !o.Terminal() {
		return
	}
	if c.R != nil {
		ttl := c.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		_ = c.R.Set(ctx, c.key(ref), string(o), ttl).Err()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		c.local = make(map[uuid.UUID]Outcome)
	}
	c.local[ref] = o
}

// Resolution is the result of polling a reference to completion.
type Resolution struct {
	Outcome                Outcome
	FinancialTransactionID string
	Attempts               int
}

// Poller drives a submitted request-to-pay to a terminal outcome by polling
// the provider with a bounded attempt budget.
type Poller struct {
	Provider    StatusFetcher
	Tokens      TokenSource
	Cache       *TerminalCache
	MaxAttempts int
	Interval    time.Duration
	Logger      zerolog.Logger
}

// Resolve polls until the provider reports a terminal status or the attempt
// budget is exhausted. Transport failures and auth retries consume attempts.
// When the budget runs out, the outcome is TIMEOUT unless every single
// attempt failed at the transport level, in which case it is ERROR. Terminal
// outcomes are cached and returned as-is on subsequent calls.
func (p *Poller) Resolve(ctx context.Context, referenceID uuid.UUID) (Resolution, error) {
	if cached, ok := p.Cache.Get(ctx, referenceID); ok {
		return Resolution{Outcome: cached}, nil
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	failures := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if obs.PollAttemptsTotal != nil {
			obs.PollAttemptsTotal.Inc()
		}
		status, err := p.poll(ctx, referenceID)
		switch {
		case err == nil && status.Status == momo.StatusSuccessful:
			return p.resolved(ctx, referenceID, Resolution{
				Outcome:                OutcomeSuccessful,
				FinancialTransactionID: status.FinancialTransactionID,
				Attempts:               attempt,
			}), nil
		case err == nil && status.Status == momo.StatusFailed:
			return p.resolved(ctx, referenceID, Resolution{Outcome: OutcomeFailed, Attempts: attempt}), nil
		case err == nil:
			// Still pending; wait for the next attempt.
		case errors.Is(err, momo.ErrMalformed):
			res := p.resolved(ctx, referenceID, Resolution{Outcome: OutcomeError, Attempts: attempt})
			return res, err
		case errors.Is(err, momo.ErrUnauthorized):
			p.Tokens.Invalidate()
			failures++
			p.Logger.Warn().Stringer("reference_id", referenceID).Int("attempt", attempt).
				Msg("poll rejected with 401, token invalidated")
		case ctx.Err() != nil:
			return Resolution{Attempts: attempt}, ctx.Err()
		default:
			failures++
			p.Logger.Warn().Stringer("reference_id", referenceID).Int("attempt", attempt).
				Err(err).Msg("poll attempt failed")
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Resolution{Attempts: attempt}, ctx.Err()
		case <-time.After(interval):
		}
	}

	outcome := OutcomeTimeout
	if failures == maxAttempts {
		outcome = OutcomeError
	}
	return p.resolved(ctx, referenceID, Resolution{Outcome: outcome, Attempts: maxAttempts}), nil
}

func (p *Poller) poll(ctx context.Context, referenceID uuid.UUID) (momo.RequestToPayStatus, error) {
	token, err := p.Tokens.GetToken(ctx)
	if err != nil {
		return momo.RequestToPayStatus{}, err
	}
	return p.Provider.RequestToPayStatus(ctx, token.Value, referenceID)
}

func (p *Poller) resolved(ctx context.Context, referenceID uuid.UUID, res Resolution) Resolution {
	p.Cache.Put(ctx, referenceID, res.Outcome)
	if obs.PollResolutionsTotal != nil {
		obs.PollResolutionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	}
	p.Logger.Info().Stringer("reference_id", referenceID).
		Str("outcome", string(res.Outcome)).Int("attempts", res.Attempts).
		Msg("payment resolved")
	return res
}
