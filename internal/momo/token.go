package momo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/momo-gateway/internal/obs"
)

// Credentials holds the provisioned API user and key for the collection
// product. They are created once (see cmd/tools/provision) and never mutated.
type Credentials struct {
	UserID string
	APIKey string
}

// AccessToken is a short-lived bearer token issued by the provider.
type AccessToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func newAccessToken(value string, expiresInSec int64) AccessToken {
	now := time.Now()
	if expiresInSec <= 0 {
		expiresInSec = 3600
	}
	return AccessToken{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(expiresInSec) * time.Second),
	}
}

// ValidFor reports whether the token remains usable for at least the given margin.
func (t AccessToken) ValidFor(margin time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return time.Now().Before(t.ExpiresAt.Add(-margin))
}

// DefaultTokenSafetyMargin is subtracted from the token expiry when deciding
// whether a cached token may still be handed out.
const DefaultTokenSafetyMargin = 60 * time.Second

// TokenManager caches the provider bearer token and refreshes it before
// expiry. Refreshes are single-flight: concurrent callers share one request
// to the token endpoint.
type TokenManager struct {
	Client       *Client
	Credentials  Credentials
	SafetyMargin time.Duration

	mu     sync.Mutex
	cached AccessToken
	group  singleflight.Group
}

// GetToken returns a token valid for at least the safety margin, refreshing
// from the provider when the cached one is missing or too close to expiry.
func (m *TokenManager) GetToken(ctx context.Context) (AccessToken, error) {
	margin := m.SafetyMargin
	if margin <= 0 {
		margin = DefaultTokenSafetyMargin
	}
	m.mu.Lock()
	cached := m.cached
	m.mu.Unlock()
	if cached.ValidFor(margin) {
		return cached, nil
	}

	v, err, _ := m.group.Do("collection", func() (any, error) {
		m.mu.Lock()
		cached := m.cached
		m.mu.Unlock()
		if cached.ValidFor(margin) {
			return cached, nil
		}
		// The exchange is shared by every waiter in the flight group, so it
		// must not die with the leader's context.
		fresh, err := m.Client.FetchToken(context.WithoutCancel(ctx), m.Credentials)
		if err != nil {
			if obs.TokenRefreshTotal != nil {
				obs.TokenRefreshTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		m.mu.Lock()
		m.cached = fresh
		m.mu.Unlock()
		if obs.TokenRefreshTotal != nil {
			obs.TokenRefreshTotal.WithLabelValues("ok").Inc()
		}
		return fresh, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return v.(AccessToken), nil
}

// Invalidate discards the cached token. Called after a 401 so the next
// GetToken performs a fresh exchange.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.cached = AccessToken{}
	m.mu.Unlock()
}
