package momo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, calls *atomic.Int64, expiresIn int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", n),
			"expires_in":   expiresIn,
		})
	}))
}

func TestGetTokenSingleFlight(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := &TokenManager{Client: &Client{BaseURL: srv.URL}}

	var wg sync.WaitGroup
	tokens := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.GetToken(context.Background())
			require.NoError(t, err)
			tokens[i] = tok.Value
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "concurrent callers must share one refresh")
	for _, v := range tokens {
		require.Equal(t, tokens[0], v)
	}

	// Cached token is reused without another call.
	_, err := m.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())
}

func TestGetTokenRefreshesWhenInsideSafetyMargin(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 30)
	defer srv.Close()

	// A 30s token never satisfies the 60s margin, so each call refreshes.
	m := &TokenManager{Client: &Client{BaseURL: srv.URL}}
	_, err := m.GetToken(context.Background())
	require.NoError(t, err)
	_, err = m.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := &TokenManager{Client: &Client{BaseURL: srv.URL}}
	_, err := m.GetToken(context.Background())
	require.NoError(t, err)
	m.Invalidate()
	_, err = m.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestGetTokenExchangeSurvivesCallerCancellation(t *testing.T) {
	var calls atomic.Int64
	srv := tokenServer(t, &calls, 3600)
	defer srv.Close()

	m := &TokenManager{Client: &Client{BaseURL: srv.URL}}

	// The refresh is shared with other waiters, so a cancelled initiator must
	// not poison the exchange for everyone.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tok, err := m.GetToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok.Value)
	require.Equal(t, int64(1), calls.Load())

	// The fetched token is cached for subsequent callers.
	again, err := m.GetToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, tok.Value, again.Value)
	require.Equal(t, int64(1), calls.Load())
}

func TestGetTokenPropagatesAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := &TokenManager{Client: &Client{BaseURL: srv.URL}}
	_, err := m.GetToken(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}
