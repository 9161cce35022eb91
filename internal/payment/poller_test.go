package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/momo-gateway/internal/momo"
)

type statusStep struct {
	status momo.RequestToPayStatus
	err    error
}

type scriptedStatus struct {
	mu    sync.Mutex
	steps []statusStep
	calls int
}

func (f *scriptedStatus) RequestToPayStatus(_ context.Context, _ string, _ uuid.UUID) (momo.RequestToPayStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step := f.steps[len(f.steps)-1]
	if f.calls < len(f.steps) {
		step = f.steps[f.calls]
	}
	f.calls++
	return step.status, step.err
}

func (f *scriptedStatus) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticTokens struct {
	mu          sync.Mutex
	err         error
	invalidated int
}

func (s *staticTokens) GetToken(context.Context) (momo.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return momo.AccessToken{}, s.err
	}
	return momo.AccessToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *staticTokens) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func newPoller(provider StatusFetcher, tokens TokenSource, maxAttempts int, interval time.Duration) *Poller {
	return &Poller{
		Provider:    provider,
		Tokens:      tokens,
		Cache:       &TerminalCache{},
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Logger:      zerolog.Nop(),
	}
}

func pending() statusStep {
	return statusStep{status: momo.RequestToPayStatus{Status: momo.StatusPending}}
}

func TestResolveSuccessAfterPendingPolls(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		pending(),
		pending(),
		{status: momo.RequestToPayStatus{Status: momo.StatusSuccessful, FinancialTransactionID: "ftx-1"}},
	}}
	p := newPoller(provider, &staticTokens{}, 8, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccessful, res.Outcome)
	require.Equal(t, "ftx-1", res.FinancialTransactionID)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, provider.callCount())
}

func TestResolveFailedIsTerminal(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{status: momo.RequestToPayStatus{Status: momo.StatusFailed}},
	}}
	p := newPoller(provider, &staticTokens{}, 8, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, 1, res.Attempts)
}

func TestResolveTimeoutAfterBudgetWithNoSleepAfterFinalAttempt(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{pending()}}
	interval := 40 * time.Millisecond
	p := newPoller(provider, &staticTokens{}, 3, interval)

	start := time.Now()
	res, err := p.Resolve(context.Background(), uuid.New())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, OutcomeTimeout, res.Outcome)
	require.Equal(t, 3, provider.callCount())
	// Two waits between three attempts, none after the final one.
	require.GreaterOrEqual(t, elapsed, 2*interval)
	require.Less(t, elapsed, 3*interval)
}

func TestResolveAllTransportFailuresIsError(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{err: errors.New("connection refused")},
	}}
	p := newPoller(provider, &staticTokens{}, 3, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, OutcomeError, res.Outcome)
}

func TestResolveMixedFailuresIsTimeout(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{err: errors.New("connection refused")},
		pending(),
		pending(),
	}}
	p := newPoller(provider, &staticTokens{}, 3, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, OutcomeTimeout, res.Outcome)
}

func TestResolveInvalidatesTokenOn401AndKeepsPolling(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{err: &momo.APIError{StatusCode: 401}},
		{status: momo.RequestToPayStatus{Status: momo.StatusSuccessful}},
	}}
	tokens := &staticTokens{}
	p := newPoller(provider, tokens, 8, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccessful, res.Outcome)
	require.Equal(t, 2, res.Attempts)
	require.Equal(t, 1, tokens.invalidated)
}

func TestResolveMalformedResponseIsError(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{err: momo.ErrMalformed},
	}}
	p := newPoller(provider, &staticTokens{}, 8, time.Millisecond)

	res, err := p.Resolve(context.Background(), uuid.New())
	require.ErrorIs(t, err, momo.ErrMalformed)
	require.Equal(t, OutcomeError, res.Outcome)
	require.Equal(t, 1, provider.callCount())
}

func TestResolveReturnsCachedTerminalOutcome(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{
		{status: momo.RequestToPayStatus{Status: momo.StatusFailed}},
	}}
	p := newPoller(provider, &staticTokens{}, 8, time.Millisecond)
	ref := uuid.New()

	first, err := p.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, first.Outcome)

	// A later resolution must not hit the provider again, even if the
	// provider would now claim success.
	provider.mu.Lock()
	provider.steps = []statusStep{{status: momo.RequestToPayStatus{Status: momo.StatusSuccessful}}}
	provider.mu.Unlock()

	second, err := p.Resolve(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, second.Outcome)
	require.Equal(t, 1, provider.callCount())
}

func TestResolveStopsOnContextCancel(t *testing.T) {
	provider := &scriptedStatus{steps: []statusStep{pending()}}
	p := newPoller(provider, &staticTokens{}, 8, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	res, err := p.Resolve(ctx, uuid.New())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, res.Outcome.Terminal())
}
