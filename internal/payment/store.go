package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/momo-gateway/internal/events"
)

// ErrAttemptNotFound is returned when no attempt exists for a reference ID.
var ErrAttemptNotFound = errors.New("payment: attempt not found")

// Attempt is one payment attempt against an order. ReferenceID doubles as the
// provider-side idempotency key for mobile money attempts.
type Attempt struct {
	ReferenceID            uuid.UUID
	OrderID                string
	Method                 string
	AmountMinor            int64
	Currency               string
	PayerMSISDN            string
	Outcome                Outcome
	FinancialTransactionID string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ResolvedAt             *time.Time
}

// AttemptStore persists payment attempts.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, referenceID uuid.UUID) (Attempt, error)
	// MarkTerminal transitions a PENDING attempt to the given terminal
	// outcome. It reports false when the attempt was already terminal, which
	// callers use to make settlement side effects exactly-once.
	MarkTerminal(ctx context.Context, referenceID uuid.UUID, outcome Outcome, financialTxID string) (bool, error)
}

// PGStore is the Postgres-backed attempt store. It also persists domain
// events, satisfying events.Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ AttemptStore = (*PGStore)(nil)
var _ events.Store = (*PGStore)(nil)

func (s *PGStore) InsertAttempt(ctx context.Context, a Attempt) error {
	const q = `
		INSERT INTO payments (reference_id, order_id, method, amount_minor, currency, payer_msisdn, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.Pool.Exec(ctx, q,
		a.ReferenceID, a.OrderID, a.Method, a.AmountMinor, a.Currency, a.PayerMSISDN, string(a.Outcome))
	if err != nil {
		return fmt.Errorf("payment: insert attempt: %w", err)
	}
	return nil
}

func (s *PGStore) GetAttempt(ctx context.Context, referenceID uuid.UUID) (Attempt, error) {
	const q = `
		SELECT reference_id, order_id, method, amount_minor, currency, payer_msisdn,
		       outcome, COALESCE(financial_transaction_id, ''), created_at, updated_at, resolved_at
		FROM payments
		WHERE reference_id = $1`
	var a Attempt
	var outcome string
	err := s.Pool.QueryRow(ctx, q, referenceID).Scan(
		&a.ReferenceID, &a.OrderID, &a.Method, &a.AmountMinor, &a.Currency, &a.PayerMSISDN,
		&outcome, &a.FinancialTransactionID, &a.CreatedAt, &a.UpdatedAt, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("payment: get attempt: %w", err)
	}
	a.Outcome = Outcome(outcome)
	return a, nil
}

func (s *PGStore) MarkTerminal(ctx context.Context, referenceID uuid.UUID, outcome Outcome, financialTxID string) (bool, error) {
	if !outcome.Terminal() {
		return false, fmt.Errorf("payment: %q is not a terminal outcome", outcome)
	}
	const q = `
		UPDATE payments
		SET outcome = $2,
		    financial_transaction_id = NULLIF($3, ''),
		    resolved_at = now(),
		    updated_at = now()
		WHERE reference_id = $1 AND outcome = 'PENDING'`
	tag, err := s.Pool.Exec(ctx, q, referenceID, string(outcome), financialTxID)
	if err != nil {
		return false, fmt.Errorf("payment: mark terminal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertDomainEvent appends a domain event row and returns the stored event.
func (s *PGStore) InsertDomainEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	const q = `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING topic, aggregate_id, payload, occurred_at`
	var ev events.Event
	err := s.Pool.QueryRow(ctx, q, topic, aggregateID, payload).Scan(
		&ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("payment: insert domain event: %w", err)
	}
	return ev, nil
}
