// Package order exposes the minimal order view the payment flow depends on:
// lookup for amount validation and settlement transitions once a payment
// reaches a terminal outcome.
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order statuses relevant to payment settlement.
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusPaid           = "PAID"
	StatusPaymentFailed  = "PAYMENT_FAILED"
)

// ErrNotFound is returned when the order does not exist.
var ErrNotFound = errors.New("order: not found")

// Order is the payment-facing projection of an order.
type Order struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the order persistence surface used by payment settlement.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	MarkOrderPaid(ctx context.Context, orderID, paymentReference string) error
	MarkOrderPaymentFailed(ctx context.Context, orderID, reason string) error
}

// PGStore implements Store on Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) GetOrder(ctx context.Context, orderID string) (Order, error) {
	const q = `
		SELECT id, status, amount_minor, currency, created_at, updated_at
		FROM orders
		WHERE id = $1`
	var o Order
	err := s.Pool.QueryRow(ctx, q, orderID).Scan(
		&o.ID, &o.Status, &o.AmountMinor, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

func (s *PGStore) MarkOrderPaid(ctx context.Context, orderID, paymentReference string) error {
	const q = `
		UPDATE orders
		SET status = $2, payment_reference = $3, updated_at = now()
		WHERE id = $1 AND status = $4`
	tag, err := s.Pool.Exec(ctx, q, orderID, StatusPaid, paymentReference, StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("order: mark paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order: %s is not awaiting payment", orderID)
	}
	return nil
}

func (s *PGStore) MarkOrderPaymentFailed(ctx context.Context, orderID, reason string) error {
	const q = `
		UPDATE orders
		SET status = $2, payment_failure_reason = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = $4`
	tag, err := s.Pool.Exec(ctx, q, orderID, StatusPaymentFailed, reason, StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("order: mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order: %s is not awaiting payment", orderID)
	}
	return nil
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...Order) *MemoryStore {
	s := &MemoryStore{orders: make(map[string]Order)}
	for _, o := range seed {
		if o.Status == "" {
			o.Status = StatusPendingPayment
		}
		s.orders[o.ID] = o
	}
	return s
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) MarkOrderPaid(_ context.Context, orderID, _ string) error {
	return s.transition(orderID, StatusPaid)
}

func (s *MemoryStore) MarkOrderPaymentFailed(_ context.Context, orderID, _ string) error {
	return s.transition(orderID, StatusPaymentFailed)
}

func (s *MemoryStore) transition(orderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPendingPayment {
		return fmt.Errorf("order: %s is not awaiting payment", orderID)
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return nil
}
