package payment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/momo-gateway/internal/events"
)

// MemoryStore is an in-memory AttemptStore and events.Store used in tests and
// local development.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]Attempt
	events   []events.Event
}

var _ AttemptStore = (*MemoryStore)(nil)
var _ events.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[uuid.UUID]Attempt)}
}

func (s *MemoryStore) InsertAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.attempts[a.ReferenceID] = a
	return nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, referenceID uuid.UUID) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[referenceID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (s *MemoryStore) MarkTerminal(_ context.Context, referenceID uuid.UUID, outcome Outcome, financialTxID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[referenceID]
	if !ok {
		return false, ErrAttemptNotFound
	}
	if a.Outcome != OutcomePending {
		return false, nil
	}
	now := time.Now()
	a.Outcome = outcome
	a.FinancialTransactionID = financialTxID
	a.ResolvedAt = &now
	a.UpdatedAt = now
	s.attempts[referenceID] = a
	return true, nil
}

func (s *MemoryStore) InsertDomainEvent(_ context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := events.Event{Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}
	s.events = append(s.events, ev)
	return ev, nil
}

// Events returns a copy of the recorded domain events.
func (s *MemoryStore) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}
