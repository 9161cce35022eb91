package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memStore) InsertDomainEvent(_ context.Context, topic, aggregateID string, payload []byte) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Event{}, m.err
	}
	ev := Event{Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}
	m.events = append(m.events, ev)
	return ev, nil
}

type memNotifier struct {
	mu   sync.Mutex
	seen []Event
	err  error
}

func (m *memNotifier) Notify(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seen = append(m.seen, ev)
	return nil
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &memStore{}
	notifier := &memNotifier{}
	bus := &Bus{Store: store, Notifiers: []Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), TopicPaymentSettled, "ref-1", map[string]string{"orderId": "ord-1"})
	require.NoError(t, err)
	require.Equal(t, TopicPaymentSettled, ev.Topic)
	require.Equal(t, "ref-1", ev.AggregateID)
	require.JSONEq(t, `{"orderId":"ord-1"}`, string(ev.Payload))
	require.Len(t, store.events, 1)
	require.Len(t, notifier.seen, 1)
}

func TestEmitRejectsMissingTopicOrAggregate(t *testing.T) {
	bus := &Bus{Store: &memStore{}}
	_, err := bus.Emit(context.Background(), "", "ref-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), TopicPaymentFailed, "", nil)
	require.Error(t, err)
}

func TestEmitNilPayloadBecomesEmptyObject(t *testing.T) {
	store := &memStore{}
	bus := &Bus{Store: store}
	ev, err := bus.Emit(context.Background(), TopicPaymentTimeout, "ref-1", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(ev.Payload))
}

func TestEmitRejectsInvalidRawJSON(t *testing.T) {
	bus := &Bus{Store: &memStore{}}
	_, err := bus.Emit(context.Background(), TopicPaymentError, "ref-1", []byte("{broken"))
	require.Error(t, err)
}

func TestEmitSurvivesNotifierFailure(t *testing.T) {
	store := &memStore{}
	failing := &memNotifier{err: errors.New("smtp down")}
	ok := &memNotifier{}
	bus := &Bus{Store: store, Notifiers: []Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), TopicOrderPaid, "ref-1", nil)
	require.Error(t, err)
	require.Len(t, store.events, 1, "the event is persisted regardless")
	require.Len(t, ok.seen, 1, "remaining notifiers still run")
}
