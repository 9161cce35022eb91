// Package queue defines the background tasks the API hands off to the worker
// process over asynq.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskResolvePayment resolves a submitted request-to-pay by polling the
// provider until it reaches a terminal outcome.
const TaskResolvePayment = "payment:resolve"

// ResolvePaymentPayload is the serialized payload of a resolve task.
type ResolvePaymentPayload struct {
	ReferenceID string `json:"referenceId"`
}

// NewResolvePaymentTask builds a resolve task for the reference. The task ID
// is derived from the reference so duplicate enqueues collapse into one task.
func NewResolvePaymentTask(referenceID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(ResolvePaymentPayload{ReferenceID: referenceID.String()})
	if err != nil {
		return nil, fmt.Errorf("queue: encode resolve payload: %w", err)
	}
	return asynq.NewTask(TaskResolvePayment, payload,
		asynq.TaskID("resolve:"+referenceID.String()),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}

// ParseResolvePaymentTask decodes and validates a resolve task payload.
func ParseResolvePaymentTask(t *asynq.Task) (uuid.UUID, error) {
	var p ResolvePaymentPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return uuid.Nil, fmt.Errorf("queue: decode resolve payload: %w", err)
	}
	ref, err := uuid.Parse(p.ReferenceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: invalid reference id %q: %w", p.ReferenceID, err)
	}
	return ref, nil
}

// Enqueuer submits tasks from the API process.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueResolve schedules resolution for the reference. Re-enqueueing an
// already queued reference is a no-op.
func (e *Enqueuer) EnqueueResolve(ctx context.Context, referenceID uuid.UUID) error {
	if e == nil || e.Client == nil {
		return errors.New("queue: enqueuer not configured")
	}
	task, err := NewResolvePaymentTask(referenceID)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("queue: enqueue resolve: %w", err)
	}
	return nil
}
