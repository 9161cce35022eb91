package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/momo-gateway/internal/queue"
)

// HandleResolveTask is the asynq handler for payment:resolve tasks. A
// returned error makes asynq retry, so only transient failures propagate.
func (s *Service) HandleResolveTask(ctx context.Context, t *asynq.Task) error {
	referenceID, err := queue.ParseResolvePaymentTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	a, err := s.Complete(ctx, referenceID)
	if errors.Is(err, ErrAttemptNotFound) {
		return fmt.Errorf("unknown reference %s: %w", referenceID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	if !a.Outcome.Terminal() {
		return fmt.Errorf("payment: %s still pending after resolution", referenceID)
	}
	return nil
}
