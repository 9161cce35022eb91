package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/momo-gateway/internal/events"
	"github.com/noah-isme/momo-gateway/internal/lock"
	"github.com/noah-isme/momo-gateway/internal/momo"
	"github.com/noah-isme/momo-gateway/internal/obs"
	"github.com/noah-isme/momo-gateway/internal/order"
)

// Provider is the slice of the collection API the service submits through.
type Provider interface {
	SubmitRequestToPay(ctx context.Context, token string, referenceID uuid.UUID, body momo.RequestToPay) error
	AccountBalance(ctx context.Context, token string) (momo.Balance, error)
}

// Resolver drives a submitted reference to a terminal outcome.
type Resolver interface {
	Resolve(ctx context.Context, referenceID uuid.UUID) (Resolution, error)
}

// ResolveEnqueuer schedules background resolution of a reference.
type ResolveEnqueuer interface {
	EnqueueResolve(ctx context.Context, referenceID uuid.UUID) error
}

// InitiateInput is the payload accepted by payment initiation. Amount is a
// decimal string in major units of the configured currency.
type InitiateInput struct {
	OrderID     string `json:"orderId" validate:"required"`
	Method      string `json:"method" validate:"required,oneof=mobile_money cash"`
	Amount      string `json:"amount" validate:"required"`
	PayerMSISDN string `json:"payerMsisdn" validate:"required_if=Method mobile_money,omitempty,numeric,min=8,max=15"`
}

// Service orchestrates the payment lifecycle. One active attempt per order is
// enforced with a Redis lock keyed by order ID and owned by the attempt's
// reference ID.
type Service struct {
	Store    AttemptStore
	Orders   order.Store
	Provider Provider
	Tokens   TokenSource
	Resolver Resolver
	Locks    lock.Locker
	Enqueue  ResolveEnqueuer
	Bus      *events.Bus
	Validate *validator.Validate

	Currency     string
	Exponent     int
	LockTTL      time.Duration
	PayerMessage string
	PayeeNote    string
	Logger       zerolog.Logger
}

func lockKey(orderID string) string { return "paylock:" + orderID }

// Initiate starts a payment for an order. Cash settles immediately. Mobile
// money is submitted to the provider and resolved in the background; callers
// follow up via Status.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Attempt, error) {
	a, err := s.begin(ctx, in)
	if err != nil {
		return Attempt{}, err
	}
	if a.Outcome.Terminal() {
		return a, nil
	}
	if err := s.Enqueue.EnqueueResolve(ctx, a.ReferenceID); err != nil {
		// The submission already happened, so resolution must not be lost.
		// Fall back to resolving in-process.
		s.Logger.Error().Err(err).Stringer("reference_id", a.ReferenceID).
			Msg("enqueue resolve failed, resolving in-process")
		go func() {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
			defer cancel()
			if _, err := s.Complete(bg, a.ReferenceID); err != nil {
				s.Logger.Error().Err(err).Stringer("reference_id", a.ReferenceID).
					Msg("in-process resolution failed")
			}
		}()
	}
	return a, nil
}

// Pay starts a payment and blocks until it reaches a terminal outcome.
func (s *Service) Pay(ctx context.Context, in InitiateInput) (Attempt, error) {
	a, err := s.begin(ctx, in)
	if err != nil {
		return Attempt{}, err
	}
	if a.Outcome.Terminal() {
		return a, nil
	}
	return s.Complete(ctx, a.ReferenceID)
}

// begin validates the input, guards the order with a lock and submits the
// request-to-pay. The returned attempt is PENDING for mobile money and
// already terminal for cash.
func (s *Service) begin(ctx context.Context, in InitiateInput) (Attempt, error) {
	if err := s.Validate.Struct(in); err != nil {
		return Attempt{}, errValidation("invalid payment request", err)
	}
	amountMinor, err := momo.ParseAmount(in.Amount, s.Exponent)
	if err != nil {
		return Attempt{}, errValidation(err.Error(), err)
	}
	if amountMinor <= 0 {
		return Attempt{}, errValidation("amount must be positive", nil)
	}

	o, err := s.Orders.GetOrder(ctx, in.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return Attempt{}, errNotFound("order not found")
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("payment: load order: %w", err)
	}
	if o.Status != order.StatusPendingPayment {
		return Attempt{}, errValidation(fmt.Sprintf("order status %s does not allow payment", o.Status), nil)
	}
	if o.AmountMinor > 0 && o.AmountMinor != amountMinor {
		return Attempt{}, errValidation("amount does not match order total", nil)
	}

	referenceID := uuid.New()
	now := time.Now()

	// Cash takes the lock too: accepting cash while a mobile-money attempt is
	// still pending could settle the order twice.
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := s.Locks.TryLock(ctx, lockKey(in.OrderID), referenceID.String(), ttl); err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return Attempt{}, errAlreadyInProgress(in.OrderID)
		}
		return Attempt{}, fmt.Errorf("payment: acquire order lock: %w", err)
	}

	if in.Method == MethodCash {
		a := Attempt{
			ReferenceID: referenceID,
			OrderID:     in.OrderID,
			Method:      MethodCash,
			AmountMinor: amountMinor,
			Currency:    s.Currency,
			Outcome:     OutcomeSuccessful,
			CreatedAt:   now,
			UpdatedAt:   now,
			ResolvedAt:  &now,
		}
		if err := s.Store.InsertAttempt(ctx, a); err != nil {
			s.unlock(ctx, in.OrderID, referenceID)
			return Attempt{}, fmt.Errorf("payment: record cash attempt: %w", err)
		}
		s.countAttempt(MethodCash, OutcomeSuccessful)
		s.emit(ctx, events.TopicPaymentSettled, a)
		s.unlock(ctx, in.OrderID, referenceID)
		return a, nil
	}

	token, err := s.Tokens.GetToken(ctx)
	if err != nil {
		s.unlock(ctx, in.OrderID, referenceID)
		return Attempt{}, errAuthFailure(err)
	}

	body := momo.RequestToPay{
		Amount:     momo.FormatAmount(amountMinor, s.Exponent),
		Currency:   s.Currency,
		ExternalID: in.OrderID,
		Payer: momo.Party{
			PartyIDType: momo.PartyIDTypeMSISDN,
			PartyID:     in.PayerMSISDN,
		},
		PayerMessage: s.PayerMessage,
		PayeeNote:    s.PayeeNote,
	}
	if err := s.Provider.SubmitRequestToPay(ctx, token.Value, referenceID, body); err != nil {
		s.unlock(ctx, in.OrderID, referenceID)
		if errors.Is(err, momo.ErrUnauthorized) {
			s.Tokens.Invalidate()
			return Attempt{}, errAuthFailure(err)
		}
		return Attempt{}, errSubmissionFailed(err)
	}

	a := Attempt{
		ReferenceID: referenceID,
		OrderID:     in.OrderID,
		Method:      MethodMobileMoney,
		AmountMinor: amountMinor,
		Currency:    s.Currency,
		PayerMSISDN: in.PayerMSISDN,
		Outcome:     OutcomePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.InsertAttempt(ctx, a); err != nil {
		s.unlock(ctx, in.OrderID, referenceID)
		return Attempt{}, fmt.Errorf("payment: record attempt: %w", err)
	}
	return a, nil
}

// Complete resolves a submitted attempt to its terminal outcome and applies
// settlement side effects exactly once.
func (s *Service) Complete(ctx context.Context, referenceID uuid.UUID) (Attempt, error) {
	a, err := s.Store.GetAttempt(ctx, referenceID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Outcome.Terminal() {
		s.unlock(ctx, a.OrderID, referenceID)
		return a, nil
	}

	res, rerr := s.Resolver.Resolve(ctx, referenceID)
	if !res.Outcome.Terminal() {
		// Cancelled before a verdict; the attempt stays PENDING and a later
		// Complete picks it up again.
		return a, rerr
	}
	if rerr != nil && res.Outcome == OutcomeError {
		s.Logger.Error().Err(rerr).Stringer("reference_id", referenceID).
			Msg("resolution errored")
	}

	transitioned, err := s.Store.MarkTerminal(ctx, referenceID, res.Outcome, res.FinancialTransactionID)
	if err != nil {
		return Attempt{}, err
	}
	if transitioned {
		s.settle(ctx, a, res)
	}
	s.unlock(ctx, a.OrderID, referenceID)

	final, err := s.Store.GetAttempt(ctx, referenceID)
	if err != nil {
		return Attempt{}, err
	}
	return final, nil
}

// settle applies order transitions and domain events for a freshly terminal
// attempt. Failures here are logged, not returned: the attempt outcome is
// already durable and must not flip back.
func (s *Service) settle(ctx context.Context, a Attempt, res Resolution) {
	a.Outcome = res.Outcome
	a.FinancialTransactionID = res.FinancialTransactionID
	s.countAttempt(a.Method, res.Outcome)

	switch res.Outcome {
	case OutcomeSuccessful:
		if err := s.Orders.MarkOrderPaid(ctx, a.OrderID, a.ReferenceID.String()); err != nil {
			s.Logger.Error().Err(err).Str("order_id", a.OrderID).Msg("mark order paid failed")
		}
		s.emit(ctx, events.TopicPaymentSettled, a)
		s.emit(ctx, events.TopicOrderPaid, a)
	case OutcomeFailed:
		if err := s.Orders.MarkOrderPaymentFailed(ctx, a.OrderID, "provider reported FAILED"); err != nil {
			s.Logger.Error().Err(err).Str("order_id", a.OrderID).Msg("mark order payment failed errored")
		}
		s.emit(ctx, events.TopicPaymentFailed, a)
	case OutcomeTimeout:
		// The order stays payable; a fresh attempt may be started.
		s.emit(ctx, events.TopicPaymentTimeout, a)
		s.emit(ctx, events.TopicOrderPaymentStuck, a)
	case OutcomeError:
		s.emit(ctx, events.TopicPaymentError, a)
		s.emit(ctx, events.TopicOrderPaymentStuck, a)
	}
}

// Status returns the current view of an attempt.
func (s *Service) Status(ctx context.Context, referenceID uuid.UUID) (Attempt, error) {
	a, err := s.Store.GetAttempt(ctx, referenceID)
	if errors.Is(err, ErrAttemptNotFound) {
		return Attempt{}, errNotFound("payment not found")
	}
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// Balance fetches the collection account balance from the provider.
func (s *Service) Balance(ctx context.Context) (momo.Balance, error) {
	token, err := s.Tokens.GetToken(ctx)
	if err != nil {
		return momo.Balance{}, errAuthFailure(err)
	}
	bal, err := s.Provider.AccountBalance(ctx, token.Value)
	if err != nil {
		if errors.Is(err, momo.ErrUnauthorized) {
			s.Tokens.Invalidate()
			return momo.Balance{}, errAuthFailure(err)
		}
		return momo.Balance{}, errProvider(err)
	}
	return bal, nil
}

func (s *Service) unlock(ctx context.Context, orderID string, referenceID uuid.UUID) {
	if err := s.Locks.Unlock(ctx, lockKey(orderID), referenceID.String()); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", orderID).Msg("release order lock failed")
	}
}

func (s *Service) countAttempt(method string, outcome Outcome) {
	if obs.PaymentAttemptsTotal != nil {
		obs.PaymentAttemptsTotal.WithLabelValues(method, strings.ToLower(string(outcome))).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic string, a Attempt) {
	if s.Bus == nil {
		return
	}
	payload := map[string]any{
		"referenceId": a.ReferenceID.String(),
		"orderId":     a.OrderID,
		"method":      a.Method,
		"amountMinor": a.AmountMinor,
		"currency":    a.Currency,
		"outcome":     string(a.Outcome),
	}
	if a.FinancialTransactionID != "" {
		payload["financialTransactionId"] = a.FinancialTransactionID
	}
	if _, err := s.Bus.Emit(ctx, topic, a.ReferenceID.String(), payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("emit domain event failed")
	}
}
