package payment

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/momo-gateway/internal/common"
	"github.com/noah-isme/momo-gateway/internal/momo"
)

// Handler exposes the payment API over HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the payment endpoints on the router. The supplied middlewares
// (rate limiting, idempotency) apply to initiation only; status reads stay
// cheap and unguarded.
func (h *Handler) Routes(r chi.Router, initiateMW ...func(http.Handler) http.Handler) {
	r.With(initiateMW...).Post("/payments", h.initiate)
	r.Get("/payments/balance", h.balance)
	r.Get("/payments/{referenceID}", h.status)
}

type attemptResponse struct {
	ReferenceID            string     `json:"referenceId"`
	OrderID                string     `json:"orderId"`
	Method                 string     `json:"method"`
	Amount                 string     `json:"amount"`
	Currency               string     `json:"currency"`
	Status                 string     `json:"status"`
	FinancialTransactionID string     `json:"financialTransactionId,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	ResolvedAt             *time.Time `json:"resolvedAt,omitempty"`
}

func (h *Handler) render(a Attempt) attemptResponse {
	return attemptResponse{
		ReferenceID:            a.ReferenceID.String(),
		OrderID:                a.OrderID,
		Method:                 a.Method,
		Amount:                 momo.FormatAmount(a.AmountMinor, h.Svc.Exponent),
		Currency:               a.Currency,
		Status:                 string(a.Outcome),
		FinancialTransactionID: a.FinancialTransactionID,
		CreatedAt:              a.CreatedAt,
		ResolvedAt:             a.ResolvedAt,
	}
}

// initiate accepts a payment request. Terminal results (cash) return 200;
// mobile money returns 202 while resolution continues in the background.
func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var in InitiateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, CodeValidationFailed, "invalid json body", nil)
		return
	}
	a, err := h.Svc.Initiate(r.Context(), in)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	status := http.StatusAccepted
	if a.Outcome.Terminal() {
		status = http.StatusOK
	}
	common.JSON(w, status, h.render(a))
}

// status reports the current state of an attempt: 200 once terminal, 202
// while still pending.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	referenceID, err := uuid.Parse(chi.URLParam(r, "referenceID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, CodeValidationFailed, "invalid reference id", nil)
		return
	}
	a, err := h.Svc.Status(r.Context(), referenceID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	status := http.StatusAccepted
	if a.Outcome.Terminal() {
		status = http.StatusOK
	}
	common.JSON(w, status, h.render(a))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Svc.Balance(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{
		"availableBalance": bal.AvailableBalance,
		"currency":         bal.Currency,
	})
}
