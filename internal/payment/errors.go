package payment

import (
	"net/http"

	"github.com/noah-isme/momo-gateway/internal/common"
)

// Error codes surfaced through the API error envelope.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeAuthFailure       = "AUTH_FAILURE"
	CodeSubmissionFailed  = "SUBMISSION_FAILED"
	CodePaymentTimeout    = "PAYMENT_TIMEOUT"
	CodeProviderError     = "PROVIDER_ERROR"
	CodeAlreadyInProgress = "ALREADY_IN_PROGRESS"
	CodeNotFound          = "NOT_FOUND"
)

func errValidation(msg string, err error) *common.AppError {
	return common.NewAppError(CodeValidationFailed, msg, http.StatusBadRequest, err)
}

func errAuthFailure(err error) *common.AppError {
	return common.NewAppError(CodeAuthFailure, "provider rejected credentials", http.StatusBadGateway, err)
}

func errSubmissionFailed(err error) *common.AppError {
	return common.NewAppError(CodeSubmissionFailed, "payment submission was not accepted", http.StatusBadGateway, err)
}

func errProvider(err error) *common.AppError {
	return common.NewAppError(CodeProviderError, "provider returned an unusable response", http.StatusBadGateway, err)
}

func errAlreadyInProgress(orderID string) *common.AppError {
	app := common.NewAppError(CodeAlreadyInProgress, "a payment for this order is already in progress", http.StatusConflict, nil)
	app.Details = map[string]string{"orderId": orderID}
	return app
}

func errNotFound(msg string) *common.AppError {
	return common.NewAppError(CodeNotFound, msg, http.StatusNotFound, nil)
}
