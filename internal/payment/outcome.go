// Package payment orchestrates the payment lifecycle: submission of
// request-to-pay attempts, poll-based resolution against the provider, and
// correlation of terminal outcomes back onto orders.
package payment

// Outcome is the lifecycle state of a payment attempt. PENDING is the only
// non-terminal state; every other outcome is final and immutable.
type Outcome string

const (
	OutcomePending    Outcome = "PENDING"
	OutcomeSuccessful Outcome = "SUCCESSFUL"
	OutcomeFailed     Outcome = "FAILED"
	OutcomeTimeout    Outcome = "TIMEOUT"
	OutcomeError      Outcome = "ERROR"
)

// Terminal reports whether the outcome is final.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSuccessful, OutcomeFailed, OutcomeTimeout, OutcomeError:
		return true
	}
	return false
}

// Payment methods accepted at initiation.
const (
	MethodMobileMoney = "mobile_money"
	MethodCash        = "cash"
)
