package events

// Topic constants for domain events emitted by the payment flow.
const (
	TopicPaymentSettled    = "payment.settled"
	TopicPaymentFailed     = "payment.failed"
	TopicPaymentTimeout    = "payment.timeout"
	TopicPaymentError      = "payment.error"
	TopicOrderPaid         = "order.paid"
	TopicOrderPaymentStuck = "order.payment_stuck"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicPaymentSettled,
		TopicPaymentFailed,
		TopicPaymentTimeout,
		TopicPaymentError,
		TopicOrderPaid,
		TopicOrderPaymentStuck,
	}
}
