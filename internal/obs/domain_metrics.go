package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentAttemptsTotal counts payment attempts by method and final result.
	PaymentAttemptsTotal *prometheus.CounterVec
	// PollAttemptsTotal counts individual status poll calls against the provider.
	PollAttemptsTotal prometheus.Counter
	// PollResolutionsTotal counts finished poll resolutions by outcome.
	PollResolutionsTotal *prometheus.CounterVec
	// TokenRefreshTotal counts provider token refreshes by result.
	TokenRefreshTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_attempts_total",
			Help:      "Count of payment attempts by method and result.",
		}, []string{"method", "result"})
		PollAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_attempts_total",
			Help:      "Total number of status poll calls issued to the provider.",
		})
		PollResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_resolutions_total",
			Help:      "Count of completed poll resolutions by outcome.",
		}, []string{"outcome"})
		TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "momo_token_refresh_total",
			Help:      "Count of provider access token refreshes by result.",
		}, []string{"result"})

		mustRegisterCollector(reg, PaymentAttemptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentAttemptsTotal = v
			}
		})
		mustRegisterCollector(reg, PollAttemptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PollAttemptsTotal = v
			}
		})
		mustRegisterCollector(reg, PollResolutionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PollResolutionsTotal = v
			}
		})
		mustRegisterCollector(reg, TokenRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TokenRefreshTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
