// Package ratelimit throttles payment initiation per client IP using a
// Redis-backed limiter so the limit holds across API replicas.
package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// New builds an HTTP middleware enforcing the given rate, e.g. "30-M" for 30
// requests per minute per client IP.
func New(r *redis.Client, rate string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	store, err := sredis.NewStoreWithOptions(r, limiter.StoreOptions{
		Prefix: "ratelimit:payments",
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: init store: %w", err)
	}
	mw := stdlib.NewMiddleware(limiter.New(store, parsed, limiter.WithTrustForwardHeader(true)))
	return mw.Handler, nil
}
