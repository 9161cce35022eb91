// Package security provides hardening middleware for the payment API:
// request body caps (payment payloads are tiny) and baseline response
// headers.
package security

import (
	"net/http"
	"strconv"
)

// MaxPaymentBody bounds initiation payloads. A request-to-pay body is a few
// hundred bytes; anything larger is hostile or broken.
const MaxPaymentBody = 16 << 10

// BodyLimit rejects request bodies larger than Max with HTTP 413.
type BodyLimit struct {
	Max int64
}

// Middleware wraps the body in a MaxBytesReader so oversized payloads fail
// during decode instead of buffering unbounded input.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	max := b.Max
	if max <= 0 {
		max = MaxPaymentBody
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

// Headers attaches baseline security headers to each response.
type Headers struct {
	EnableHSTS bool
	HSTSMaxAge int
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cache-Control", "no-store")
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			headers.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(maxAge))
		}
		next.ServeHTTP(w, r)
	})
}
