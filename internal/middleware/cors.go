package middleware

import (
	"net/http"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
)

// CORS returns a middleware that applies the relay's CORS headers before
// anything else runs, so every response carries them, including errors and
// recovered panics. Preflight requests are answered with 200 and no body.
func CORS(policy *headers.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.ApplyCORS(w.Header(), r.Header.Get(headers.HeaderOrigin))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
