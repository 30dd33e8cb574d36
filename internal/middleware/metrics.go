package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// Metrics returns a middleware that records request count, latency,
// response size and in-flight requests.
func Metrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.IncActiveRequests()
			defer metrics.DecActiveRequests()

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.RecordRequest(r.Method, rw.status, time.Since(start), rw.size)
		})
	}
}
