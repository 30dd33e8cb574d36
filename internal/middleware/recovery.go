package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
	"github.com/vyrodovalexey/corsrelay/internal/proxy"
)

// PanicError carries a recovered panic value.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovery returns a middleware that recovers from panics. The client gets
// a JSON 500 document with CORS headers; metrics may be nil.
func Recovery(
	logger observability.Logger,
	policy *headers.Policy,
	metrics *observability.Metrics,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}

				logger.WithContext(r.Context()).Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Any("error", rec),
					observability.String("stack", string(debug.Stack())),
				)

				if metrics != nil {
					metrics.RecordPanic()
				}

				if policy != nil {
					policy.ApplyCORS(w.Header(), r.Header.Get(headers.HeaderOrigin))
				}
				proxy.WriteError(w, proxy.NewInternalError("handler", &PanicError{Value: rec}))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
