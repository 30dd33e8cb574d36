package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

const testOrigin = "http://localhost:3000"

func testPolicy() *headers.Policy {
	return headers.NewPolicy(headers.Options{
		Username:         "faraday",
		Password:         "faraday",
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		method          string
		origin          string
		expectedStatus  int
		expectedBody    string
		expectedOrigin  string
		expectedCredits string
	}{
		{
			name:            "preflight with origin",
			method:          http.MethodOptions,
			origin:          testOrigin,
			expectedStatus:  http.StatusOK,
			expectedBody:    "",
			expectedOrigin:  testOrigin,
			expectedCredits: "true",
		},
		{
			name:            "preflight without origin",
			method:          http.MethodOptions,
			expectedStatus:  http.StatusOK,
			expectedBody:    "",
			expectedOrigin:  "*",
			expectedCredits: "",
		},
		{
			name:            "simple request",
			method:          http.MethodGet,
			origin:          testOrigin,
			expectedStatus:  http.StatusOK,
			expectedBody:    `{"status":"ok"}`,
			expectedOrigin:  testOrigin,
			expectedCredits: "true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := CORS(testPolicy())(okHandler())

			req := httptest.NewRequest(tt.method, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedBody, rec.Body.String())
			assert.Equal(t, tt.expectedOrigin, rec.Header().Get(headers.HeaderAllowOrigin))
			assert.Equal(t, tt.expectedCredits, rec.Header().Get(headers.HeaderAllowCredentials))
			assert.NotEmpty(t, rec.Header().Get(headers.HeaderAllowMethods))
			assert.NotEmpty(t, rec.Header().Get(headers.HeaderAllowHeaders))
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		handler     http.HandlerFunc
		shouldPanic bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				okHandler().ServeHTTP(w, r)
			},
		},
		{
			name: "panic with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			shouldPanic: true,
		},
		{
			name: "panic with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(assert.AnError)
			},
			shouldPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := observability.NewMetrics("test")
			handler := Recovery(observability.NopLogger(), testPolicy(), metrics)(tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Header.Set("Origin", testOrigin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if !tt.shouldPanic {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
				return
			}

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, testOrigin, rec.Header().Get(headers.HeaderAllowOrigin))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, strings.HasPrefix(body["error"].(string), "panic: "))
			assert.Equal(t, float64(500), body["code"])
			assert.Equal(t, "*middleware.PanicError", body["type"])

			count, err := testutil.GatherAndCount(metrics.Registry(), "test_panics_recovered_total")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestRecovery_AbortHandlerRepanics(t *testing.T) {
	t.Parallel()

	handler := Recovery(observability.NopLogger(), nil, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}),
	)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		existingRequestID string
		expectNewID       bool
	}{
		{
			name:        "generates new request ID",
			expectNewID: true,
		},
		{
			name:              "uses existing request ID",
			existingRequestID: "existing-request-id-123",
		},
		{
			name:              "replaces oversized request ID",
			existingRequestID: strings.Repeat("x", 200),
			expectNewID:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			captured := make(chan string, 1)
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured <- observability.RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.existingRequestID != "" {
				req.Header.Set(headers.HeaderRequestID, tt.existingRequestID)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			responseID := rec.Header().Get(headers.HeaderRequestID)
			assert.NotEmpty(t, responseID)
			assert.Equal(t, responseID, <-captured)

			if tt.expectNewID {
				assert.NotEqual(t, tt.existingRequestID, responseID)
				assert.Len(t, responseID, 36)
			} else {
				assert.Equal(t, tt.existingRequestID, responseID)
			}
		})
	}
}

func TestRequestIDWithGenerator(t *testing.T) {
	t.Parallel()

	handler := RequestIDWithGenerator(func() string { return "fixed-id" })(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "fixed-id", rec.Header().Get(headers.HeaderRequestID))
}

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		expectedLevel zapcore.Level
	}{
		{name: "success logged at info", status: http.StatusOK, expectedLevel: zapcore.InfoLevel},
		{name: "client error logged at info", status: http.StatusNotFound, expectedLevel: zapcore.InfoLevel},
		{name: "bad gateway logged at warn", status: http.StatusBadGateway, expectedLevel: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			logger := observability.NewLoggerFromZap(zap.New(core))

			handler := Chain(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte("12345"))
				}),
				RequestIDWithGenerator(func() string { return "req-1" }),
				Logging(logger),
			)

			req := httptest.NewRequest(http.MethodGet, "/ws?page=2", nil)
			req.Header.Set("Origin", testOrigin)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.FilterMessage("http request").All()
			require.Len(t, entries, 1)
			entry := entries[0]
			assert.Equal(t, tt.expectedLevel, entry.Level)

			fields := entry.ContextMap()
			assert.Equal(t, "GET", fields["method"])
			assert.Equal(t, "/ws", fields["path"])
			assert.Equal(t, "page=2", fields["query"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, int64(5), fields["size"])
			assert.Equal(t, testOrigin, fields["origin"])
			assert.Equal(t, "req-1", fields["request_id"])
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics("test")
	handler := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"connection failed: refused","code":502}`))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))

	count, err := testutil.GatherAndCount(metrics.Registry(), "test_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(metrics.Registry(), "test_response_size_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilPassesThrough(t *testing.T) {
	t.Parallel()

	next := okHandler()
	rec := httptest.NewRecorder()
	Metrics(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, rw.status)
	assert.Same(t, rw, newResponseWriter(rw))
	assert.Equal(t, http.ResponseWriter(rec), rw.Unwrap())
}
