package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/corsrelay/internal/config"
	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/health"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
	"github.com/vyrodovalexey/corsrelay/internal/proxy"
	"github.com/vyrodovalexey/corsrelay/internal/rewrite"
)

const testOrigin = "http://localhost:3000"

func testConfig(upstreamURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Listen.Address = "127.0.0.1"
	cfg.Listen.Port = 0
	cfg.Listen.ShutdownTimeout = 5 * time.Second
	cfg.Upstream.URL = upstreamURL
	cfg.Upstream.Timeout = 5 * time.Second
	cfg.Metrics.Port = 0
	return cfg
}

func testPolicy(cfg *config.Config) *headers.Policy {
	return headers.NewPolicy(headers.Options{
		Username:         cfg.Upstream.Username,
		Password:         cfg.Upstream.Password,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})
}

func newTestServer(t *testing.T, upstreamURL string, opts ...Option) (*Server, *config.Config) {
	t.Helper()

	cfg := testConfig(upstreamURL)
	policy := testPolicy(cfg)
	engine := proxy.NewEngine(rewrite.New(cfg.Paths), policy, proxy.NewForwarder(cfg.Upstream))

	opts = append([]Option{
		WithHealth(health.NewHandler("test", cfg.Upstream.URL, string(cfg.Mode))),
	}, opts...)

	srv, err := New(cfg, engine, policy, opts...)
	require.NoError(t, err)
	return srv, cfg
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	policy := testPolicy(cfg)

	_, err := New(nil, http.NotFoundHandler(), policy)
	assert.Error(t, err)

	_, err = New(cfg, nil, policy)
	assert.Error(t, err)

	_, err = New(cfg, http.NotFoundHandler(), nil)
	assert.Error(t, err)
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	srv, cfg := newTestServer(t, "http://127.0.0.1:1")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get(headers.HeaderAllowOrigin))
	assert.NotEmpty(t, rec.Header().Get(headers.HeaderRequestID))

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, cfg.Upstream.URL, status.UpstreamURL)
	assert.Equal(t, string(config.ModePassThrough), status.Mode)
}

func TestHandler_RelaysEverythingElse(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 4)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, upstream.URL)

	tests := []struct {
		path         string
		expectedPath string
	}{
		{path: "/workspaces", expectedPath: "/_api/v3/ws"},
		{path: "/health/", expectedPath: "/_api/v3/health/"},
		{path: "/proxy/_api/v3/ws/demo/vulns", expectedPath: "/_api/v3/ws/demo/vulns"},
		{path: "/ws//demo", expectedPath: "/_api/v3/ws//demo"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set("Origin", testOrigin)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, tt.path)
		assert.Equal(t, `[]`, rec.Body.String(), tt.path)
		assert.Equal(t, testOrigin, rec.Header().Get(headers.HeaderAllowOrigin), tt.path)
		assert.Equal(t, tt.expectedPath, <-paths, tt.path)
	}
}

func TestHandler_Preflight(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, "http://127.0.0.1:1")

	for _, path := range []string{"/health", "/ws", "/proxy/anything"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", testOrigin)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Zero(t, rec.Body.Len(), path)
		assert.Equal(t, testOrigin, rec.Header().Get(headers.HeaderAllowOrigin), path)
	}
}

func TestHandler_HealthDisabled(t *testing.T) {
	t.Parallel()

	paths := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Health.Enabled = false
	policy := testPolicy(cfg)
	engine := proxy.NewEngine(rewrite.New(cfg.Paths), policy, proxy.NewForwarder(cfg.Upstream))

	srv, err := New(cfg, engine, policy, WithHealth(health.NewHandler("test", upstream.URL, "pass-through")))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "/_api/v3/health", <-paths)
}

func TestHandler_PanicRendersJSON(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://127.0.0.1:1")
	policy := testPolicy(cfg)
	metrics := observability.NewMetrics("test")

	srv, err := New(cfg, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), policy, WithMetrics(metrics))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get(headers.HeaderAllowOrigin))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "panic: boom", body["error"])
	assert.Equal(t, float64(500), body["code"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	expected := `
		# HELP test_requests_total Total number of inbound HTTP requests
		# TYPE test_requests_total counter
		test_requests_total{method="GET",status="500"} 1
	`
	require.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "test_requests_total"))
}

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Version":"5.14.1"}`)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, upstream.URL, WithMetrics(observability.NewMetrics("test")))

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	assert.ErrorIs(t, srv.Start(ctx), ErrAlreadyStarted)

	resp, err := http.Get("http://" + srv.Addr() + "/info")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"Version":"5.14.1"}`, string(body))

	require.NotEmpty(t, srv.MetricsAddr())
	resp, err = http.Get("http://" + srv.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "test_requests_total"))

	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))
}

func TestServer_MetricsDisabled(t *testing.T) {
	t.Parallel()

	srv, cfg := newTestServer(t, "http://127.0.0.1:1")
	cfg.Metrics.Enabled = false

	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()

	assert.Empty(t, srv.MetricsAddr())
}

func TestServer_Run(t *testing.T) {
	t.Parallel()

	srv, cfg := newTestServer(t, "http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return srv.Addr() != cfg.Listen.Addr()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListener_StartTwice(t *testing.T) {
	t.Parallel()

	l := NewListener("test", "127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, l.Start(context.Background()))
	defer func() { _ = l.Stop(context.Background()) }()

	assert.True(t, l.IsRunning())
	assert.Equal(t, "test", l.Name())
	assert.NotEqual(t, "127.0.0.1:0", l.Addr())
	assert.Error(t, l.Start(context.Background()))
}

func TestListener_BindError(t *testing.T) {
	t.Parallel()

	first := NewListener("first", "127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	second := NewListener("second", first.Addr(), http.NotFoundHandler())
	assert.Error(t, second.Start(context.Background()))
	assert.False(t, second.IsRunning())
}
