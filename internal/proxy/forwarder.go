package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/corsrelay/internal/config"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// Transport defaults.
const (
	DefaultDialTimeout         = 10 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultMaxIdleConnsPerHost = 32
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// OutboundRequest is the request sent to the upstream service.
type OutboundRequest struct {
	Method string
	// Target is the upstream path with query, e.g. "/_api/v3/ws?page=2".
	Target string
	Header http.Header
	Body   []byte
}

// Forwarder sends exactly one request per call to the upstream service.
type Forwarder struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithForwarderMetrics sets the metrics sink.
func WithForwarderMetrics(metrics *observability.Metrics) ForwarderOption {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// WithForwarderTracer sets the tracer used for client spans.
func WithForwarderTracer(tracer *observability.Tracer) ForwarderOption {
	return func(f *Forwarder) {
		f.tracer = tracer
	}
}

// WithTransport replaces the HTTP transport.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.client.Transport = transport
	}
}

// NewForwarder creates a forwarder for the configured upstream.
func NewForwarder(cfg config.UpstreamConfig, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		baseURL: cfg.URL,
		timeout: cfg.Timeout,
		client: &http.Client{
			Transport: NewTransport(),
			// The dashboard sees upstream redirects as sent.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: observability.NopLogger(),
		tracer: observability.NewNopTracer(),
	}

	for _, opt := range opts {
		opt(f)
	}

	if cfg.CircuitBreaker.Enabled {
		f.breaker = newBreaker(cfg.CircuitBreaker, f.logger, f.metrics)
	}

	return f
}

// NewTransport returns the upstream transport. Compression is disabled so
// bodies are relayed byte for byte.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DisableCompression:  true,
	}
}

func newBreaker(
	cfg config.CircuitBreakerConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
) *gobreaker.CircuitBreaker {
	threshold := safeIntToUint32(cfg.Threshold)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 1,
		Interval:    cfg.Timeout,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client disconnects say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if metrics != nil {
				metrics.SetCircuitBreakerState(int(to))
			}
		},
	})
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// URL returns the absolute upstream URL for a target.
func (f *Forwarder) URL(target string) string {
	return f.baseURL + target
}

// BaseURL returns the upstream base URL.
func (f *Forwarder) BaseURL() string {
	return f.baseURL
}

// Forward sends req upstream. The call is bounded by the configured timeout
// and cancelled with ctx. Any upstream status is returned as a response; the
// caller must close the response body.
func (f *Forwarder) Forward(ctx context.Context, req *OutboundRequest) (*http.Response, *ProxyError) {
	upstreamURL := f.URL(req.Target)

	ctx, span := f.tracer.StartSpan(ctx, "upstream "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", upstreamURL),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, upstreamURL, bytes.NewReader(req.Body))
	if err != nil {
		cancel()
		span.SetStatus(codes.Error, err.Error())
		return nil, NewInternalError("build_request", err)
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	httpReq.ContentLength = int64(len(req.Body))
	if len(req.Body) == 0 {
		httpReq.Body = http.NoBody
		httpReq.GetBody = nil
	}
	observability.InjectTraceContext(ctx, httpReq)

	start := time.Now()
	resp, err := f.do(httpReq)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = errors.Join(ErrUpstreamTimeout, err)
		}
		cancel()
		if f.metrics != nil {
			f.metrics.RecordUpstream(req.Method, 0, duration)
		}
		perr := NewUnreachableError(upstreamURL, errors.Join(ErrUpstreamUnreachable, err))
		span.RecordError(err)
		span.SetStatus(codes.Error, perr.Message)
		f.logger.WithContext(ctx).Warn("upstream unreachable",
			observability.String("method", req.Method),
			observability.String("url", upstreamURL),
			observability.Duration("duration", duration),
			observability.Error(err),
		)
		return nil, perr
	}

	if f.metrics != nil {
		f.metrics.RecordUpstream(req.Method, resp.StatusCode, duration)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	// The deadline must outlive Forward until the body has been relayed.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (f *Forwarder) do(req *http.Request) (*http.Response, error) {
	if f.breaker == nil {
		return f.client.Do(req)
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.client.Do(req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, errors.Join(ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// BreakerState returns the circuit breaker state, or closed when disabled.
func (f *Forwarder) BreakerState() gobreaker.State {
	if f.breaker == nil {
		return gobreaker.StateClosed
	}
	return f.breaker.State()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Probe issues a GET against target with its own short deadline and returns
// the status code and body. It bypasses the circuit breaker.
func (f *Forwarder) Probe(ctx context.Context, target string, header http.Header, timeout time.Duration) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(target), http.NoBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header = header.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
