package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vyrodovalexey/corsrelay/internal/fallback"
	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
	"github.com/vyrodovalexey/corsrelay/internal/rewrite"
)

// DefaultMaxBodyBytes bounds inbound bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// RequestContext is the per-request view of an inbound call.
type RequestContext struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
	Origin   string
}

// Engine is the http.Handler that relays requests to the upstream service.
type Engine struct {
	translator     *rewrite.Translator
	policy         *headers.Policy
	forwarder      *Forwarder
	fallback       *fallback.Provider
	preferUpstream bool
	maxBodyBytes   int64
	logger         observability.Logger
	metrics        *observability.Metrics
}

// EngineOption is a functional option for configuring the engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink for the engine.
func WithMetrics(metrics *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithFallback enables static-fallback mode. With preferUpstream the
// dataset is consulted only after the upstream proved unreachable.
func WithFallback(provider *fallback.Provider, preferUpstream bool) EngineOption {
	return func(e *Engine) {
		e.fallback = provider
		e.preferUpstream = preferUpstream
	}
}

// WithMaxBodyBytes bounds inbound request bodies.
func WithMaxBodyBytes(n int64) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxBodyBytes = n
		}
	}
}

// NewEngine creates a relay engine.
func NewEngine(
	translator *rewrite.Translator,
	policy *headers.Policy,
	forwarder *Forwarder,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		translator:   translator,
		policy:       policy,
		forwarder:    forwarder,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ServeHTTP implements http.Handler.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get(headers.HeaderOrigin)
	e.policy.ApplyCORS(w.Header(), origin)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	logger := e.logger.WithContext(r.Context())

	rc, perr := e.readRequest(w, r)
	if perr != nil {
		e.writeError(w, logger, perr)
		return
	}

	upstreamPath, rule := e.translator.Resolve(rc.Path)
	target := rewrite.WithQuery(upstreamPath, rc.RawQuery)
	if e.metrics != nil {
		e.metrics.RecordRewrite(rule)
	}

	if e.fallback != nil && !e.preferUpstream {
		if resp, ok := e.fallback.Lookup(rc.Method, decodedPath(upstreamPath)); ok {
			e.writeFallback(w, logger, resp, target)
			return
		}
	}

	out := &OutboundRequest{
		Method: rc.Method,
		Target: target,
		Header: e.policy.ForwardHeaders(rc.Method, rc.Header),
		Body:   rc.Body,
	}

	logger.Debug("forwarding request",
		observability.String("method", rc.Method),
		observability.String("path", rc.Path),
		observability.String("upstream_path", target),
		observability.String("rule", rule),
		observability.Int("body_bytes", len(rc.Body)),
	)

	resp, perr := e.forwarder.Forward(r.Context(), out)
	if perr != nil {
		if fb, ok := e.substitute(rc.Method, upstreamPath, perr); ok {
			e.writeFallback(w, logger, fb, target)
			return
		}
		e.writeError(w, logger, perr)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	upstreamURL := e.forwarder.URL(target)
	if _, err := Relay(w, r, resp, upstreamURL); err != nil {
		var mapped *ProxyError
		if errors.As(err, &mapped) {
			e.writeError(w, logger, mapped)
			return
		}
		logger.Warn("response relay interrupted",
			observability.String("url", upstreamURL),
			observability.Error(err),
		)
	}
}

// readRequest captures the inbound request. The body is read fully so it
// can be forwarded with an exact Content-Length.
func (e *Engine) readRequest(w http.ResponseWriter, r *http.Request) (*RequestContext, *ProxyError) {
	rc := &RequestContext{
		Method:   r.Method,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		Header:   r.Header,
		Origin:   r.Header.Get(headers.HeaderOrigin),
	}

	if r.Body == nil || r.Body == http.NoBody {
		return rc, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, NewMalformedRequestError(
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
				errors.Join(ErrBodyTooLarge, err),
			)
		}
		return nil, NewMalformedRequestError(
			"failed to read request body",
			errors.Join(ErrMalformedRequest, err),
		)
	}
	rc.Body = body

	return rc, nil
}

// substitute decides whether an upstream failure is answered from the
// dataset. Only unreachable GETs in static-fallback mode qualify.
func (e *Engine) substitute(method, upstreamPath string, perr *ProxyError) (fallback.Response, bool) {
	if e.fallback == nil || method != http.MethodGet || perr.Kind != KindUpstreamUnreachable {
		return fallback.Response{}, false
	}
	if e.preferUpstream {
		if resp, ok := e.fallback.Lookup(method, decodedPath(upstreamPath)); ok {
			return resp, true
		}
	}
	return fallback.EmptyList(), true
}

func (e *Engine) writeFallback(w http.ResponseWriter, logger observability.Logger, resp fallback.Response, target string) {
	if e.metrics != nil {
		e.metrics.RecordFallback(resp.Source)
	}
	logger.Debug("serving fallback response",
		observability.String("upstream_path", target),
		observability.String("source", resp.Source),
	)

	h := w.Header()
	h.Set(headers.HeaderContentType, headers.ContentTypeJSON)
	h.Set(headers.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	h.Set(headers.HeaderRelayFallback, resp.Source)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func (e *Engine) writeError(w http.ResponseWriter, logger observability.Logger, perr *ProxyError) {
	if e.metrics != nil {
		e.metrics.RecordError(string(perr.Kind))
	}

	fields := []observability.Field{
		observability.String("kind", string(perr.Kind)),
		observability.String("op", perr.Op),
		observability.Int("status", perr.StatusCode()),
		observability.Error(perr),
	}
	if perr.Kind == KindInternal {
		logger.Error("relay failed", fields...)
	} else {
		logger.Warn("relay failed", fields...)
	}

	WriteError(w, perr)
}

func decodedPath(p string) string {
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}
