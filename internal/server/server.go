package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/corsrelay/internal/config"
	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/health"
	"github.com/vyrodovalexey/corsrelay/internal/middleware"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// writeTimeoutSlack is added to the upstream timeout so a slow upstream is
// reported as a 502 before the server drops the connection.
const writeTimeoutSlack = 10 * time.Second

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("server already started")

// Server owns the relay listener and the optional metrics listener.
type Server struct {
	cfg     *config.Config
	relay   http.Handler
	policy  *headers.Policy
	health  *health.Handler
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	engine  *gin.Engine
	handler http.Handler

	mu              sync.RWMutex
	listener        *Listener
	metricsListener *Listener
	started         atomic.Bool
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink and enables the metrics listener when
// configured.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithTracer enables server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithHealth sets the health handler served on the configured path.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// New creates a server. relay receives every request not claimed by the
// health route.
func New(cfg *config.Config, relay http.Handler, policy *headers.Policy, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if relay == nil || policy == nil {
		return nil, fmt.Errorf("relay handler and header policy are required")
	}

	s := &Server{
		cfg:    cfg,
		relay:  relay,
		policy: policy,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine = s.newEngine()
	s.handler = s.buildChain()

	return s, nil
}

func (s *Server) newEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Paths belong to the upstream; gin must not rewrite them.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.HandleMethodNotAllowed = false
	engine.RemoveExtraSlash = false

	if s.cfg.Health.Enabled && s.health != nil {
		s.health.RegisterRoutes(engine, s.cfg.Health.Path)
	}

	engine.NoRoute(gin.WrapH(s.relay))

	return engine
}

func (s *Server) buildChain() http.Handler {
	var tracing func(http.Handler) http.Handler
	if s.tracer != nil {
		tracing = observability.TracingMiddleware(s.tracer)
	}

	return middleware.Chain(s.engine,
		middleware.CORS(s.policy),
		middleware.RequestID(),
		tracing,
		middleware.Logging(s.logger),
		middleware.Metrics(s.metrics),
		// innermost: recovered panics still reach Logging and Metrics
		middleware.Recovery(s.logger, s.policy, s.metrics),
	)
}

// Engine returns the gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the fully wrapped relay handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the relay listener address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.cfg.Listen.Addr()
	}
	return s.listener.Addr()
}

// MetricsAddr returns the metrics listener address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.metricsListener == nil {
		return ""
	}
	return s.metricsListener.Addr()
}

// Start starts the listeners.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	relay := NewListener("relay", s.cfg.Listen.Addr(), s.handler,
		WithListenerLogger(s.logger),
		WithWriteTimeout(s.cfg.Upstream.Timeout+writeTimeoutSlack),
	)
	if err := relay.Start(ctx); err != nil {
		s.started.Store(false)
		return err
	}

	var metrics *Listener
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		metrics = NewListener("metrics", s.metricsAddress(), s.metricsHandler(),
			WithListenerLogger(s.logger),
			WithWriteTimeout(10*time.Second),
		)
		if err := metrics.Start(ctx); err != nil {
			_ = relay.Stop(ctx)
			s.started.Store(false)
			return err
		}
	}

	s.mu.Lock()
	s.listener = relay
	s.metricsListener = metrics
	s.mu.Unlock()

	s.logger.Info("relay started",
		observability.String("address", relay.Addr()),
		observability.String("upstream", s.cfg.Upstream.URL),
		observability.String("mode", string(s.cfg.Mode)),
	)

	return nil
}

func (s *Server) metricsAddress() string {
	return net.JoinHostPort(s.cfg.Listen.Address, strconv.Itoa(s.cfg.Metrics.Port))
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	return mux
}

// Stop stops all listeners.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	s.mu.RLock()
	relay, metrics := s.listener, s.metricsListener
	s.mu.RUnlock()

	var errs []error
	if metrics != nil {
		if err := metrics.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if relay != nil {
		if err := relay.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.started.Store(false)
	s.logger.Info("relay stopped")

	return errors.Join(errs...)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.logger.Info("shutdown requested")

	timeout := s.cfg.Listen.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	return s.Stop(shutdownCtx)
}
