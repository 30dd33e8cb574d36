package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/corsrelay/internal/config"
	"github.com/vyrodovalexey/corsrelay/internal/fallback"
	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/health"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
	"github.com/vyrodovalexey/corsrelay/internal/proxy"
	"github.com/vyrodovalexey/corsrelay/internal/rewrite"
	"github.com/vyrodovalexey/corsrelay/internal/server"
)

const tracerShutdownTimeout = 5 * time.Second

// application holds the wired relay components.
type application struct {
	cfg       *config.Config
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	policy    *headers.Policy
	forwarder *proxy.Forwarder
	engine    *proxy.Engine
	server    *server.Server
}

func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(observability.DefaultNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:    "corsrelay",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	policy := headers.NewPolicy(headers.Options{
		Username:         cfg.Upstream.Username,
		Password:         cfg.Upstream.Password,
		UserAgent:        userAgent(),
		ForwardExtra:     cfg.Headers.ForwardExtra,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})

	forwarder := proxy.NewForwarder(cfg.Upstream,
		proxy.WithForwarderLogger(logger),
		proxy.WithForwarderMetrics(metrics),
		proxy.WithForwarderTracer(tracer),
	)

	engineOpts := []proxy.EngineOption{
		proxy.WithLogger(logger),
		proxy.WithMetrics(metrics),
		proxy.WithMaxBodyBytes(cfg.Limits.MaxBodyBytes),
	}
	if cfg.Mode == config.ModeStaticFallback {
		provider, err := newFallbackProvider(cfg)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, proxy.WithFallback(provider, cfg.Fallback.PreferUpstream))
		logger.Info("static fallback enabled",
			observability.Int("workspaces", len(provider.Dataset().Workspaces())),
			observability.Bool("prefer_upstream", cfg.Fallback.PreferUpstream),
		)
	}

	engine := proxy.NewEngine(rewrite.New(cfg.Paths), policy, forwarder, engineOpts...)

	srv, err := server.New(cfg, engine, policy,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithTracer(tracer),
		server.WithHealth(health.NewHandler(version, cfg.Upstream.URL, string(cfg.Mode),
			health.WithLogger(logger),
		)),
	)
	if err != nil {
		return nil, err
	}

	return &application{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		policy:    policy,
		forwarder: forwarder,
		engine:    engine,
		server:    srv,
	}, nil
}

func newFallbackProvider(cfg *config.Config) (*fallback.Provider, error) {
	var (
		ds  *fallback.Dataset
		err error
	)
	if cfg.Fallback.DatasetFile != "" {
		ds, err = fallback.Load(cfg.Fallback.DatasetFile)
	} else {
		ds, err = fallback.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback dataset: %w", err)
	}
	return fallback.NewProvider(ds, cfg.Paths.APINamespace), nil
}

// probe checks upstream connectivity once. The outcome is only logged.
func (a *application) probe(ctx context.Context) health.ProbeResult {
	return health.StartupProbe(ctx,
		a.forwarder,
		a.cfg.Paths.APINamespace+"/info",
		a.policy.ForwardHeaders(http.MethodGet, nil),
		a.cfg.Startup.ProbeTimeout,
		a.logger,
	)
}

func (a *application) run(ctx context.Context) error {
	if a.cfg.Startup.Probe {
		a.probe(ctx)
	}
	return a.server.Run(ctx)
}

func (a *application) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
	defer cancel()

	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
	}
	a.logger.Info("corsrelay stopped")
}
