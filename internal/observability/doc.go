// Package observability provides logging, metrics, and tracing
// functionality for the CORS relay.
//
// Logging is structured via zap behind the Logger interface:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("request relayed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// Metrics live in a dedicated Prometheus registry so tests can create
// isolated instances:
//
//	metrics := observability.NewMetrics("corsrelay")
//	http.Handle("/metrics", metrics.Handler())
//
// Tracing uses OpenTelemetry with an optional OTLP gRPC exporter. When
// tracing is disabled the tracer is backed by the global no-op provider.
package observability
