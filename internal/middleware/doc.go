// Package middleware provides the HTTP middleware wrapped around the relay.
//
// # Middleware Components
//
//   - CORS: stamps CORS headers first and answers preflight requests
//   - Recovery: panic recovery rendered as a JSON error with CORS headers
//   - RequestID: unique request identifier injection
//   - Logging: structured access logging
//   - Metrics: Prometheus request metrics
//
// # Usage
//
// Middleware functions follow the standard Go pattern and are composed with
// Chain, outermost first:
//
//	handler := middleware.Chain(relay,
//	    middleware.CORS(policy),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	    middleware.Metrics(metrics),
//	    middleware.Recovery(logger, policy, metrics),
//	)
package middleware
