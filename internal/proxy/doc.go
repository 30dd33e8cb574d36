// Package proxy implements the request-forwarding engine of the relay.
//
// An inbound request flows through a linear pipeline:
//
//	read request -> translate path -> static fallback? -> header policy
//	  -> forward upstream -> relay response | map error | fallback
//
// Each fallible step returns a *ProxyError carrying one of four kinds
// (upstream-http-error, upstream-unreachable, malformed-request, internal).
// Every response the engine writes, including errors, carries the relay's
// CORS headers and every error body is JSON.
//
// The engine holds no per-request mutable state; all collaborators are
// immutable after construction or internally synchronized.
package proxy
