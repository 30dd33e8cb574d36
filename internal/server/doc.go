// Package server assembles the relay's HTTP surface: a gin engine serving
// the health route with the relay engine as its catch-all handler, wrapped
// in the middleware chain, plus an optional separate metrics listener.
package server
