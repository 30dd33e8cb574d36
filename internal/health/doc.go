// Package health provides the relay's health endpoint and the startup
// connectivity probe against the upstream service.
//
// The health endpoint never contacts the upstream: it reports the relay
// version, the configured upstream URL and the operating mode. The startup
// probe is informational only and the relay starts regardless of its
// outcome.
package health
