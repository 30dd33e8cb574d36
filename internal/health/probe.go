package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// DefaultProbeTimeout bounds the startup probe.
const DefaultProbeTimeout = 5 * time.Second

// ErrProbeStatus is returned when the upstream answers the probe with a
// non-2xx status.
var ErrProbeStatus = errors.New("unexpected probe status")

// Prober issues a single bounded GET against the upstream.
type Prober interface {
	Probe(ctx context.Context, target string, header http.Header, timeout time.Duration) (int, []byte, error)
}

// ProbeResult is the outcome of a startup probe.
type ProbeResult struct {
	Reachable bool
	Status    int
	Version   string
	Duration  time.Duration
	Err       error
}

// UnknownVersion is reported when the info document carries no version.
const UnknownVersion = "unknown"

// serverInfo matches "Version" case-insensitively.
type serverInfo struct {
	Version string `json:"Version"`
}

// StartupProbe checks upstream connectivity once and logs the outcome.
// A failed probe is logged as a warning and never aborts startup.
func StartupProbe(
	ctx context.Context,
	prober Prober,
	target string,
	header http.Header,
	timeout time.Duration,
	logger observability.Logger,
) ProbeResult {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	start := time.Now()
	status, body, err := prober.Probe(ctx, target, header, timeout)
	result := ProbeResult{Status: status, Duration: time.Since(start)}

	switch {
	case err != nil:
		result.Err = err
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		result.Err = fmt.Errorf("%w: %d", ErrProbeStatus, status)
	default:
		result.Reachable = true
		result.Version = parseVersion(body)
	}

	if result.Reachable {
		logger.Info("upstream reachable",
			observability.String("target", target),
			observability.String("upstream_version", result.Version),
			observability.Duration("duration", result.Duration),
		)
		return result
	}

	logger.Warn("upstream not reachable, starting anyway",
		observability.String("target", target),
		observability.Int("status", status),
		observability.Duration("duration", result.Duration),
		observability.Error(result.Err),
	)
	return result
}

func parseVersion(body []byte) string {
	var info serverInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return UnknownVersion
	}
	if info.Version == "" {
		return UnknownVersion
	}
	return info.Version
}
