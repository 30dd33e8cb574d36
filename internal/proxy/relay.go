package proxy

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
)

// hopHeaders are connection-scoped headers that are never relayed.
var hopHeaders = headers.NewNames(
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
)

// CopyResponseHeaders copies upstream headers into dst, dropping
// hop-by-hop headers, headers listed in Connection, and the upstream's own
// CORS headers so the relay's values win. Vary is merged.
func CopyResponseHeaders(dst, src http.Header) {
	connectionScoped := connectionTokens(src)

	for name, values := range src {
		if hopHeaders.Contains(name) || headers.IsCORSHeader(name) {
			continue
		}
		if connectionScoped.Contains(name) {
			continue
		}
		key := headers.Canonical(name)
		if key == headers.HeaderVary {
			dst[key] = append(dst[key], values...)
			continue
		}
		dst[key] = append([]string(nil), values...)
	}
}

func connectionTokens(h http.Header) headers.Names {
	var tokens []string
	for _, v := range h.Values("Connection") {
		for _, part := range strings.Split(v, ",") {
			tokens = append(tokens, strings.TrimSpace(part))
		}
	}
	return headers.NewNames(tokens...)
}

// Relay writes an upstream response to w: status verbatim, filtered
// headers, body byte for byte. It returns the number of body bytes written.
// An error status with an empty body yields a *ProxyError and nothing is
// written, so the caller can render a JSON document. Any other error means
// the body copy was interrupted after headers were sent.
func Relay(w http.ResponseWriter, r *http.Request, resp *http.Response, upstreamURL string) (int64, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		return relayError(w, r, resp, upstreamURL)
	}

	CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	return io.Copy(w, resp.Body)
}

// relayError peeks at an upstream error body so an empty one can be mapped.
// A non-empty body is streamed like any other.
func relayError(w http.ResponseWriter, r *http.Request, resp *http.Response, upstreamURL string) (int64, error) {
	body := bufio.NewReader(resp.Body)
	if _, err := body.Peek(1); err != nil {
		if !errors.Is(err, io.EOF) {
			return 0, NewUnreachableError(upstreamURL, err)
		}
		if r.Method != http.MethodHead {
			return 0, NewUpstreamStatusError(upstreamURL, resp.StatusCode)
		}
	}

	CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	return io.Copy(w, body)
}
