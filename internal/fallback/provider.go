package fallback

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Sources reported in the X-Relay-Fallback header.
const (
	SourceStatic = "static"
	SourceEmpty  = "empty"
)

// Response is a canned reply ready to be written.
type Response struct {
	Status int
	Body   []byte
	Source string
}

// Provider answers well-known upstream paths from a Dataset.
type Provider struct {
	dataset   *Dataset
	namespace string
}

// NewProvider creates a provider for paths under namespace ("/_api/v3").
func NewProvider(dataset *Dataset, namespace string) *Provider {
	return &Provider{dataset: dataset, namespace: strings.TrimRight(namespace, "/")}
}

// Dataset returns the underlying dataset.
func (p *Provider) Dataset() *Dataset {
	return p.dataset
}

// Lookup returns a static response for a translated upstream path (without
// query). Only GET requests are answered.
func (p *Provider) Lookup(method, upstreamPath string) (Response, bool) {
	if method != http.MethodGet {
		return Response{}, false
	}

	rest, ok := strings.CutPrefix(upstreamPath, p.namespace)
	if !ok || (rest != "" && rest[0] != '/') {
		return Response{}, false
	}
	rest = strings.Trim(rest, "/")
	segments := strings.Split(rest, "/")

	switch {
	case rest == "info":
		return p.render(p.dataset.Info())
	case rest == "ws":
		return p.render(p.dataset.Workspaces())
	case len(segments) == 2 && segments[0] == "ws":
		ws, found := p.dataset.Workspace(segments[1])
		if !found {
			return Response{}, false
		}
		return p.render(ws)
	case len(segments) == 3 && segments[0] == "ws" && segments[2] == "vulns":
		return p.render(p.dataset.Vulnerabilities(segments[1]))
	default:
		return Response{}, false
	}
}

// EmptyList is the substitute body for unreachable list requests.
func EmptyList() Response {
	return Response{Status: http.StatusOK, Body: []byte("[]"), Source: SourceEmpty}
}

func (p *Provider) render(v any) (Response, bool) {
	body, err := json.Marshal(v)
	if err != nil {
		return Response{}, false
	}
	return Response{Status: http.StatusOK, Body: body, Source: SourceStatic}, true
}
