package health

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// StatusOK is the only status the endpoint reports.
const StatusOK = "ok"

// Status is the health document.
type Status struct {
	Status       string `json:"status"`
	ProxyVersion string `json:"proxy_version"`
	UpstreamURL  string `json:"upstream_url"`
	Mode         string `json:"mode"`
}

// Handler serves the health endpoint.
type Handler struct {
	status Status
	policy *headers.Policy
	logger observability.Logger
}

// HandlerOption is a functional option for configuring the handler.
type HandlerOption func(*Handler)

// WithCORS makes the handler stamp CORS headers itself, for use outside
// the relay middleware chain.
func WithCORS(policy *headers.Policy) HandlerOption {
	return func(h *Handler) {
		h.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a health handler.
func NewHandler(version, upstreamURL, mode string, opts ...HandlerOption) *Handler {
	h := &Handler{
		status: Status{
			Status:       StatusOK,
			ProxyVersion: version,
			UpstreamURL:  upstreamURL,
			Mode:         mode,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Status returns the health document.
func (h *Handler) Status() Status {
	return h.status
}

// HealthHandler returns a gin handler for the health endpoint.
func (h *Handler) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.policy != nil {
			h.policy.ApplyCORS(c.Writer.Header(), c.GetHeader(headers.HeaderOrigin))
		}
		c.JSON(http.StatusOK, h.status)
	}
}

// RegisterRoutes registers the health route on a gin engine.
func (h *Handler) RegisterRoutes(engine *gin.Engine, path string) {
	engine.GET(path, h.HealthHandler())
	engine.HEAD(path, h.HealthHandler())
	h.logger.Debug("health endpoint registered", observability.String("path", path))
}
