package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vyrodovalexey/corsrelay/internal/headers"
)

// Kind classifies a relay failure.
type Kind string

// Failure kinds.
const (
	KindUpstreamHTTP        Kind = "upstream-http-error"
	KindUpstreamUnreachable Kind = "upstream-unreachable"
	KindMalformedRequest    Kind = "malformed-request"
	KindInternal            Kind = "internal"
)

// Sentinel errors for relay operations.
var (
	// ErrUpstreamUnreachable indicates a transport-level failure.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamTimeout indicates the upstream call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrCircuitOpen indicates the circuit breaker rejected the call.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrUpstreamStatus indicates a non-2xx upstream response without a body.
	ErrUpstreamStatus = errors.New("upstream returned an error status")

	// ErrMalformedRequest indicates the inbound request could not be read.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrBodyTooLarge indicates the inbound body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// ProxyError represents a relay failure with everything needed to render it.
type ProxyError struct {
	Kind    Kind
	Op      string // Pipeline step that failed
	Status  int    // Upstream status for KindUpstreamHTTP
	Message string // Client-facing message
	URL     string // Upstream URL if applicable
	Cause   error
}

// Error implements the error interface.
func (e *ProxyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("relay error [%s/%s]: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("relay error [%s/%s]: %s", e.Op, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProxyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProxyError) Is(target error) bool {
	_, ok := target.(*ProxyError)
	return ok || errors.Is(e.Cause, target)
}

// StatusCode returns the HTTP status the error is rendered with.
func (e *ProxyError) StatusCode() int {
	switch e.Kind {
	case KindUpstreamHTTP:
		if e.Status > 0 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindUpstreamUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON error document.
type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	URL   string `json:"url,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Body returns the JSON document describing e.
func (e *ProxyError) Body() ErrorBody {
	body := ErrorBody{
		Error: e.Message,
		Code:  e.StatusCode(),
	}
	switch e.Kind {
	case KindUpstreamUnreachable:
		body.URL = e.URL
	case KindInternal:
		body.Type = causeType(e.Cause)
	}
	return body
}

func causeType(err error) string {
	if err == nil {
		return "error"
	}
	return fmt.Sprintf("%T", err)
}

// NewUnreachableError creates an error for a transport failure.
func NewUnreachableError(upstreamURL string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindUpstreamUnreachable,
		Op:      "forward",
		Message: "connection failed: " + unreachableReason(cause),
		URL:     upstreamURL,
		Cause:   cause,
	}
}

// NewUpstreamStatusError creates an error for an upstream error status
// that came without a body.
func NewUpstreamStatusError(upstreamURL string, status int) *ProxyError {
	text := http.StatusText(status)
	if text == "" {
		text = "status " + strconv.Itoa(status)
	}
	return &ProxyError{
		Kind:    KindUpstreamHTTP,
		Op:      "relay",
		Status:  status,
		Message: fmt.Sprintf("HTTP %d: %s", status, text),
		URL:     upstreamURL,
		Cause:   ErrUpstreamStatus,
	}
}

// NewMalformedRequestError creates an error for an unreadable request.
func NewMalformedRequestError(message string, cause error) *ProxyError {
	return &ProxyError{
		Kind:    KindMalformedRequest,
		Op:      "read_request",
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an error for an unexpected fault.
func NewInternalError(op string, cause error) *ProxyError {
	message := "internal error"
	if cause != nil {
		message = cause.Error()
	}
	return &ProxyError{
		Kind:    KindInternal,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// unreachableReason renders a transport failure for clients.
func unreachableReason(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, ErrCircuitOpen):
		return ErrCircuitOpen.Error()
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrUpstreamTimeout.Error()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUpstreamTimeout.Error()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

// AsProxyError converts any error into a *ProxyError.
func AsProxyError(err error) *ProxyError {
	var perr *ProxyError
	if errors.As(err, &perr) {
		return perr
	}
	return NewInternalError("unknown", err)
}

// WriteError renders e as JSON. CORS headers must already be present on w.
func WriteError(w http.ResponseWriter, e *ProxyError) {
	body, err := json.Marshal(e.Body())
	if err != nil {
		body = []byte(`{"error":"internal error","code":500}`)
	}

	h := w.Header()
	h.Set(headers.HeaderContentType, headers.ContentTypeJSON)
	h.Set(headers.HeaderContentLength, strconv.Itoa(len(body)))
	w.WriteHeader(e.StatusCode())
	_, _ = w.Write(body)
}
