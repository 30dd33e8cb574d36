// Package headers decides which request headers reach the upstream service
// and which CORS headers every response carries.
package headers

// Header names.
const (
	HeaderAuthorization    = "Authorization"
	HeaderContentType      = "Content-Type"
	HeaderContentLength    = "Content-Length"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderAccept           = "Accept"
	HeaderCookie           = "Cookie"
	HeaderOrigin           = "Origin"
	HeaderHost             = "Host"
	HeaderConnection       = "Connection"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUserAgent        = "User-Agent"
	HeaderVary             = "Vary"
	HeaderRequestID        = "X-Request-ID"
	HeaderCSRFToken        = "X-CSRFToken"
	HeaderRelayFallback    = "X-Relay-Fallback"
)

// CORS header names.
const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderMaxAge           = "Access-Control-Max-Age"

	corsPrefix = "Access-Control-"
)

// Content types.
const (
	ContentTypeJSON = "application/json"
)

// DefaultForward lists inbound headers copied to the upstream request.
var DefaultForward = []string{
	HeaderAuthorization,
	HeaderContentType,
	HeaderAccept,
	HeaderCookie,
}

// DefaultDeny lists inbound headers never copied upstream. The transport
// sets Host, Content-Length and framing itself.
var DefaultDeny = []string{
	HeaderHost,
	HeaderOrigin,
	HeaderConnection,
	HeaderContentLength,
	HeaderTransferEncoding,
	HeaderContentEncoding,
}

// DefaultAllowMethods are advertised to browsers.
var DefaultAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}

// DefaultAllowHeaders are the request headers browsers may send.
var DefaultAllowHeaders = []string{
	HeaderContentType,
	HeaderAuthorization,
	"X-Requested-With",
	HeaderAccept,
	HeaderOrigin,
	HeaderCSRFToken,
	"Cache-Control",
	"Pragma",
	"Expires",
	"If-Modified-Since",
	"If-None-Match",
	HeaderRequestID,
}

// DefaultExposeHeaders are response headers scripts may read.
var DefaultExposeHeaders = []string{
	HeaderCSRFToken,
	HeaderContentType,
	HeaderRequestID,
	HeaderRelayFallback,
}
