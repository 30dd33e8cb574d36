package headers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
)

// Options configures a Policy.
type Options struct {
	// Username and Password form the credential injected when the caller
	// sends no Authorization header. An empty username disables injection.
	Username string
	Password string

	UserAgent        string
	ForwardExtra     []string
	AllowCredentials bool
	MaxAge           int
}

// Policy is the immutable header policy shared by all requests.
type Policy struct {
	forward   Names
	deny      Names
	authValue string
	userAgent string
	cors      *corsHeaders
}

// NewPolicy builds a policy from opts.
func NewPolicy(opts Options) *Policy {
	p := &Policy{
		forward:   NewNames(DefaultForward...).With(opts.ForwardExtra...),
		deny:      NewNames(DefaultDeny...),
		userAgent: opts.UserAgent,
		cors:      newCORSHeaders(opts.AllowCredentials, opts.MaxAge),
	}
	if opts.Username != "" {
		p.authValue = BasicAuth(opts.Username, opts.Password)
	}
	return p
}

// ForwardHeaders builds the header set sent upstream for one request.
// Inbound Authorization is passed through untouched; when absent the
// configured Basic credential is injected.
func (p *Policy) ForwardHeaders(method string, inbound http.Header) http.Header {
	out := make(http.Header, p.forward.Len()+2)

	for _, key := range p.forward.Canonical() {
		if p.deny.Contains(key) {
			continue
		}
		if values := inbound.Values(key); len(values) > 0 {
			out[key] = append([]string(nil), values...)
		}
	}

	if out.Get(HeaderAuthorization) == "" && p.authValue != "" {
		out.Set(HeaderAuthorization, p.authValue)
	}
	if out.Get(HeaderAccept) == "" {
		out.Set(HeaderAccept, ContentTypeJSON)
	}
	if out.Get(HeaderContentType) == "" && carriesJSONBody(method) {
		out.Set(HeaderContentType, ContentTypeJSON)
	}
	if p.userAgent != "" {
		out.Set(HeaderUserAgent, p.userAgent)
	}

	return out
}

// Forwarded returns the allow-list in order.
func (p *Policy) Forwarded() []string {
	return p.forward.Display()
}

func carriesJSONBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// BasicAuth returns an HTTP Basic Authorization header value.
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// corsHeaders holds pre-computed CORS header values.
type corsHeaders struct {
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	maxAge           string
	allowCredentials bool
}

func newCORSHeaders(allowCredentials bool, maxAge int) *corsHeaders {
	h := &corsHeaders{
		allowMethods:     strings.Join(DefaultAllowMethods, ", "),
		allowHeaders:     NewNames(DefaultAllowHeaders...).Join(),
		exposeHeaders:    NewNames(DefaultExposeHeaders...).Join(),
		allowCredentials: allowCredentials,
	}
	if maxAge > 0 {
		h.maxAge = strconv.Itoa(maxAge)
	}
	return h
}

// ApplyCORS sets the relay's CORS headers on h, replacing any existing
// values. The origin is echoed when credentials are allowed and an origin
// was sent; otherwise any origin is allowed.
func (p *Policy) ApplyCORS(h http.Header, origin string) {
	c := p.cors

	if c.allowCredentials && origin != "" {
		h.Set(HeaderAllowOrigin, origin)
		h.Set(HeaderAllowCredentials, "true")
		if !hasToken(h.Values(HeaderVary), HeaderOrigin) {
			h.Add(HeaderVary, HeaderOrigin)
		}
	} else {
		h.Set(HeaderAllowOrigin, "*")
		h.Del(HeaderAllowCredentials)
	}

	h.Set(HeaderAllowMethods, c.allowMethods)
	h.Set(HeaderAllowHeaders, c.allowHeaders)
	h.Set(HeaderExposeHeaders, c.exposeHeaders)
	if c.maxAge != "" {
		h.Set(HeaderMaxAge, c.maxAge)
	}
}

// CORSHeaders returns the CORS headers for origin as a fresh header set.
func (p *Policy) CORSHeaders(origin string) http.Header {
	h := make(http.Header, 7)
	p.ApplyCORS(h, origin)
	return h
}

// IsCORSHeader reports whether name is an Access-Control-* header.
func IsCORSHeader(name string) bool {
	return strings.HasPrefix(Canonical(name), corsPrefix)
}

func hasToken(values []string, token string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
