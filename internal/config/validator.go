package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/corsrelay/internal/observability"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator collects configuration problems.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates cfg and returns all problems as ValidationErrors.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateListen(&cfg.Listen)
	v.validateUpstream(&cfg.Upstream)
	v.validateMode(cfg.Mode)
	v.validatePaths(&cfg.Paths)
	v.validateLimits(&cfg.Limits, &cfg.CORS)
	v.validateHealth(&cfg.Health)
	v.validateObservability(cfg)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateListen(l *ListenConfig) {
	if l.Port < 1 || l.Port > 65535 {
		v.addError("listen.port", fmt.Sprintf("must be between 1 and 65535, got %d", l.Port))
	}
	if l.ShutdownTimeout < 0 {
		v.addError("listen.shutdown_timeout", "must not be negative")
	}
}

func (v *Validator) validateUpstream(u *UpstreamConfig) {
	if u.URL == "" {
		v.addError("upstream.url", "is required")
	} else {
		parsed, err := url.Parse(u.URL)
		switch {
		case err != nil:
			v.addError("upstream.url", fmt.Sprintf("invalid URL: %v", err))
		case parsed.Scheme != "http" && parsed.Scheme != "https":
			v.addError("upstream.url", fmt.Sprintf("scheme must be http or https, got %q", parsed.Scheme))
		case parsed.Host == "":
			v.addError("upstream.url", "host is required")
		case parsed.Path != "" && parsed.Path != "/":
			v.addError("upstream.url", "must not contain a path")
		}
	}

	if u.Timeout <= 0 {
		v.addError("upstream.timeout", "must be positive")
	}
	if strings.Contains(u.Username, ":") {
		v.addError("upstream.username", "must not contain ':'")
	}

	if u.CircuitBreaker.Enabled {
		if u.CircuitBreaker.Threshold < 1 {
			v.addError("upstream.circuit_breaker.threshold", "must be at least 1")
		}
		if u.CircuitBreaker.Timeout <= 0 {
			v.addError("upstream.circuit_breaker.timeout", "must be positive")
		}
	}
}

func (v *Validator) validateMode(m Mode) {
	if !m.Valid() {
		v.addError("mode", fmt.Sprintf("must be %q or %q, got %q", ModePassThrough, ModeStaticFallback, m))
	}
}

func (v *Validator) validatePaths(p *PathsConfig) {
	if p.ProxyPrefix != "" && !strings.HasPrefix(p.ProxyPrefix, "/") {
		v.addError("paths.proxy_prefix", "must start with '/'")
	}
	if !strings.HasPrefix(p.APINamespace, "/") || p.APINamespace == "/" {
		v.addError("paths.api_namespace", "must start with '/' and not be the root")
	}
	for _, from := range p.SortedAliases() {
		to := p.Aliases[from]
		if !strings.HasPrefix(from, "/") {
			v.addError("paths.aliases."+from, "source must start with '/'")
		}
		if !strings.HasPrefix(to, "/") {
			v.addError("paths.aliases."+from, "target must start with '/'")
		}
	}
}

func (v *Validator) validateLimits(l *LimitsConfig, c *CORSConfig) {
	if l.MaxBodyBytes <= 0 {
		v.addError("limits.max_body_bytes", "must be positive")
	}
	if c.MaxAge < 0 {
		v.addError("cors.max_age", "must not be negative")
	}
}

func (v *Validator) validateHealth(h *HealthConfig) {
	if h.Enabled && !strings.HasPrefix(h.Path, "/") {
		v.addError("health.path", "must start with '/'")
	}
}

func (v *Validator) validateObservability(cfg *Config) {
	if _, err := observability.ParseLevel(cfg.Log.Level); err != nil {
		v.addError("log.level", err.Error())
	}
	switch cfg.Log.Format {
	case observability.LogFormatJSON, observability.LogFormatConsole:
	default:
		v.addError("log.format", fmt.Sprintf("must be json or console, got %q", cfg.Log.Format))
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			v.addError("metrics.port", fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Metrics.Port))
		}
		if cfg.Metrics.Port == cfg.Listen.Port {
			v.addError("metrics.port", "must differ from listen.port")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			v.addError("metrics.path", "must start with '/'")
		}
	}

	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
		v.addError("tracing.sampling_rate", "must be between 0 and 1")
	}
}
