// Package config defines the relay configuration model, its defaults,
// loading through viper (flags, CORSRELAY_* environment variables and an
// optional YAML file) and validation.
//
// A Config is built once at startup and is immutable afterwards. Every
// component receives the values it needs explicitly.
package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// Mode selects how upstream failures are handled.
type Mode string

const (
	// ModePassThrough maps every upstream failure to a JSON error.
	ModePassThrough Mode = "pass-through"
	// ModeStaticFallback serves a canned dataset for well-known paths and
	// substitutes empty lists for unreachable GETs.
	ModeStaticFallback Mode = "static-fallback"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePassThrough || m == ModeStaticFallback
}

// Default values.
const (
	DefaultListenPort        = 8082
	DefaultUpstreamURL       = "http://localhost:5985"
	DefaultUsername          = "faraday"
	DefaultPassword          = "faraday"
	DefaultUpstreamTimeout   = 30 * time.Second
	DefaultProxyPrefix       = "/proxy"
	DefaultAPINamespace      = "/_api/v3"
	DefaultCORSMaxAge        = 86400
	DefaultMaxBodyBytes      = 10 << 20
	DefaultHealthPath        = "/health"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultBreakerThreshold  = 5
	DefaultBreakerTimeout    = 30 * time.Second
	DefaultProbeTimeout      = 5 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultTracingSampleRate = 1.0
)

// Config is the complete relay configuration.
type Config struct {
	Listen   ListenConfig   `mapstructure:"listen"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Mode     Mode           `mapstructure:"mode"`
	Paths    PathsConfig    `mapstructure:"paths"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Headers  HeadersConfig  `mapstructure:"headers"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Health   HealthConfig   `mapstructure:"health"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Startup  StartupConfig  `mapstructure:"startup"`
}

// ListenConfig configures the inbound listener.
type ListenConfig struct {
	Address         string        `mapstructure:"address"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port the relay listens on.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// UpstreamConfig describes the single upstream target.
type UpstreamConfig struct {
	URL            string               `mapstructure:"url"`
	Username       string               `mapstructure:"username"`
	Password       string               `mapstructure:"password"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig configures optional upstream fault isolation.
type CircuitBreakerConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PathsConfig drives the path translation table.
type PathsConfig struct {
	ProxyPrefix  string `mapstructure:"proxy_prefix"`
	APINamespace string `mapstructure:"api_namespace"`
	// Aliases maps a bare inbound path to a path inside the API namespace.
	Aliases map[string]string `mapstructure:"aliases"`
}

// SortedAliases returns alias sources in lexical order.
func (p PathsConfig) SortedAliases() []string {
	keys := make([]string, 0, len(p.Aliases))
	for k := range p.Aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CORSConfig configures the response headers browsers check.
type CORSConfig struct {
	AllowCredentials bool `mapstructure:"allow_credentials"`
	MaxAge           int  `mapstructure:"max_age"`
}

// HeadersConfig extends the forwarding allow-list.
type HeadersConfig struct {
	ForwardExtra []string `mapstructure:"forward_extra"`
}

// LimitsConfig bounds inbound requests.
type LimitsConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// HealthConfig configures the local health endpoint.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// FallbackConfig configures the static dataset.
type FallbackConfig struct {
	DatasetFile    string `mapstructure:"dataset_file"`
	PreferUpstream bool   `mapstructure:"prefer_upstream"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// StartupConfig configures the upstream connectivity probe.
type StartupConfig struct {
	Probe        bool          `mapstructure:"probe"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// DefaultAliases returns the built-in bare path aliases, relative to the
// API namespace.
func DefaultAliases() map[string]string {
	return map[string]string{
		"/ws":         "/ws",
		"/workspaces": "/ws",
		"/info":       "/info",
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Port:            DefaultListenPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Upstream: UpstreamConfig{
			URL:      DefaultUpstreamURL,
			Username: DefaultUsername,
			Password: DefaultPassword,
			Timeout:  DefaultUpstreamTimeout,
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: DefaultBreakerThreshold,
				Timeout:   DefaultBreakerTimeout,
			},
		},
		Mode: ModePassThrough,
		Paths: PathsConfig{
			ProxyPrefix:  DefaultProxyPrefix,
			APINamespace: DefaultAPINamespace,
			Aliases:      DefaultAliases(),
		},
		CORS: CORSConfig{
			AllowCredentials: true,
			MaxAge:           DefaultCORSMaxAge,
		},
		Limits: LimitsConfig{MaxBodyBytes: DefaultMaxBodyBytes},
		Health: HealthConfig{Enabled: true, Path: DefaultHealthPath},
		Log:    LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    DefaultMetricsPort,
			Path:    DefaultMetricsPath,
		},
		Tracing: TracingConfig{SamplingRate: DefaultTracingSampleRate},
		Startup: StartupConfig{Probe: true, ProbeTimeout: DefaultProbeTimeout},
	}
}

// String renders a credential-free summary for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("listen=%s upstream=%s mode=%s timeout=%s",
		c.Listen.Addr(), c.Upstream.URL, c.Mode, c.Upstream.Timeout)
}
