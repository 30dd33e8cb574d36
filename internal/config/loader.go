package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by the relay.
const EnvPrefix = "CORSRELAY"

// NewViper returns a viper instance with defaults and environment binding
// applied. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every default with v so that AutomaticEnv can see
// all keys during Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("listen.address", d.Listen.Address)
	v.SetDefault("listen.port", d.Listen.Port)
	v.SetDefault("listen.shutdown_timeout", d.Listen.ShutdownTimeout)

	v.SetDefault("upstream.url", d.Upstream.URL)
	v.SetDefault("upstream.username", d.Upstream.Username)
	v.SetDefault("upstream.password", d.Upstream.Password)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.circuit_breaker.enabled", d.Upstream.CircuitBreaker.Enabled)
	v.SetDefault("upstream.circuit_breaker.threshold", d.Upstream.CircuitBreaker.Threshold)
	v.SetDefault("upstream.circuit_breaker.timeout", d.Upstream.CircuitBreaker.Timeout)

	v.SetDefault("mode", string(d.Mode))

	v.SetDefault("paths.proxy_prefix", d.Paths.ProxyPrefix)
	v.SetDefault("paths.api_namespace", d.Paths.APINamespace)
	v.SetDefault("paths.aliases", d.Paths.Aliases)

	v.SetDefault("cors.allow_credentials", d.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", d.CORS.MaxAge)

	v.SetDefault("headers.forward_extra", []string{})
	v.SetDefault("limits.max_body_bytes", d.Limits.MaxBodyBytes)

	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.path", d.Health.Path)

	v.SetDefault("fallback.dataset_file", d.Fallback.DatasetFile)
	v.SetDefault("fallback.prefer_upstream", d.Fallback.PreferUpstream)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)

	v.SetDefault("startup.probe", d.Startup.Probe)
	v.SetDefault("startup.probe_timeout", d.Startup.ProbeTimeout)
}

// ReadFile merges a YAML config file into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid configuration: %w", verrs)
		}
		return nil, err
	}

	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Upstream.URL = strings.TrimRight(cfg.Upstream.URL, "/")
	cfg.Paths.ProxyPrefix = strings.TrimRight(cfg.Paths.ProxyPrefix, "/")
	cfg.Paths.APINamespace = strings.TrimRight(cfg.Paths.APINamespace, "/")
	if cfg.Paths.Aliases == nil {
		cfg.Paths.Aliases = DefaultAliases()
	}
}
