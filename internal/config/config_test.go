package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	require.NoError(t, Validate(cfg))
	assert.Equal(t, 8082, cfg.Listen.Port)
	assert.Equal(t, "http://localhost:5985", cfg.Upstream.URL)
	assert.Equal(t, "faraday", cfg.Upstream.Username)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, ModePassThrough, cfg.Mode)
	assert.Equal(t, "/_api/v3", cfg.Paths.APINamespace)
	assert.Equal(t, 86400, cfg.CORS.MaxAge)
}

func TestListenConfig_Addr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ":8082", ListenConfig{Port: 8082}.Addr())
	assert.Equal(t, "127.0.0.1:9000", ListenConfig{Address: "127.0.0.1", Port: 9000}.Addr())
}

func TestPathsConfig_SortedAliases(t *testing.T) {
	t.Parallel()

	p := PathsConfig{Aliases: DefaultAliases()}

	assert.Equal(t, []string{"/info", "/workspaces", "/ws"}, p.SortedAliases())
}

func TestMode_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, ModePassThrough.Valid())
	assert.True(t, ModeStaticFallback.Valid())
	assert.False(t, Mode("offline").Valid())
}

func TestConfig_StringOmitsCredentials(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Upstream.Password = "s3cret"

	assert.NotContains(t, cfg.String(), "s3cret")
	assert.Contains(t, cfg.String(), cfg.Upstream.URL)
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().Upstream, cfg.Upstream)
	assert.Equal(t, DefaultAliases(), cfg.Paths.Aliases)
	assert.True(t, cfg.Health.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := `
listen:
  port: 9999
upstream:
  url: http://faraday.internal:5985/
  timeout: 5s
mode: static-fallback
fallback:
  prefer_upstream: true
headers:
  forward_extra:
    - X-CSRFToken
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := NewViper()
	require.NoError(t, ReadFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Listen.Port)
	assert.Equal(t, "http://faraday.internal:5985", cfg.Upstream.URL)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, ModeStaticFallback, cfg.Mode)
	assert.True(t, cfg.Fallback.PreferUpstream)
	assert.Equal(t, []string{"X-CSRFToken"}, cfg.Headers.ForwardExtra)
	assert.Equal(t, "faraday", cfg.Upstream.Username)
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	err := ReadFile(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	assert.NoError(t, ReadFile(NewViper(), ""))
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CORSRELAY_UPSTREAM_URL", "https://vulns.example.com")
	t.Setenv("CORSRELAY_LISTEN_PORT", "8181")
	t.Setenv("CORSRELAY_MODE", "static-fallback")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "https://vulns.example.com", cfg.Upstream.URL)
	assert.Equal(t, 8181, cfg.Listen.Port)
	assert.Equal(t, ModeStaticFallback, cfg.Mode)
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	v := NewViper()
	v.Set("mode", "offline")
	v.Set("upstream.timeout", "0s")

	cfg, err := Load(v)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}
