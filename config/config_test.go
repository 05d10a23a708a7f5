package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natsbridge/errors"
)

var envKeys = []string{
	"NATS_HOST", "NATS_PORT", "NATS_USER", "NATS_PASS", "NATS_TOKEN",
	"NATS_DEFAULT_TIMEOUT", "NATS_DEFAULT_REQUEST_RETRIES", "ENABLE_PERF_LOG",
	"NATSBRIDGE_NATS_NAME", "NATSBRIDGE_NATS_MAX_RECONNECTS", "NATSBRIDGE_NATS_RECONNECT_WAIT",
	"NATSBRIDGE_LOG_LEVEL", "NATSBRIDGE_LOG_FORMAT", "NATSBRIDGE_METRICS_ENABLED",
	"NATSBRIDGE_METRICS_ADDR", "NATSBRIDGE_PERF_LOG_EXCLUDES",
	"NATSBRIDGE_NATS_TLS_ENABLED", "NATSBRIDGE_NATS_TLS_CA_FILES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.NATS.Host)
	assert.Equal(t, 4222, cfg.NATS.Port)
	assert.Equal(t, 1000, cfg.NATS.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.True(t, cfg.NATS.WaitOnFirstConnect)
	assert.Equal(t, 10*time.Second, cfg.Request.DefaultTimeout)
	assert.Equal(t, 1, cfg.Request.DefaultRetries)
	assert.False(t, cfg.Request.PerfLog)
	assert.NoError(t, cfg.Validate())
}

func TestNATSConfig_URL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 4222, "nats://localhost:4222"},
		{"nats://broker.internal", 4223, "nats://broker.internal:4223"},
		{"tls://broker.internal:4443", 4222, "tls://broker.internal:4443"},
		{"10.0.0.7", 4222, "nats://10.0.0.7:4222"},
	}
	for _, tt := range tests {
		n := NATSConfig{Host: tt.host, Port: tt.port}
		assert.Equal(t, tt.want, n.URL(), tt.host)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.NATS.Host = ""
	cfg.NATS.Port = 0
	cfg.NATS.User = "svc"
	cfg.Request.DefaultRetries = -1
	cfg.Request.DefaultTimeout = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))

	msg := err.Error()
	for _, want := range []string{
		"nats.host is required",
		"nats.port must be between",
		"nats.user and nats.pass must be set together",
		"request.default_retries must be a non-negative number",
		"request.default_timeout must be positive",
		"log.level must be",
	} {
		assert.Contains(t, msg, want)
	}
	assert.Contains(t, msg, "6 problem(s)")
}

func TestValidate_Metrics(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "metrics"
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)

	cfg.Metrics.Path = "/metrics"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_TLS(t *testing.T) {
	cfg := Default()
	cfg.NATS.TLS.CertFile = "client.pem"
	assert.NoError(t, cfg.Validate(), "disabled TLS is not checked")

	cfg.NATS.TLS.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.tls")

	cfg.NATS.TLS.KeyFile = "client-key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestLoader_TLSFromFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "tls.yaml", `
nats:
  host: tls://broker.internal:4443
  tls:
    min_version: "1.3"
`)
	t.Setenv("NATSBRIDGE_NATS_TLS_ENABLED", "true")
	t.Setenv("NATSBRIDGE_NATS_TLS_CA_FILES", "/etc/ssl/a.pem,/etc/ssl/b.pem")

	loader := NewLoader()
	loader.AddLayer(path)
	loader.EnableValidation(true)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.True(t, cfg.NATS.TLS.Enabled)
	assert.Equal(t, "1.3", cfg.NATS.TLS.MinVersion)
	assert.Equal(t, []string{"/etc/ssl/a.pem", "/etc/ssl/b.pem"}, cfg.NATS.TLS.CAFiles)
	assert.Equal(t, "tls://broker.internal:4443", cfg.NATS.URL())
}

func TestLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_Layers(t *testing.T) {
	clearEnv(t)

	base := writeConfig(t, "base.yaml", `
nats:
  host: broker.internal
  port: 4223
  reconnect_wait: 500ms
request:
  default_timeout: 3s
log:
  format: text
`)
	override := writeConfig(t, "override.yml", `
nats:
  port: 5222
request:
  default_retries: 4
  perf_log: true
  perf_log_excludes: [HEARTBEAT]
`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "broker.internal", cfg.NATS.Host)
	assert.Equal(t, 5222, cfg.NATS.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, 1000, cfg.NATS.MaxReconnects, "untouched keys keep defaults")
	assert.Equal(t, 3*time.Second, cfg.Request.DefaultTimeout)
	assert.Equal(t, 4, cfg.Request.DefaultRetries)
	assert.True(t, cfg.Request.PerfLog)
	assert.Equal(t, []string{"HEARTBEAT"}, cfg.Request.PerfLogExcludes)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoader_EnvOverridesFiles(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", "nats:\n  host: from-file\n")

	t.Setenv("NATS_HOST", "from-env")
	t.Setenv("NATS_PORT", "4333")
	t.Setenv("NATS_USER", "svc")
	t.Setenv("NATS_PASS", "secret")
	t.Setenv("NATS_DEFAULT_TIMEOUT", "1500")
	t.Setenv("NATS_DEFAULT_REQUEST_RETRIES", "3")
	t.Setenv("ENABLE_PERF_LOG", "true")
	t.Setenv("NATSBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("NATSBRIDGE_PERF_LOG_EXCLUDES", "A,B")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.NATS.Host)
	assert.Equal(t, 4333, cfg.NATS.Port)
	assert.Equal(t, "svc", cfg.NATS.User)
	assert.Equal(t, "secret", cfg.NATS.Pass)
	assert.Equal(t, 1500*time.Millisecond, cfg.Request.DefaultTimeout)
	assert.Equal(t, 3, cfg.Request.DefaultRetries)
	assert.True(t, cfg.Request.PerfLog)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"A", "B"}, cfg.Request.PerfLogExcludes)
}

func TestLoader_DurationEnvAcceptsGoSyntax(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_DEFAULT_TIMEOUT", "2s")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Request.DefaultTimeout)
}

func TestLoader_CustomPrefix(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY_LOG_LEVEL", "warn")

	loader := NewLoader()
	loader.SetEnvPrefix("GATEWAY_")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_PORT", "four")
	t.Setenv("NATS_DEFAULT_REQUEST_RETRIES", "abc")
	t.Setenv("ENABLE_PERF_LOG", "maybe")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	for _, key := range []string{"NATS_PORT", "NATS_DEFAULT_REQUEST_RETRIES", "ENABLE_PERF_LOG"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoader_NegativeRetriesFailValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_DEFAULT_REQUEST_RETRIES", "-1")

	loader := NewLoader()
	_, err := loader.Load()
	require.NoError(t, err, "validation is opt-in")

	loader.EnableValidation(true)
	_, err = loader.Load()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoader_FileErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "missing.yaml")},
		{"wrong extension", writeConfig(t, "config.toml", "nats = 1")},
		{"unknown key", writeConfig(t, "unknown.yaml", "nats:\n  hots: typo\n")},
		{"bad duration", writeConfig(t, "duration.yaml", "request:\n  default_timeout: soon\n")},
		{"traversal", "../../etc/passwd.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadFile(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "got %v", err)
		})
	}
}

func TestLoader_EmptyFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "empty.yaml", "")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.NATS.User = "svc"
	cfg.NATS.Pass = "hunter2"
	cfg.NATS.Token = "tok"

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "Token:tok ")
	assert.True(t, strings.Contains(s, "Pass:***"))
	assert.Equal(t, "hunter2", cfg.NATS.Pass, "String must not modify the config")
}
