package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natsbridge/config"
	"github.com/c360/natsbridge/metric"
	"github.com/c360/natsbridge/natsclient"
	"github.com/c360/natsbridge/pkg/tlsutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NATSBRIDGE_CONFIG", "NATSBRIDGE_METRICS_ENABLED", "NATSBRIDGE_LOG_LEVEL",
		"NATS_HOST", "NATS_PORT", "NATS_USER", "NATS_PASS", "NATS_TOKEN",
		"NATS_DEFAULT_TIMEOUT", "NATS_DEFAULT_REQUEST_RETRIES", "ENABLE_PERF_LOG",
	} {
		t.Setenv(key, "")
	}
}

func TestParseFlags(t *testing.T) {
	clearEnv(t)

	cli, err := parseFlags([]string{
		"-config", "a.yaml", "-config", "b.yaml", "-log-level", "debug",
		"request", "-subject", "svc.time",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cli.ConfigPaths)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, "request", cli.Command)
	assert.Equal(t, []string{"-subject", "svc.time"}, cli.Args)
	assert.NoError(t, validateFlags(cli))
}

func TestParseFlags_ConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATSBRIDGE_CONFIG", "/etc/natsbridge/config.yaml")

	cli, err := parseFlags([]string{"listen"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/natsbridge/config.yaml"}, cli.ConfigPaths)
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		cli     CLIConfig
		wantErr string
	}{
		{"missing command", CLIConfig{}, "missing command"},
		{"unknown command", CLIConfig{Command: "subscribe"}, "unknown command"},
		{"bad level", CLIConfig{Command: "listen", LogLevel: "loud"}, "invalid log level"},
		{"bad format", CLIConfig{Command: "listen", LogFormat: "xml"}, "invalid log format"},
		{"version needs no command", CLIConfig{ShowVersion: true}, ""},
		{"validate needs no command", CLIConfig{Validate: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFlags(&tt.cli)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseRequestFlags(t *testing.T) {
	rf, err := parseRequestFlags([]string{
		"-subject", "svc.time", "-data", `{"tz":"UTC"}`, "-retries", "2", "-timeout", "1500ms",
		"-header", "trace=abc", "-header", "trace=def",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "svc.time", rf.Subject)
	assert.Equal(t, `{"tz":"UTC"}`, rf.Data)
	assert.Equal(t, 2, rf.Retries)
	assert.Equal(t, 1500*time.Millisecond, rf.Timeout)
	assert.Equal(t, []string{"abc", "def"}, rf.Headers["trace"])

	rf, err = parseRequestFlags([]string{"-subject", "svc.time"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, -1, rf.Retries, "unset retries fall back to config")

	_, err = parseRequestFlags([]string{"-header", "novalue", "-subject", "x"}, io.Discard)
	assert.Error(t, err)

	_, err = parseRequestFlags(nil, io.Discard)
	assert.ErrorContains(t, err, "-subject is required")
}

func TestParseListenAndPublishFlags(t *testing.T) {
	lf, err := parseListenFlags([]string{"-subject", "orders.>", "-queue", "workers"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "orders.>", lf.Subject)
	assert.Equal(t, "workers", lf.Queue)

	pf, err := parsePublishFlags([]string{"-subject", "events.ping", "-data", "hi"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "hi", pf.Data)

	assert.Equal(t, 1, pf.Count)
	assert.Zero(t, pf.Rate)

	pf, err = parsePublishFlags([]string{"-subject", "events.ping", "-count", "5", "-rate", "2.5"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 5, pf.Count)
	assert.InDelta(t, 2.5, pf.Rate, 0)

	_, err = parseListenFlags(nil, io.Discard)
	assert.Error(t, err)
	_, err = parsePublishFlags(nil, io.Discard)
	assert.Error(t, err)
	_, err = parsePublishFlags([]string{"-subject", "x", "-count", "0"}, io.Discard)
	assert.ErrorContains(t, err, "-count")
	_, err = parsePublishFlags([]string{"-subject", "x", "-rate", "-1"}, io.Discard)
	assert.ErrorContains(t, err, "-rate")
}

func TestPublishPaced(t *testing.T) {
	tests := []struct {
		name       string
		flags      PublishFlags
		minElapsed time.Duration
	}{
		{"unlimited", PublishFlags{Subject: "events.ping", Data: "hi", Count: 3}, 0},
		{"rate limited", PublishFlags{Subject: "events.ping", Data: "hi", Count: 3, Rate: 20}, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stamps []time.Time
			start := time.Now()
			sent, err := publishPaced(context.Background(), &tt.flags, func(_ context.Context, subject string, data []byte) error {
				assert.Equal(t, "events.ping", subject)
				assert.Equal(t, "hi", string(data))
				stamps = append(stamps, time.Now())
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, 3, sent)
			assert.Len(t, stamps, 3)
			assert.GreaterOrEqual(t, time.Since(start), tt.minElapsed)
		})
	}
}

func TestPublishPaced_StopsOnError(t *testing.T) {
	failed := stderrors.New("nats: connection closed")
	calls := 0
	sent, err := publishPaced(context.Background(), &PublishFlags{Subject: "s", Count: 5},
		func(context.Context, string, []byte) error {
			calls++
			if calls == 2 {
				return failed
			}
			return nil
		})

	assert.Same(t, failed, err)
	assert.Equal(t, 1, sent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, err = publishPaced(ctx, &PublishFlags{Subject: "s", Count: 2, Rate: 1}, func(context.Context, string, []byte) error {
		return nil
	})
	assert.Error(t, err)
	assert.Less(t, sent, 2)
}

func TestNewClient_MapsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.NATS.Host = "broker.internal"
	cfg.NATS.Port = 4333
	cfg.NATS.User = "svc"
	cfg.NATS.Pass = "secret"
	cfg.NATS.Name = "bridge-1"
	cfg.Request.PerfLogExcludes = []string{"HEARTBEAT"}

	client, err := newClient(cfg, setupLogger(io.Discard, "info", "json"), metric.NewMetricsRegistry())
	require.NoError(t, err)
	assert.Equal(t, "nats://broker.internal:4333", client.URL())
	assert.Equal(t, natsclient.StatusDisconnected, client.Status())

	cfg.NATS.TLS.Enabled = true
	cfg.NATS.TLS.CAFiles = []string{filepath.Join(t.TempDir(), "missing-ca.pem")}
	_, err = newClient(cfg, nil, nil)
	assert.Error(t, err, "unreadable CA file")

	cfg.NATS.TLS = tlsutil.Config{Enabled: true}
	_, err = newClient(cfg, nil, nil)
	assert.NoError(t, err)

	cfg.NATS.ConnectTimeout = 0
	_, err = newClient(cfg, nil, nil)
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "natsbridge version "+Version)
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-h"}, io.Discard, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr.String(), "Commands:")
}

func TestRun_ValidateOnly(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  host: broker.internal\n"), 0600))

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", path, "-validate"}, &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "configuration is valid")
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("NATS_DEFAULT_REQUEST_RETRIES", "-3")

	err := run(context.Background(), []string{"-validate"}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request.default_retries")
}

func TestRun_ConnectFailure(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats:
  host: 127.0.0.1
  port: 1
  connect_timeout: 500ms
  wait_on_first_connect: false
`), 0600))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"-config", path, "publish", "-subject", "events.ping"}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
