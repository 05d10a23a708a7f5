package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/natsbridge/errors"
)

// DefaultEnvPrefix prefixes the environment variables that are not part of
// the NATS_* set.
const DefaultEnvPrefix = "NATSBRIDGE"

// Loader handles configuration loading with layers and overrides.
// Layers are applied in order on top of Default(); environment variables
// are applied last.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// SetEnvPrefix changes the prefix of the non-NATS environment variables.
func (l *Loader) SetEnvPrefix(prefix string) {
	l.envPrefix = strings.TrimSuffix(prefix, "_")
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.applyLayer(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyLayer decodes a YAML file over cfg. Keys absent from the file keep
// their current value.
func (l *Loader) applyLayer(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("read %s", path))
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", fmt.Sprintf("parse %s", path))
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var problems []string

	str := func(key string, dst *string) {
		if val, ok := lookupEnv(key); ok {
			*dst = val
		}
	}
	integer := func(key string, dst *int) {
		val, ok := lookupEnv(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be an integer, got %q", key, val))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		val, ok := lookupEnv(key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be true or false, got %q", key, val))
			return
		}
		*dst = b
	}
	duration := func(key string, dst *time.Duration) {
		val, ok := lookupEnv(key)
		if !ok {
			return
		}
		d, err := parseMillisOrDuration(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be milliseconds or a duration, got %q", key, val))
			return
		}
		*dst = d
	}

	str("NATS_HOST", &cfg.NATS.Host)
	integer("NATS_PORT", &cfg.NATS.Port)
	str("NATS_USER", &cfg.NATS.User)
	str("NATS_PASS", &cfg.NATS.Pass)
	str("NATS_TOKEN", &cfg.NATS.Token)
	duration("NATS_DEFAULT_TIMEOUT", &cfg.Request.DefaultTimeout)
	integer("NATS_DEFAULT_REQUEST_RETRIES", &cfg.Request.DefaultRetries)
	boolean("ENABLE_PERF_LOG", &cfg.Request.PerfLog)

	prefix := l.envPrefix + "_"
	str(prefix+"NATS_NAME", &cfg.NATS.Name)
	integer(prefix+"NATS_MAX_RECONNECTS", &cfg.NATS.MaxReconnects)
	duration(prefix+"NATS_RECONNECT_WAIT", &cfg.NATS.ReconnectWait)
	str(prefix+"LOG_LEVEL", &cfg.Log.Level)
	str(prefix+"LOG_FORMAT", &cfg.Log.Format)
	boolean(prefix+"METRICS_ENABLED", &cfg.Metrics.Enabled)
	str(prefix+"METRICS_ADDR", &cfg.Metrics.Addr)
	if val, ok := lookupEnv(prefix + "PERF_LOG_EXCLUDES"); ok {
		cfg.Request.PerfLogExcludes = strings.Split(val, ",")
	}
	boolean(prefix+"NATS_TLS_ENABLED", &cfg.NATS.TLS.Enabled)
	if val, ok := lookupEnv(prefix + "NATS_TLS_CA_FILES"); ok {
		cfg.NATS.TLS.CAFiles = strings.Split(val, ",")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
		"Loader", "Load", "apply environment overrides")
}

// lookupEnv returns a trimmed, length-checked environment value. Empty
// values count as unset.
func lookupEnv(key string) (string, bool) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return "", false
	}
	if err := validateEnvVar(key, val); err != nil {
		return "", false
	}
	return val, true
}

// parseMillisOrDuration accepts a bare integer as milliseconds or a Go
// duration string such as "1500ms" or "10s".
func parseMillisOrDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}
