// Package config loads natsbridge configuration.
//
// Configuration is built in three steps: Default() values, then zero or more
// YAML files, then environment variables. Later steps override earlier ones
// key by key.
//
//	loader := config.NewLoader()
//	loader.AddLayer("config/base.yaml")
//	loader.AddLayer("config/production.yaml") // Overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment
//
// The NATS_* variables keep their conventional names:
//
//	NATS_HOST                     nats.host
//	NATS_PORT                     nats.port
//	NATS_USER, NATS_PASS          nats.user, nats.pass
//	NATS_TOKEN                    nats.token
//	NATS_DEFAULT_TIMEOUT          request.default_timeout (milliseconds or "10s")
//	NATS_DEFAULT_REQUEST_RETRIES  request.default_retries
//	ENABLE_PERF_LOG               request.perf_log
//
// Everything else is prefixed, NATSBRIDGE_ by default: NATSBRIDGE_LOG_LEVEL,
// NATSBRIDGE_LOG_FORMAT, NATSBRIDGE_METRICS_ENABLED, NATSBRIDGE_METRICS_ADDR,
// NATSBRIDGE_NATS_NAME, NATSBRIDGE_NATS_MAX_RECONNECTS,
// NATSBRIDGE_NATS_RECONNECT_WAIT, NATSBRIDGE_NATS_TLS_ENABLED,
// NATSBRIDGE_NATS_TLS_CA_FILES and NATSBRIDGE_PERF_LOG_EXCLUDES. List values
// are comma separated.
//
// # Validation
//
// Validate reports every invalid setting in a single error matching
// errors.ErrInvalidConfig, so one run shows everything that needs fixing.
// Durations in YAML are written as strings such as "2s" or "1500ms".
package config
