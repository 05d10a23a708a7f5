// Package metric provides Prometheus metrics and the HTTP endpoint exposing them.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry, client.Health)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop(ctx)
//
// Pass the registry to the components that report into it:
//
//	client, _ := natsclient.NewClient(url, natsclient.WithMetrics(registry))
//	requester := request.New(client, request.WithMetrics(registry))
//
// # Core Metrics
//
// All names are prefixed with natsbridge_:
//
//   - request_total{outcome}: settled request operations (success, timeout, error,
//     deadline, cancelled, invalid)
//   - request_attempts, request_retries_total, request_duration_seconds
//   - messages_published_total, publish_duration_seconds
//   - messages_delivered_total, messages_dropped_total, ingest_draining
//   - nats_lifecycle_events_total{signal}, nats_connected
//
// Components accept a nil registry and then record nothing.
//
// # Custom Metrics
//
// Applications may add collectors of their own; duplicates are rejected:
//
//	err := registry.Register("billing", "invoices_total", counter)
package metric
