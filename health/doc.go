// Package health provides health status values for natsbridge components.
//
// A Status is healthy, degraded or unhealthy. The NATS client reports two
// sub-statuses, the connection and the ingest gate, and aggregates them:
//
//	connected + accepting  -> healthy
//	connected + draining   -> degraded (shutdown in progress, replies still flow)
//	not connected          -> unhealthy
//
// Error text placed in a Status goes through FromError, which removes server
// URLs, IP addresses, ports and credentials before it reaches an HTTP endpoint.
package health
