// Package natsbridge is a NATS messaging client built around reliable
// request/reply.
//
// # Layout
//
//	┌─────────────────────────────────────┐
//	│         cmd/natsbridge              │  request, publish, listen
//	└─────────────────────────────────────┘
//	           ↓ uses
//	┌─────────────────────────────────────┐
//	│           request                   │  Timeout, retry and
//	│  (Requester, Spec, Transport)       │  global deadline
//	└─────────────────────────────────────┘
//	           ↓ one attempt at a time
//	┌─────────────────────────────────────┐
//	│          natsclient                 │  Connection, lifecycle
//	│  (Client, Dispatcher, Gate)         │  events, draining
//	└─────────────────────────────────────┘
//
// Supporting packages:
//   - config: defaults, YAML layers and environment overrides
//   - errors: classified errors (transient, invalid, fatal)
//   - pkg/retry: the generic retry loop behind requests and connecting
//   - metric: Prometheus registry plus the /metrics and /health server
//   - health: component health status
//   - testutil: a scripted request.Transport for tests
//
// # Requests
//
// A request is sent once and, if no reply arrives within the per-attempt
// timeout, sent again up to Retries more times. The whole operation is
// bounded by timeout*(retries+1); a late reply after that is ignored.
// Only timeouts are retried.
//
//	client, _ := natsclient.NewClient("nats://localhost:4222")
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(ctx)
//
//	requester, _ := request.New(client)
//	resp, err := requester.Do(ctx, request.Spec{
//		Subject: "svc.time",
//		Message: map[string]string{"tz": "UTC"},
//		Retries: request.Retries(2),
//		Timeout: 2 * time.Second,
//	})
//
// # Lifecycle events
//
// Connection changes are dispatched as connect, error, reconnecting,
// reconnect and close events. Register handlers on Client.Dispatcher();
// signals without handlers fall back to logging, and an error event nobody
// handles reaches the client's unhandled error hook.
//
// # Shutdown
//
// Client.IgnoreIncomingMessages stops delivering subscription messages to
// handlers, then Client.Close drains and closes the connection.
package natsbridge
