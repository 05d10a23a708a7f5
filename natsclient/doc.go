// Package natsclient connects to NATS and exposes the connection to the rest
// of natsbridge.
//
// The Client wraps a nats.go connection. It is the request.Transport used by
// request.Requester, it publishes with latency instrumentation, and it routes
// subscriptions through a Gate so the process can stop taking work while it
// shuts down.
//
// # Lifecycle events
//
// Connection callbacks of nats.go are turned into Events with one of five
// signals and handed to a Dispatcher:
//
//	connect       Connect succeeded
//	reconnecting  the connection dropped and nats.go is reconnecting
//	reconnect     the connection came back
//	close         the connection is closed for good
//	error         nats.go reported an asynchronous error
//
// Handlers are registered per signal and run in registration order:
//
//	client.Dispatcher().RegisterHandler(natsclient.SignalReconnect,
//	    natsclient.HandlerFunc(func(e natsclient.Event) error {
//	        logger.Info("back online", "server", e.ServerID)
//	        return nil
//	    }))
//
// A signal without handlers falls back to an info log, except error: an
// error event nobody handles is passed to the unhandled error hook, which
// panics unless replaced with WithUnhandledErrorHandler.
//
// # Requests
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithCredentials(user, pass),
//	    natsclient.WithMaxReconnects(1000),
//	    natsclient.WithReconnectWait(2*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	requester, err := request.New(client)
//	resp, err := requester.Do(ctx, request.Spec{Subject: "svc.ping", Timeout: time.Second})
//
// RequestOnce makes a single attempt. A request nobody is subscribed to is
// reported as a timeout after the full attempt timeout, like a request
// without a reply.
//
// # Draining
//
// IgnoreIncomingMessages closes the Gate. From then on every message arriving
// on a subscription created with Subscribe is logged and dropped. Direct use
// of Conn() is not gated. The gate never reopens.
//
// # Thread Safety
//
// Client, Dispatcher and Gate are safe for concurrent use.
package natsclient
