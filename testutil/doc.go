// Package testutil provides fakes for natsbridge tests.
//
// FakeTransport is a scripted request.Transport. Each call to RequestOnce
// consumes the next Step of the script; the last step repeats once the script
// is exhausted. Calls are recorded with their arrival time so tests can check
// attempt counts and spacing without a NATS server:
//
//	transport := testutil.NewFakeTransport(
//	    testutil.TimeoutStep(),
//	    testutil.ReplyStep(`{"ok":true}`),
//	)
//	requester, _ := request.New(transport)
//	resp, err := requester.Do(ctx, request.Spec{Subject: "svc.ping", Timeout: 100 * time.Millisecond})
//	// transport.Attempts() == 2
package testutil
