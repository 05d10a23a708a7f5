// Package retry runs an operation in sequential attempts with an optional global deadline.
//
// # Overview
//
// Run drives attempts of one operation. Each attempt is tagged with an Outcome
// (success, retryable, fatal) and the loop only inspects that tag. Two independent
// bounds apply: MaxAttempts caps the number of attempts, and Deadline caps the
// wall-clock time of the whole run regardless of how long a single attempt takes.
//
// # Usage Examples
//
// Request/reply with per-attempt timeouts and a global deadline:
//
//	resp, err := retry.Run(ctx, retry.Policy{
//	    MaxAttempts: retries + 1,
//	    Deadline:    timeout * time.Duration(retries+1),
//	    Retryable:   errors.IsTimeout,
//	}, func(ctx context.Context, n int) (*request.Response, error) {
//	    return transport.RequestOnce(ctx, subject, data, opts, timeout)
//	})
//
// Connection startup with exponential backoff:
//
//	err := retry.Do(ctx, retry.Quick(), func(ctx context.Context) error {
//	    return dial(ctx)
//	})
//
// # Deadline Semantics
//
// Attempt contexts expire together with the deadline. An attempt that gives up
// at that moment with an error of its own, such as a transport timeout, still
// has its error reported: Run waits briefly for the in-flight attempt to
// settle. An attempt that merely returns ctx.Err() is treated as having
// reported nothing, and a success arriving after the deadline is dropped.
// The error returned is the last error recorded, or a *DeadlineError when no
// attempt has failed yet.
//
// # Context Cancellation
//
// Cancelling ctx stops Run immediately, during an attempt or during a backoff pause.
//
// # Thread Safety
//
// Run keeps all state on its own stack; concurrent runs share nothing.
package retry
