// Package errors provides standardized error handling patterns for natsbridge.
//
// # Overview
//
// Errors are classified into three classes: Transient (temporary, retryable),
// Invalid (bad caller input, never retried) and Fatal (stop processing).
//
// # Request Error Taxonomy
//
// The request path distinguishes four kinds of failure:
//
//   - ErrValidation: malformed caller input (empty subject, negative retries,
//     unknown lifecycle signal, nil handler). Returned before any network call.
//   - ErrRequestTimeout: a single attempt got no reply within its own timeout.
//     This is the only kind the request orchestrator retries.
//   - any other transport error (permission violation, closed connection, ...):
//     returned immediately, never retried.
//   - ErrDeadlineExceeded: the global deadline fired before any attempt reported
//     an error of its own.
//
// Branch on them with the standard library:
//
//	resp, err := requester.Do(ctx, spec)
//	switch {
//	case errors.IsInvalid(err):
//	    // fix the call site
//	case errors.IsTimeout(err):
//	    // nobody answered within the budget
//	case err != nil:
//	    // transport failure, not retried
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers set the class while wrapping:
//
//	errors.WrapTransient(err, "Client", "Connect", "establish connection")
//	errors.WrapInvalid(err, "Client", "NewClient", "apply option")
//	errors.WrapFatal(err, "Server", "Start", "metrics registry not provided")
//
// Validation builds an invalid error that also matches ErrValidation:
//
//	return errors.Validation("Dispatcher", "RegisterHandler", "unknown signal %q", name)
package errors
