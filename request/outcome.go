package request

import (
	"fmt"
	"time"

	"github.com/c360/natsbridge/errors"
)

// AttemptKind tags the outcome of one transport attempt.
type AttemptKind int

const (
	// AttemptSuccess means a reply arrived.
	AttemptSuccess AttemptKind = iota
	// AttemptTimeout means no reply arrived within the attempt timeout.
	AttemptTimeout
	// AttemptFailure is any other transport error.
	AttemptFailure
)

// String returns the string representation of AttemptKind
func (k AttemptKind) String() string {
	switch k {
	case AttemptSuccess:
		return "success"
	case AttemptTimeout:
		return "timeout"
	case AttemptFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// AttemptOutcome is the result of one attempt.
type AttemptOutcome struct {
	Kind     AttemptKind
	Response *Response
	Err      error
}

// ClassifyAttempt tags a transport result.
func ClassifyAttempt(resp *Response, err error) AttemptOutcome {
	switch {
	case err == nil:
		return AttemptOutcome{Kind: AttemptSuccess, Response: resp}
	case errors.IsTimeout(err):
		return AttemptOutcome{Kind: AttemptTimeout, Err: err}
	default:
		return AttemptOutcome{Kind: AttemptFailure, Err: err}
	}
}

// RequestError annotates a transport failure with the request it belongs to.
type RequestError struct {
	Kind    AttemptKind
	Subject string
	Message any
	Options Options
	Timeout time.Duration
	Attempt int
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request to %q failed on attempt %d (%s, timeout %v): %v",
		e.Subject, e.Attempt, e.Kind, e.Timeout, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// DeadlineExceededError is returned when the global deadline fired before
// any attempt reported an error.
type DeadlineExceededError struct {
	Subject        string
	Retries        int
	GlobalDeadline time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("request to %q timed out after %d retries and %v", e.Subject, e.Retries, e.GlobalDeadline)
}

// Is makes DeadlineExceededError match errors.ErrDeadlineExceeded.
func (e *DeadlineExceededError) Is(target error) bool {
	return target == errors.ErrDeadlineExceeded
}
