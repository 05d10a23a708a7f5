package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	errs "github.com/c360/natsbridge/errors"
)

// Outcome tags the result of a single attempt.
type Outcome int

const (
	// OutcomeSuccess means the attempt produced a value.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable means the attempt failed and the budget allows another try.
	OutcomeRetryable
	// OutcomeFatal means the attempt failed and must not be retried.
	OutcomeFatal
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// DeadlineError is returned when the global deadline elapses before any
// attempt reported an error of its own.
type DeadlineError struct {
	Attempts int
	Deadline time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("deadline of %v exceeded during attempt %d", e.Deadline, e.Attempts)
}

// Is makes DeadlineError match errors.ErrDeadlineExceeded.
func (e *DeadlineError) Is(target error) bool {
	return target == errs.ErrDeadlineExceeded
}

// Policy configures Run.
type Policy struct {
	MaxAttempts int           // Total attempts including the first (<= 0 means 1)
	Deadline    time.Duration // Upper bound on the whole run, 0 = none
	Delay       time.Duration // Pause before the second attempt, 0 = back to back
	MaxDelay    time.Duration // Cap for Delay growth
	Multiplier  float64       // Delay growth factor (0 = 1, constant delay)
	Jitter      bool          // Add up to 25% random jitter to each pause

	// Retryable decides whether a failed attempt may be followed by another.
	// Nil means every error not marked NonRetryable is retryable.
	Retryable func(err error) bool

	// OnRetry is called after a retryable failure, before the next attempt.
	OnRetry func(attempt int, err error)
}

// Quick returns a policy for fast retries (useful during startup)
func Quick() Policy {
	return Policy{
		MaxAttempts: 10,
		Delay:       50 * time.Millisecond,
		MaxDelay:    1 * time.Second,
		Multiplier:  1.5,
		Jitter:      true,
	}
}

// Persistent returns a policy for critical resources that must come up
func Persistent() Policy {
	return Policy{
		MaxAttempts: 30,
		Delay:       200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

func (p Policy) validate() error {
	switch {
	case p.Deadline < 0:
		return errs.Validation("retry", "Run", "deadline cannot be negative")
	case p.Delay < 0:
		return errs.Validation("retry", "Run", "delay cannot be negative")
	case p.MaxDelay < 0:
		return errs.Validation("retry", "Run", "max delay cannot be negative")
	case p.Multiplier < 0:
		return errs.Validation("retry", "Run", "multiplier cannot be negative")
	}
	return nil
}

func (p Policy) classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if IsNonRetryable(err) {
		return OutcomeFatal
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return OutcomeFatal
	}
	return OutcomeRetryable
}

func (p Policy) pause(delay time.Duration) time.Duration {
	if !p.Jitter || delay < 4 {
		return delay
	}
	// #nosec G404 -- jitter is non-cryptographic timing variance.
	return delay + time.Duration(rand.Int64N(int64(delay/4)))
}

func (p Policy) next(delay time.Duration) time.Duration {
	if p.Multiplier <= 1 {
		return delay
	}
	grown := float64(delay) * p.Multiplier
	if p.MaxDelay > 0 && grown > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if grown > float64(time.Duration(1<<63-1)) {
		return delay
	}
	return time.Duration(grown)
}

type attemptResult[T any] struct {
	value   T
	err     error
	outcome Outcome
}

// settleWindow is how long Run waits, once the deadline has elapsed, for the
// in-flight attempt to report its own result.
const settleWindow = 25 * time.Millisecond

// Run calls attempt until it succeeds, fails with a non-retryable error,
// the attempt budget is spent, the deadline elapses or ctx is done.
//
// Attempts never overlap. Each attempt context expires with the deadline, so
// an attempt that gives up at the deadline with its own error still has that
// error reported. When the deadline elapses Run returns the last error an
// attempt reported, or a *DeadlineError if there is none. An attempt that
// returns its context's error unwrapped has not reported anything. A result
// that arrives after Run returned is discarded, and so is a success that
// arrives after the deadline.
//
// When the budget is spent Run returns the last attempt error unchanged.
func Run[T any](ctx context.Context, p Policy, attempt func(ctx context.Context, n int) (T, error)) (T, error) {
	var zero T
	if err := p.validate(); err != nil {
		return zero, err
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	attemptCtx := runCtx
	var deadline <-chan struct{}
	if p.Deadline > 0 {
		var cancelDeadline context.CancelFunc
		attemptCtx, cancelDeadline = context.WithTimeout(runCtx, p.Deadline)
		defer cancelDeadline()
		deadline = attemptCtx.Done()
	}

	expired := func(n int, lastErr error) (T, error) {
		if lastErr != nil {
			return zero, lastErr
		}
		return zero, &DeadlineError{Attempts: n, Deadline: p.Deadline}
	}
	cancelled := func(n int) (T, error) {
		return zero, fmt.Errorf("retry cancelled during attempt %d: %w", n, ctx.Err())
	}
	// abandoned reports an attempt that only echoed its expired context
	abandoned := func(r attemptResult[T]) bool {
		return r.err != nil && attemptCtx.Err() != nil && r.err == attemptCtx.Err()
	}

	var lastErr error
	delay := p.Delay

	for n := 1; n <= p.MaxAttempts; n++ {
		// Buffered so a late attempt never blocks after Run returned
		done := make(chan attemptResult[T], 1)
		go func(n int) {
			value, err := attempt(attemptCtx, n)
			done <- attemptResult[T]{value: value, err: err, outcome: p.classify(err)}
		}(n)

		select {
		case r := <-done:
			if abandoned(r) {
				if ctx.Err() != nil {
					return cancelled(n)
				}
				return expired(n, lastErr)
			}
			switch r.outcome {
			case OutcomeSuccess:
				return r.value, nil
			case OutcomeFatal:
				return zero, r.err
			case OutcomeRetryable:
				lastErr = r.err
			}
		case <-deadline:
			if ctx.Err() != nil {
				return cancelled(n)
			}
			grace := time.NewTimer(settleWindow)
			select {
			case r := <-done:
				if !abandoned(r) && r.outcome != OutcomeSuccess {
					lastErr = r.err
				}
			case <-grace.C:
			}
			grace.Stop()
			return expired(n, lastErr)
		case <-ctx.Done():
			return cancelled(n)
		}

		if n == p.MaxAttempts {
			break
		}

		// The deadline may have passed while the attempt was reporting
		select {
		case <-deadline:
			if ctx.Err() != nil {
				return cancelled(n)
			}
			return expired(n, lastErr)
		default:
		}

		if p.OnRetry != nil {
			p.OnRetry(n, lastErr)
		}

		if delay > 0 {
			timer := time.NewTimer(p.pause(delay))
			select {
			case <-timer.C:
			case <-deadline:
				timer.Stop()
				if ctx.Err() != nil {
					return zero, fmt.Errorf("retry cancelled during backoff for attempt %d: %w", n+1, ctx.Err())
				}
				return expired(n, lastErr)
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled during backoff for attempt %d: %w", n+1, ctx.Err())
			}
			delay = p.next(delay)
		}
	}

	return zero, lastErr
}

// Do is Run for operations without a result.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context, _ int) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
