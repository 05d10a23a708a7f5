package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/c360/natsbridge/errors"
)

var errTransient = errors.New("transient error")

func TestRun_Success(t *testing.T) {
	attempts := 0
	value, err := Run(context.Background(), Policy{MaxAttempts: 3}, func(_ context.Context, n int) (string, error) {
		attempts++
		if n < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, attempts)
}

func TestRun_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context) error {
		attempts++
		return errTransient
	})

	assert.Same(t, errTransient, err)
	assert.Equal(t, 3, attempts)
}

func TestRun_FatalStopsImmediately(t *testing.T) {
	fatal := errors.New("permissions violation")
	attempts := 0
	policy := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := Do(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts == 2 {
			return fatal
		}
		return errTransient
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 2, attempts)
}

func TestRun_NonRetryable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) error {
		attempts++
		return NonRetryable(errTransient)
	})

	assert.True(t, IsNonRetryable(err))
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, attempts)
}

func TestRun_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Policy{MaxAttempts: 0}, func(context.Context) error {
		attempts++
		return errTransient
	})
	assert.Equal(t, 1, attempts)
}

func TestRun_DeadlineReturnsLastError(t *testing.T) {
	var attempts atomic.Int32
	policy := Policy{MaxAttempts: 10, Deadline: 120 * time.Millisecond}

	start := time.Now()
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		if attempts.Add(1) == 1 {
			return errTransient
		}
		<-ctx.Done() // second attempt hangs until the run gives up
		return ctx.Err()
	})
	elapsed := time.Since(start)

	assert.Same(t, errTransient, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRun_DeadlineWithoutRecordedError(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Deadline: 50 * time.Millisecond}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	var de *DeadlineError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Attempts)
	assert.Equal(t, 50*time.Millisecond, de.Deadline)
	assert.ErrorIs(t, err, errs.ErrDeadlineExceeded)
}

func TestRun_AttemptErrorAtDeadlineWins(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		wantAttempt int
	}{
		{"single attempt", 1, 1},
		{"last of three", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const step = 40 * time.Millisecond
			policy := Policy{MaxAttempts: tt.maxAttempts, Deadline: time.Duration(tt.maxAttempts) * step}

			_, err := Run(context.Background(), policy, func(ctx context.Context, n int) (int, error) {
				timer := time.NewTimer(step)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-ctx.Done():
				}
				return n, &attemptError{n: n}
			})

			var ae *attemptError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantAttempt, ae.n)
			assert.NotErrorIs(t, err, errs.ErrDeadlineExceeded)
		})
	}
}

func TestRun_NoAttemptAfterDeadline(t *testing.T) {
	var attempts atomic.Int32
	policy := Policy{MaxAttempts: 5, Deadline: 30 * time.Millisecond}

	err := Do(context.Background(), policy, func(context.Context) error {
		attempts.Add(1)
		time.Sleep(40 * time.Millisecond) // ignores ctx and reports after the deadline
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

type attemptError struct{ n int }

func (e *attemptError) Error() string { return fmt.Sprintf("attempt %d timed out", e.n) }

func TestRun_LateResultIgnored(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	policy := Policy{MaxAttempts: 1, Deadline: 30 * time.Millisecond}

	value, err := Run(context.Background(), policy, func(context.Context, int) (string, error) {
		defer close(finished)
		<-release
		return "late", nil
	})

	assert.Empty(t, value)
	assert.ErrorIs(t, err, errs.ErrDeadlineExceeded)

	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("attempt goroutine blocked after run returned")
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, Delay: 100 * time.Millisecond}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, policy, func(context.Context) error {
		attempts++
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "cancelled during backoff")
	assert.Equal(t, 1, attempts)
}

func TestRun_BackoffTiming(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Delay: 20 * time.Millisecond, Multiplier: 2.0}

	var stamps []time.Time
	_ = Do(context.Background(), policy, func(context.Context) error {
		stamps = append(stamps, time.Now())
		return errTransient
	})

	require.Len(t, stamps, 3)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestRun_OnRetry(t *testing.T) {
	var seen []int
	policy := Policy{
		MaxAttempts: 3,
		OnRetry:     func(attempt int, _ error) { seen = append(seen, attempt) },
	}

	_ = Do(context.Background(), policy, func(context.Context) error { return errTransient })

	assert.Equal(t, []int{1, 2}, seen)
}

func TestRun_InvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"negative deadline", Policy{Deadline: -1}},
		{"negative delay", Policy{Delay: -1}},
		{"negative max delay", Policy{MaxDelay: -1}},
		{"negative multiplier", Policy{Multiplier: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			err := Do(context.Background(), tt.policy, func(context.Context) error {
				called = true
				return nil
			})
			assert.True(t, errs.IsInvalid(err))
			assert.False(t, called)
		})
	}
}

func TestPolicy_Next(t *testing.T) {
	p := Policy{MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 200*time.Millisecond, p.next(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, p.next(200*time.Millisecond))

	constant := Policy{}
	assert.Equal(t, 100*time.Millisecond, constant.next(100*time.Millisecond))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 10, Quick().MaxAttempts)
	assert.Equal(t, 30, Persistent().MaxAttempts)
	assert.Equal(t, "retryable", OutcomeRetryable.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
