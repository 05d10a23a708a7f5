package testutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/request"
)

// Step scripts the behaviour of one RequestOnce call.
type Step struct {
	Data    []byte        // reply payload
	Err     error         // returned after Delay instead of a reply
	Timeout bool          // wait out the attempt timeout or ctx deadline, then return errors.ErrRequestTimeout
	Hang    bool          // ignore the attempt timeout and block until ctx is done
	Delay   time.Duration // wait before replying or failing
}

// ReplyStep replies with data.
func ReplyStep(data string) Step {
	return Step{Data: []byte(data)}
}

// DelayedReplyStep replies with data after delay.
func DelayedReplyStep(data string, delay time.Duration) Step {
	return Step{Data: []byte(data), Delay: delay}
}

// TimeoutStep lets the attempt time out.
func TimeoutStep() Step {
	return Step{Timeout: true}
}

// FailStep fails the attempt with err.
func FailStep(err error) Step {
	return Step{Err: err}
}

// HangStep blocks past the attempt timeout until the caller gives up.
func HangStep() Step {
	return Step{Hang: true}
}

// Call records one RequestOnce invocation.
type Call struct {
	Subject string
	Data    []byte
	Options request.Options
	Timeout time.Duration
	At      time.Time
}

// FakeTransport is a scripted request.Transport. Safe for concurrent use.
type FakeTransport struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

// NewFakeTransport creates a transport playing steps in order.
func NewFakeTransport(steps ...Step) *FakeTransport {
	if len(steps) == 0 {
		steps = []Step{TimeoutStep()}
	}
	return &FakeTransport{steps: steps}
}

// RequestOnce plays the next scripted step.
func (f *FakeTransport) RequestOnce(ctx context.Context, subject string, data []byte, opts request.Options, timeout time.Duration) (*request.Response, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, Call{
		Subject: subject,
		Data:    append([]byte(nil), data...),
		Options: opts,
		Timeout: timeout,
		At:      time.Now(),
	})
	step := f.steps[min(idx, len(f.steps)-1)]
	f.mu.Unlock()

	switch {
	case step.Hang:
		<-ctx.Done()
		return nil, ctx.Err()
	case step.Timeout:
		// Like the NATS client, a deadline on ctx ends the attempt as a timeout
		if err := sleep(ctx, timeout); err != nil && !stderrors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("nats: no reply on %s within %v: %w", subject, timeout, errors.ErrRequestTimeout)
	}

	if err := sleep(ctx, step.Delay); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &request.Response{Subject: subject, Data: step.Data}, nil
}

// Attempts returns how many times RequestOnce was called.
func (f *FakeTransport) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns a copy of the recorded calls.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
