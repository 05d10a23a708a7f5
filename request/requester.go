package request

import (
	"context"
	stderrors "errors"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/metric"
	"github.com/c360/natsbridge/pkg/retry"
)

// Requester issues request/reply calls with bounded retries and one global deadline.
// It holds no per-call state; any number of Do calls may run concurrently.
type Requester struct {
	transport      Transport
	logger         *slog.Logger
	metrics        *metric.Metrics
	defaultRetries int
	defaultTimeout time.Duration
}

// Option configures a Requester
type Option func(*Requester) error

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Requester) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithMetrics reports request metrics into registry. Nil disables metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Requester) error {
		r.metrics = registry.CoreMetrics()
		return nil
	}
}

// WithDefaults sets the retries and per-attempt timeout used when a Spec leaves them unset.
func WithDefaults(retries int, timeout time.Duration) Option {
	return func(r *Requester) error {
		if retries < 0 {
			return errors.Validation("Requester", "WithDefaults", "retries must be >= 0, got %d", retries)
		}
		if timeout <= 0 {
			return errors.Validation("Requester", "WithDefaults", "timeout must be positive, got %v", timeout)
		}
		r.defaultRetries = retries
		r.defaultTimeout = timeout
		return nil
	}
}

// New creates a Requester on top of transport.
func New(transport Transport, opts ...Option) (*Requester, error) {
	if transport == nil {
		return nil, errors.Validation("Requester", "New", "transport is required")
	}

	r := &Requester{
		transport:      transport,
		logger:         slog.Default(),
		defaultRetries: DefaultRetries,
		defaultTimeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.WrapInvalid(err, "Requester", "New", "apply option")
		}
	}

	return r, nil
}

// plan is a validated Spec with defaults resolved and the message encoded.
type plan struct {
	spec     Spec
	data     []byte
	retries  int
	timeout  time.Duration
	deadline time.Duration
}

func (r *Requester) prepare(spec Spec) (*plan, error) {
	if strings.TrimSpace(spec.Subject) == "" {
		return nil, errors.Validation("Requester", "Do", "subject must be a non-empty string")
	}

	retries := r.defaultRetries
	if spec.Retries != nil {
		retries = *spec.Retries
	}
	if retries < 0 {
		return nil, errors.Validation("Requester", "Do", "retries must be a non-negative number, got %d", retries)
	}

	timeout := r.defaultTimeout
	if spec.Timeout != 0 {
		timeout = spec.Timeout
	}
	if timeout < 0 {
		return nil, errors.Validation("Requester", "Do", "timeout must be positive, got %v", timeout)
	}
	if int64(retries) >= math.MaxInt64/int64(timeout) {
		return nil, errors.Validation("Requester", "Do", "%d retries of %v overflow the request deadline", retries, timeout)
	}

	data, err := EncodeMessage(spec.Message)
	if err != nil {
		return nil, err
	}

	return &plan{
		spec:    spec,
		data:    data,
		retries: retries,
		timeout: timeout,
		// The last attempt ends with the deadline and still reports its own
		// timeout error.
		deadline: timeout*time.Duration(retries) + timeout,
	}, nil
}

func (p *plan) annotate(attempt int, outcome AttemptOutcome) error {
	return &RequestError{
		Kind:    outcome.Kind,
		Subject: p.spec.Subject,
		Message: p.spec.Message,
		Options: p.spec.Options,
		Timeout: p.timeout,
		Attempt: attempt,
		Err:     outcome.Err,
	}
}

// Do sends spec.Message to spec.Subject and waits for one reply.
//
// Up to Retries+1 attempts are made, each bounded by Timeout. Only timed out
// attempts are retried; any other transport error is returned at once. The
// whole call never takes longer than Timeout*(Retries+1): when that global
// deadline fires, Do returns the last attempt error, or a
// *DeadlineExceededError if no attempt has failed yet.
//
// Input errors match errors.ErrValidation and are returned before any
// transport call. Transport errors are returned as *RequestError.
func (r *Requester) Do(ctx context.Context, spec Spec) (*Response, error) {
	start := time.Now()

	p, err := r.prepare(spec)
	if err != nil {
		r.observe(metric.OutcomeInvalid, 0, start)
		return nil, err
	}

	logger := r.logger.With("request_id", uuid.NewString(), "subject", spec.Subject)
	var attempts atomic.Int32

	policy := retry.Policy{
		MaxAttempts: p.retries + 1,
		Deadline:    p.deadline,
		Retryable: func(err error) bool {
			return ClassifyAttempt(nil, err).Kind == AttemptTimeout
		},
		OnRetry: func(attempt int, err error) {
			logger.Info("nats: request will be retried",
				"attempt", attempt, "of", p.retries+1, "error", err)
			if r.metrics != nil {
				r.metrics.RequestRetries.Inc()
			}
		},
	}

	resp, err := retry.Run(ctx, policy, func(ctx context.Context, n int) (*Response, error) {
		attempts.Store(int32(n))
		resp, err := r.transport.RequestOnce(ctx, spec.Subject, p.data, spec.Options, p.timeout)

		outcome := ClassifyAttempt(resp, err)
		if outcome.Kind != AttemptSuccess {
			return nil, p.annotate(n, outcome)
		}
		if resp == nil {
			resp = &Response{Subject: spec.Subject}
		}
		return resp, nil
	})

	made := int(attempts.Load())
	if err == nil {
		r.observe(metric.OutcomeSuccess, made, start)
		return resp, nil
	}

	var deadlineErr *retry.DeadlineError
	switch {
	case stderrors.As(err, &deadlineErr):
		err = &DeadlineExceededError{Subject: spec.Subject, Retries: p.retries, GlobalDeadline: p.deadline}
		r.observe(metric.OutcomeDeadline, made, start)
	case ctx.Err() != nil && stderrors.Is(err, ctx.Err()):
		r.observe(metric.OutcomeCancelled, made, start)
	case errors.IsTimeout(err):
		r.observe(metric.OutcomeTimeout, made, start)
	default:
		r.observe(metric.OutcomeError, made, start)
	}

	logger.Debug("nats: request failed", "attempts", made, "elapsed", time.Since(start), "error", err)
	return nil, err
}

func (r *Requester) observe(outcome string, attempts int, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		r.metrics.RequestAttempts.Observe(float64(attempts))
	}
	r.metrics.RequestDuration.Observe(time.Since(start).Seconds())
}
