package natsclient

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/c360/natsbridge/metric"
)

// MsgHandler processes a delivered message.
type MsgHandler func(ctx context.Context, msg *nats.Msg)

// Gate drops incoming messages once the process starts draining.
//
// A Gate starts accepting and moves to draining on Close. There is no way
// back: draining lasts for the rest of the process lifetime.
type Gate struct {
	draining atomic.Bool
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// NewGate creates an accepting gate. Both arguments may be nil.
func NewGate(logger *slog.Logger, registry *metric.MetricsRegistry) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		logger:  logger,
		metrics: registry.CoreMetrics(),
	}
}

// Close switches the gate to draining. Safe to call more than once.
func (g *Gate) Close() {
	if !g.draining.CompareAndSwap(false, true) {
		return
	}
	g.logger.Info("nats: ignoring incoming messages")
	if g.metrics != nil {
		g.metrics.IngestDraining.Set(1)
	}
}

// Draining reports whether the gate drops messages.
func (g *Gate) Draining() bool {
	return g.draining.Load()
}

// Wrap returns a handler that checks the gate on every delivery and either
// calls handler or drops the message with a warning.
func (g *Gate) Wrap(handler MsgHandler) MsgHandler {
	return func(ctx context.Context, msg *nats.Msg) {
		if g.draining.Load() {
			g.logger.Warn("nats: incoming message was ignored",
				"subject", msg.Subject, "reply", msg.Reply, "payload", string(msg.Data))
			if g.metrics != nil {
				g.metrics.MessagesDropped.Inc()
			}
			return
		}
		if g.metrics != nil {
			g.metrics.MessagesDelivered.Inc()
		}
		handler(ctx, msg)
	}
}
