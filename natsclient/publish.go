package natsclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/request"
)

// DefaultPerfLogExcludes are subject tokens of high-frequency traffic that
// would flood the publish latency log. _INBOX covers request replies.
var DefaultPerfLogExcludes = []string{"_INBOX", "SELF_PING", "GAME_STAGE", "OFFSET"}

type perfLog struct {
	enabled  bool
	excluded map[string]struct{}
}

func newPerfLog() perfLog {
	p := perfLog{}
	p.exclude(DefaultPerfLogExcludes)
	return p
}

func (p *perfLog) exclude(tokens []string) {
	p.excluded = make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			p.excluded[t] = struct{}{}
		}
	}
}

// logs reports whether a publish to subject gets a latency log line.
func (p perfLog) logs(subject string) bool {
	if !p.enabled || subject == "" {
		return false
	}
	for _, token := range strings.Split(subject, ".") {
		if _, ok := p.excluded[token]; ok {
			return false
		}
	}
	return true
}

// Publish sends data to subject without waiting for a reply.
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	conn := m.connection()
	if conn == nil || !conn.IsConnected() {
		return notConnected("Publish")
	}

	start := time.Now()
	err := conn.Publish(subject, data)
	elapsed := time.Since(start)

	if err != nil {
		return errors.Wrap(err, "Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}

	if m.metrics != nil {
		m.metrics.MessagesPublished.Inc()
		m.metrics.PublishDuration.Observe(elapsed.Seconds())
	}
	if m.perf.logs(subject) {
		m.logger.Info("nats published", "subject", subject, "elapsed", elapsed)
	}
	return nil
}

// PublishJSON encodes v the way request messages are encoded and publishes it.
func (m *Client) PublishJSON(ctx context.Context, subject string, v any) error {
	data, err := request.EncodeMessage(v)
	if err != nil {
		return err
	}
	return m.Publish(ctx, subject, data)
}
