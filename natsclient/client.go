package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/health"
	"github.com/c360/natsbridge/metric"
	"github.com/c360/natsbridge/pkg/retry"
	"github.com/c360/natsbridge/request"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client wraps a NATS connection.
//
// Lifecycle callbacks of the connection are turned into Events and handed to
// the Dispatcher. Subscriptions made through Subscribe pass the Gate.
// Client implements request.Transport.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	registry     *metric.MetricsRegistry
	metrics      *metric.Metrics
	dispatcher   *Dispatcher
	gate         *Gate
	onUnhandled  func(error)
	perf         perfLog
	connectRetry *retry.Policy

	conn *nats.Conn
	subs map[*Subscription]struct{}

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication - cleared on close
	username string
	password string
	token    string

	clientName string
	tlsConfig  *tls.Config

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

var _ request.Transport = (*Client)(nil)

// Subscription is a live subscription created by Client.Subscribe.
type Subscription struct {
	Subject string
	Queue   string
	sub     *nats.Subscription
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	Queue string // queue group; empty subscribes every instance
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.Validation("Client", "NewClient", "url is required")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		perf:          newPerfLog(),
		subs:          make(map[*Subscription]struct{}),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		onUnhandled: func(err error) {
			panic(fmt.Errorf("nats: unhandled connection error: %w", err))
		},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(c.logger)
	}
	if c.gate == nil {
		c.gate = NewGate(c.logger, c.registry)
	}

	c.status.Store(StatusDisconnected)
	c.logger.Debug("Created NATS client", "url", url)

	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	if m.metrics == nil {
		return
	}
	if status == StatusConnected {
		m.metrics.NATSConnected.Set(1)
	} else {
		m.metrics.NATSConnected.Set(0)
	}
}

// IsHealthy returns true if the connection is healthy
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Health reports the connection as a health status. A connected client that
// ignores incoming messages is degraded.
func (m *Client) Health() health.Status {
	status := m.Status()
	switch {
	case status == StatusConnected && m.gate.Draining():
		return health.NewDegraded("nats", "connected, ignoring incoming messages")
	case status == StatusConnected:
		return health.NewHealthy("nats", "connected")
	default:
		return health.NewUnhealthy("nats", status.String())
	}
}

// Dispatcher returns the lifecycle event dispatcher.
func (m *Client) Dispatcher() *Dispatcher {
	return m.dispatcher
}

// Conn returns the underlying connection, or nil before Connect.
// Subscriptions made on it directly bypass the gate.
func (m *Client) Conn() *nats.Conn {
	return m.connection()
}

func (m *Client) connection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) owns(nc *nats.Conn) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nc == m.conn
}

func notConnected(method string) error {
	return errors.WrapTransient(errors.ErrNoConnection, "Client", method, "check connection")
}

func (m *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	if m.tlsConfig != nil {
		opts = append(opts, nats.Secure(m.tlsConfig))
	}

	return opts
}

// Connect establishes the connection and emits the connect event.
// With WithConnectRetry the initial dial is retried under that policy.
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "Client", "Connect", "check client state")
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	opts := m.buildConnectionOptions()

	var (
		conn *nats.Conn
		err  error
	)
	if m.connectRetry != nil {
		policy := *m.connectRetry
		onRetry := policy.OnRetry
		policy.OnRetry = func(attempt int, err error) {
			m.logger.Warn("NATS connection attempt failed", "attempt", attempt, "error", err)
			if onRetry != nil {
				onRetry(attempt, err)
			}
		}
		conn, err = retry.Run(ctx, policy, func(ctx context.Context, _ int) (*nats.Conn, error) {
			return m.dial(ctx, opts)
		})
	} else {
		conn, err = m.dial(ctx, opts)
	}

	if err != nil {
		m.setStatus(StatusDisconnected)
		if ctx.Err() != nil {
			return errors.WrapTransient(err, "Client", "Connect", "connection cancelled")
		}
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		conn.Close()
		return errors.WrapFatal(errors.ErrShuttingDown, "Client", "Connect", "client closed while connecting")
	}
	m.conn = conn
	m.mu.Unlock()

	m.setStatus(StatusConnected)
	m.logger.Debug("Connected to NATS", "url", conn.ConnectedUrlRedacted(), "server_id", conn.ConnectedServerId())

	return m.emit(SignalConnect, conn, nil)
}

// dial runs nats.Connect, giving up when ctx is done. A connection that is
// established after ctx gave up is closed.
func (m *Client) dial(ctx context.Context, opts []nats.Option) (*nats.Conn, error) {
	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// emit builds the event for signal and dispatches it.
func (m *Client) emit(signal Signal, nc *nats.Conn, err error) error {
	ev := Event{Signal: signal, URL: m.url, Err: err, Time: time.Now()}
	if nc != nil {
		if u := nc.ConnectedUrlRedacted(); u != "" {
			ev.URL = u
		}
		ev.ServerID = nc.ConnectedServerId()
	}

	if m.metrics != nil {
		m.metrics.LifecycleEvents.WithLabelValues(string(signal)).Inc()
	}

	return m.dispatcher.Dispatch(ev)
}

// emitAsync is emit for connection callbacks, where nobody can receive an error.
func (m *Client) emitAsync(signal Signal, nc *nats.Conn, err error) {
	if derr := m.emit(signal, nc, err); derr != nil {
		m.onUnhandled(derr)
	}
}

func (m *Client) handleDisconnect(nc *nats.Conn, err error) {
	if m.closed.Load() || !m.owns(nc) {
		return
	}
	m.setStatus(StatusReconnecting)
	m.emitAsync(SignalReconnecting, nc, err)
}

func (m *Client) handleReconnect(nc *nats.Conn) {
	if !m.owns(nc) {
		return
	}
	m.setStatus(StatusConnected)
	m.emitAsync(SignalReconnect, nc, nil)
}

func (m *Client) handleClosed(nc *nats.Conn) {
	if !m.owns(nc) {
		return
	}
	m.setStatus(StatusClosed)
	m.emitAsync(SignalClose, nc, nil)
}

func (m *Client) handleError(nc *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		m.logger.Error("NATS error", "subject", sub.Subject, "error", err)
	} else {
		m.logger.Error("NATS error", "error", err)
	}
	m.emitAsync(SignalError, nc, err)
}

// RequestOnce sends one request and waits up to timeout for the reply.
//
// A missing reply, and a request nobody is subscribed to, both end after the
// full timeout, or when ctx's deadline passes, with an error matching
// errors.ErrRequestTimeout.
func (m *Client) RequestOnce(ctx context.Context, subject string, data []byte, opts request.Options, timeout time.Duration) (*request.Response, error) {
	conn := m.connection()
	if conn == nil {
		return nil, notConnected("RequestOnce")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for key, values := range opts.Headers {
		for _, v := range values {
			msg.Header.Add(key, v)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := conn.RequestMsgWithContext(attemptCtx, msg)
	if err == nil {
		return &request.Response{
			Subject: reply.Subject,
			Data:    reply.Data,
			Headers: reply.Header,
		}, nil
	}

	if stderrors.Is(err, nats.ErrNoResponders) {
		<-attemptCtx.Done()
	}

	// A deadline on ctx is a timeout of this attempt; only cancellation is
	// passed through as is.
	switch {
	case stderrors.Is(ctx.Err(), context.Canceled):
		return nil, ctx.Err()
	case stderrors.Is(err, nats.ErrNoResponders),
		stderrors.Is(err, nats.ErrTimeout),
		stderrors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("nats: no reply on %s within %v: %w (%w)", subject, timeout, errors.ErrRequestTimeout, err)
	default:
		return nil, errors.Wrap(err, "Client", "RequestOnce", fmt.Sprintf("request %s", subject))
	}
}

// Subscribe delivers messages on subject to handler through the gate.
// The handler context is cancelled when ctx is done.
func (m *Client) Subscribe(ctx context.Context, subject string, opts SubscribeOptions, handler MsgHandler) (*Subscription, error) {
	if subject == "" {
		return nil, errors.Validation("Client", "Subscribe", "subject must be a non-empty string")
	}
	if handler == nil {
		return nil, errors.Validation("Client", "Subscribe", "handler for %s must not be nil", subject)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil, notConnected("Subscribe")
	}

	gated := m.gate.Wrap(handler)
	callback := func(msg *nats.Msg) {
		gated(ctx, msg)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if opts.Queue != "" {
		sub, err = m.conn.QueueSubscribe(subject, opts.Queue, callback)
	} else {
		sub, err = m.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Client", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}

	s := &Subscription{Subject: subject, Queue: opts.Queue, sub: sub}
	m.subs[s] = struct{}{}
	m.logger.Info("nats: subscription created", "subject", subject, "queue", opts.Queue)
	return s, nil
}

// Unsubscribe removes a subscription created by Subscribe.
func (m *Client) Unsubscribe(s *Subscription) error {
	if s == nil {
		return errors.Validation("Client", "Unsubscribe", "subscription must not be nil")
	}

	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()

	if err := s.sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "Client", "Unsubscribe", fmt.Sprintf("unsubscribe from %s", s.Subject))
	}
	return nil
}

// IgnoreIncomingMessages makes every gated subscription drop its messages
// from now on. It cannot be undone.
func (m *Client) IgnoreIncomingMessages() {
	m.gate.Close()
}

// Draining reports whether incoming messages are being ignored.
func (m *Client) Draining() bool {
	return m.gate.Draining()
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	conn := m.connection()
	if conn == nil || !conn.IsConnected() {
		return 0, notConnected("RTT")
	}
	return conn.RTT()
}

// Close drains the connection and closes it. Calling Close again is a no-op.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	conn := m.conn
	m.subs = make(map[*Subscription]struct{})
	m.username = ""
	m.password = ""
	m.token = ""
	m.mu.Unlock()

	if conn == nil {
		m.setStatus(StatusClosed)
		return nil
	}

	drainTimeout := m.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	var drainErr error
	if err := conn.Drain(); err != nil {
		drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
	} else {
		timer := time.NewTimer(drainTimeout)
		defer timer.Stop()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()

	wait:
		for !conn.IsClosed() {
			select {
			case <-ticker.C:
			case <-timer.C:
				drainErr = errors.WrapTransient(
					fmt.Errorf("drain timeout after %v", drainTimeout),
					"Client", "Close", "drain timeout")
				break wait
			case <-ctx.Done():
				drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
				break wait
			}
		}
	}

	if drainErr != nil {
		m.logger.Error("NATS drain failed, force closing", "error", drainErr)
	}
	conn.Close()
	m.setStatus(StatusClosed)

	return drainErr
}
