package natsclient

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/c360/natsbridge/errors"
)

// Signal names a connection lifecycle event.
type Signal string

// Lifecycle signals emitted by the connection.
const (
	SignalConnect      Signal = "connect"
	SignalError        Signal = "error"
	SignalReconnecting Signal = "reconnecting"
	SignalReconnect    Signal = "reconnect"
	SignalClose        Signal = "close"
)

// Signals lists every lifecycle signal in emission order.
var Signals = []Signal{SignalConnect, SignalError, SignalReconnecting, SignalReconnect, SignalClose}

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	return slices.Contains(Signals, s)
}

// ParseSignal converts a signal name into a Signal.
func ParseSignal(name string) (Signal, error) {
	s := Signal(name)
	if !s.Valid() {
		return "", errors.Validation("natsclient", "ParseSignal",
			"signal must be one of %v, got %q", Signals, name)
	}
	return s, nil
}

// Event is the payload delivered with a lifecycle signal.
type Event struct {
	Signal   Signal
	URL      string // server the client is or was connected to, credentials redacted
	ServerID string
	Err      error // set for error and reconnecting signals when the library reports one
	Time     time.Time
}

// Handler reacts to a lifecycle event. A returned error stops the dispatch
// of the current event and is propagated to the caller of Dispatch.
type Handler interface {
	HandleEvent(Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(e Event) error {
	return f(e)
}

// Dispatcher fans lifecycle events out to registered handlers.
//
// A signal without handlers falls back to a default: an info log for
// connect, reconnecting, reconnect and close, and returning the event error
// for error so a connection failure nobody listens for is never swallowed.
// Registering any handler for a signal replaces its default.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Signal][]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger uses slog.Default().
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[Signal][]Handler, len(Signals)),
		logger:   logger,
	}
}

// RegisterHandler appends handler to the handlers of signal.
// Registering the same handler twice for one signal is a no-op. Funcs are
// compared by code pointer, which the compiler may or may not share between
// closures of one func literal; use a comparable Handler type when two
// registrations must stay apart.
func (d *Dispatcher) RegisterHandler(signal Signal, handler Handler) error {
	if !signal.Valid() {
		return errors.Validation("Dispatcher", "RegisterHandler",
			"signal must be one of %v, got %q", Signals, signal)
	}
	if isNilHandler(handler) {
		return errors.Validation("Dispatcher", "RegisterHandler", "handler for %q must not be nil", signal)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.handlers[signal] {
		if sameHandler(existing, handler) {
			d.logger.Info("nats: handler already registered", "signal", signal)
			return nil
		}
	}
	d.handlers[signal] = append(d.handlers[signal], handler)
	return nil
}

// Handlers returns how many handlers are registered for signal.
func (d *Dispatcher) Handlers(signal Signal) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[signal])
}

// Dispatch delivers e to the handlers of e.Signal in registration order.
// Handler panics are not recovered.
func (d *Dispatcher) Dispatch(e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	d.mu.RLock()
	handlers := slices.Clone(d.handlers[e.Signal])
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return d.fallback(e)
	}

	for _, h := range handlers {
		if err := h.HandleEvent(e); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) fallback(e Event) error {
	switch e.Signal {
	case SignalConnect:
		d.logger.Info("nats connected", "url", e.URL, "server_id", e.ServerID)
	case SignalReconnecting:
		d.logger.Info("nats: attempting to reconnect", "url", e.URL, "error", e.Err)
	case SignalReconnect:
		d.logger.Info("nats reconnected", "url", e.URL, "server_id", e.ServerID)
	case SignalClose:
		d.logger.Info("nats connection closed", "url", e.URL)
	case SignalError:
		if e.Err != nil {
			return e.Err
		}
		return fmt.Errorf("nats: error event from %s without cause: %w", e.URL, errors.ErrConnectionLost)
	default:
		return errors.Validation("Dispatcher", "Dispatch", "unknown signal %q", e.Signal)
	}
	return nil
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// sameHandler compares functions by code pointer and other handlers by value.
func sameHandler(a, b Handler) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}
	if av.Kind() == reflect.Func {
		return av.Pointer() == bv.Pointer()
	}
	if av.Comparable() && bv.Comparable() {
		return a == b
	}
	return false
}
