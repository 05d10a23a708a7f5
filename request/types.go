package request

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"
	"time"

	"github.com/c360/natsbridge/errors"
)

// Defaults applied when a Spec leaves Retries or Timeout unset.
const (
	DefaultRetries = 1
	DefaultTimeout = 10 * time.Second
)

// Options carries per-request transport options.
type Options struct {
	Queue   string              // queue group, used by subscribers
	Headers map[string][]string // message headers sent with the request
}

// Spec describes one request operation. It is not modified by Do.
type Spec struct {
	Subject string
	Message any
	Options Options

	// Retries is the number of extra attempts after a timed out first attempt.
	// Nil selects the requester default.
	Retries *int

	// Timeout is the per-attempt timeout. Zero selects the requester default.
	Timeout time.Duration
}

// Retries returns a pointer for Spec.Retries.
func Retries(n int) *int {
	return &n
}

// Response is a reply received for a request.
type Response struct {
	Subject string
	Data    []byte
	Headers map[string][]string
}

// Decode unmarshals the JSON reply into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.WrapInvalid(err, "Response", "Decode", "unmarshal reply")
	}
	return nil
}

// Transport performs a single request attempt.
//
// RequestOnce must give up after timeout, or when ctx's deadline passes, and
// then return an error matching errors.ErrRequestTimeout; any other error is
// treated as not retryable. Returning ctx.Err() unwrapped reports nothing.
type Transport interface {
	RequestOnce(ctx context.Context, subject string, data []byte, opts Options, timeout time.Duration) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, subject string, data []byte, opts Options, timeout time.Duration) (*Response, error)

// RequestOnce calls f.
func (f TransportFunc) RequestOnce(ctx context.Context, subject string, data []byte, opts Options, timeout time.Duration) (*Response, error) {
	return f(ctx, subject, data, opts, timeout)
}

// EncodeMessage turns a request message into its wire form.
//
// []byte and json.RawMessage are sent as is. Numbers are sent as their
// decimal string, JSON encoded. Everything else is JSON encoded; nil becomes
// the empty string.
func EncodeMessage(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case nil:
		return []byte(`""`), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return json.Marshal(v)
	}

	rv := reflect.ValueOf(msg)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Marshal(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return json.Marshal(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32:
		return json.Marshal(strconv.FormatFloat(rv.Float(), 'f', -1, 32))
	case reflect.Float64:
		return json.Marshal(strconv.FormatFloat(rv.Float(), 'f', -1, 64))
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return nil, errors.Validation("request", "EncodeMessage", "unsupported message type %T", msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Validation("request", "EncodeMessage", "encode %T: %v", msg, err)
	}
	return data, nil
}
