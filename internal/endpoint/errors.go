package endpoint

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// TimeoutError is a request that ran out of time; it is never retried
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "timeout: " + e.Err.Error() }

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError is a connection, TLS or HTTP status failure
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a response that does not have the expected shape
type ProtocolError struct {
	Reason string
	Body   string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return "protocol: " + e.Reason
	}
	return fmt.Sprintf("protocol: %s in %q", e.Reason, e.Body)
}

func protocolError(reason string, body []byte) *ProtocolError {
	const maxBody = 200
	text := string(body)
	if len(text) > maxBody {
		text = text[:maxBody] + "..."
	}
	return &ProtocolError{Reason: reason, Body: text}
}

// classify wraps a request failure as TimeoutError or TransportError
func classify(err error) error {
	if err == nil {
		return nil
	}
	var timeout *TimeoutError
	var transport *TransportError
	var proto *ProtocolError
	if errors.As(err, &timeout) || errors.As(err, &transport) || errors.As(err, &proto) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Err: err}
	}
	return &TransportError{Err: err}
}

// IsTimeout reports whether err is, or wraps, a TimeoutError
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}
