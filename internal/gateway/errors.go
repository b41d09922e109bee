package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	// KindNetwork covers connection failures and other transport errors.
	KindNetwork ErrorKind = iota
	// KindTimeout means the request-scoped deadline fired.
	KindTimeout
	// KindCancelled means the caller cancelled the request. Never a
	// data error; synchronizers discard these silently.
	KindCancelled
	// KindHTTP is a non-2xx status from the server.
	KindHTTP
	// KindDecode is a 2xx response whose body did not parse.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindHTTP:
		return "http"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is the classified failure returned by the gateway.
type Error struct {
	Kind       ErrorKind
	StatusCode int // set for KindHTTP
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyTransportError maps http.Client failures onto the taxonomy.
// A fired deadline on an otherwise live context is a timeout; an error
// observed after the caller's context was cancelled is a cancellation.
func classifyTransportError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Err: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// IsCancelled reports whether err represents a cancelled request.
func IsCancelled(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindCancelled
}

// IsForbidden reports whether err is an HTTP 403 from the server.
func IsForbidden(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == KindHTTP && gerr.StatusCode == http.StatusForbidden
}

// IsRetryable reports whether the failure is transient: network errors,
// timeouts and 5xx responses. Cancellations, auth failures and decode
// errors are not retryable.
func IsRetryable(err error) bool {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindHTTP:
		return gerr.StatusCode >= 500
	default:
		return false
	}
}
