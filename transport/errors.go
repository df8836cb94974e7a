package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope marks a 2xx response whose body is not a {data, message} envelope.
	ErrMalformedEnvelope = errors.New("transport: malformed response envelope")
	// ErrUnexpectedPayload marks envelope data that does not narrow to the resource's type.
	ErrUnexpectedPayload = errors.New("transport: unexpected payload shape")
	// ErrResponseTooLarge marks a body larger than Config.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("transport: response too large")
)

// NetworkError is returned when no response was received: dial failures,
// resets, timeouts and context cancellation all land here.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is returned when the server answered with a non-2xx status, or
// answered 2xx with a body that could not be unwrapped.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http %d: %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ValidationError is returned when a request is rejected before anything is sent.
type ValidationError struct {
	Resource  string
	Operation string
	Reason    string
	Err       error
}

func (e *ValidationError) Error() string {
	target := e.Resource
	if e.Operation != "" {
		target += "." + e.Operation
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid request %s: %s: %v", target, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid request %s: %s", target, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
