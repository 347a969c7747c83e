package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies adapter failures.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	Timeout
	RateLimited
	AuthFailure
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case RateLimited:
		return "RateLimited"
	case AuthFailure:
		return "AuthFailure"
	default:
		return "Unknown"
	}
}

// AdapterError is returned by every Client implementation.
type AdapterError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *AdapterError) Retryable() bool { return e.Kind != AuthFailure }

// KindOf returns the adapter error kind carried by err, or Unknown.
func KindOf(err error) ErrorKind {
	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return Unknown
}

func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthFailure
	case http.StatusTooManyRequests, 529:
		return RateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return Timeout
	default:
		return Unknown
	}
}

// transportError classifies an error that happened before any status code
// was received.
func transportError(provider string, err error) *AdapterError {
	kind := Unknown
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &AdapterError{Kind: kind, Provider: provider, Err: err}
}
