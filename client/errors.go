package client

import (
	"errors"
	"fmt"
)

// Kind classifies a service call failure. Callers branch on the kind, not on
// raw status codes.
type Kind int

const (
	// KindNetwork: the request never produced a response, or the circuit
	// breaker refused it. Surfaced as "service unreachable".
	KindNetwork Kind = iota + 1
	// KindAuth: the service answered 401. The local session has already been
	// cleared; callers redirect to re-authentication and never retry.
	KindAuth
	// KindValidation: any other 4xx. The service-provided message is carried
	// verbatim when present.
	KindValidation
	// KindServer: a 5xx answer, surfaced with a generic message.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// APIError is the single error type produced by Client calls.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

func kindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsNetwork reports whether err represents an unreachable service.
func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

// IsAuth reports whether err represents an invalidated session.
func IsAuth(err error) bool { return kindOf(err) == KindAuth }

// IsValidation reports whether err represents a rejected request.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsServer reports whether err represents a service-side failure.
func IsServer(err error) bool { return kindOf(err) == KindServer }
