package llm

import (
	"fmt"
	"net/http"
)

// Kind classifies where a backend call failed.
type Kind int

const (
	// KindPreCallSerialization means the request could not be encoded; no call was made.
	KindPreCallSerialization Kind = iota + 1
	// KindTransportFailure means the remote procedure could not be reached.
	KindTransportFailure
	// KindResponseDeserialization means the reply was malformed or schema-incompatible.
	KindResponseDeserialization
	// KindUpstreamStatus means the backend answered with its own failure.
	KindUpstreamStatus
)

func (k Kind) String() string {
	switch k {
	case KindPreCallSerialization:
		return "PreCallSerialization"
	case KindTransportFailure:
		return "TransportFailure"
	case KindResponseDeserialization:
		return "ResponseDeserialization"
	case KindUpstreamStatus:
		return "UpstreamStatus"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// httpStatus is the fixed status for every kind that carries no backend code.
func (k Kind) httpStatus() int {
	switch k {
	case KindPreCallSerialization:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// Error is the single failure shape returned by every backend operation.
type Error struct {
	Kind       Kind
	StatusCode int
	Status     string
	Message    string

	err error
}

func newError(kind Kind, err error) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: kind.httpStatus(),
		Status:     kind.String(),
		Message:    err.Error(),
		err:        err,
	}
}

func upstreamError(code int, status, message string) *Error {
	return &Error{
		Kind:       KindUpstreamStatus,
		StatusCode: code,
		Status:     status,
		Message:    message,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// HTTPStatus is the response code to report for e. Backend codes are forwarded when
// they are valid HTTP statuses; anything else becomes 502.
func (e *Error) HTTPStatus() int {
	if e.Kind != KindUpstreamStatus {
		return e.Kind.httpStatus()
	}
	if e.StatusCode < 100 || e.StatusCode > 599 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}
