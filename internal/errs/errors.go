package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an expected business outcome. Anything outside this
// taxonomy (datastore unreachable, marshalling bugs) propagates as a
// plain error and maps to a 500 at the boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindNotFound
	KindExpired
	KindInvalidInput
	KindUnauthorized
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindGateway:
		return "gateway_error"
	default:
		return "unknown"
	}
}

// Error carries a kind, a caller-facing message and optional detail
// (e.g. the unit ids that were unavailable).
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Conflict(msg string, detail map[string]any) *Error {
	return &Error{Kind: KindConflict, Message: msg, Detail: detail}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Expired(msg string) *Error {
	return &Error{Kind: KindExpired, Message: msg}
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Gateway(msg string, err error) *Error {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Error{Kind: KindGateway, Message: msg}
}

// KindOf returns the kind of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a kind to the status code the handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired:
		return http.StatusGone
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusForbidden
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
