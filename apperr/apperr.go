package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindPermission
	KindConflict
	KindValidation
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission_denied"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error kind to the status code used in RPC error
// envelopes.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes two *Error values match on kind, so callers can test
// errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func Permission(msg string) error {
	return New(KindPermission, msg)
}

func Conflict(msg string) error {
	return New(KindConflict, msg)
}

func Validation(msg string) error {
	return New(KindValidation, msg)
}

func Internal(msg string, cause error) error {
	return Wrap(KindInternal, msg, cause)
}

func IsNotFound(err error) bool   { return is(err, KindNotFound) }
func IsPermission(err error) bool { return is(err, KindPermission) }
func IsConflict(err error) bool   { return is(err, KindConflict) }
func IsValidation(err error) bool { return is(err, KindValidation) }

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// KindOf reports the kind carried by err, defaulting to internal for
// untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
