package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindProvider      Kind = "PROVIDER"
	KindInternal      Kind = "INTERNAL"
)

// Error is the application error carried across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf formats a validation message.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFound(resource string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
		Details: map[string]any{"resource": resource, "id": fmt.Sprint(id)},
	}
}

// StateConflict reports an illegal status transition with both states named.
func StateConflict(resource string, from, to any) *Error {
	return &Error{
		Kind:    KindStateConflict,
		Message: fmt.Sprintf("%s cannot move from %v to %v", resource, from, to),
		Details: map[string]any{"resource": resource, "current": fmt.Sprint(from), "target": fmt.Sprint(to)},
	}
}

func Provider(name string, err error) *Error {
	return &Error{
		Kind:    KindProvider,
		Message: name + " call failed",
		Err:     err,
		Details: map[string]any{"provider": name},
	}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// As is errors.As narrowed to *Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
