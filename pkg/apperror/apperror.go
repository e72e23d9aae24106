package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so handlers can map it to an HTTP status and
// callers can decide whether a retry is safe.
type Kind string

const (
	KindValidation    Kind = "VALIDATION_ERROR"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindSignature     Kind = "SIGNATURE_ERROR"
	KindGateway       Kind = "GATEWAY_ERROR"
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindInternal      Kind = "INTERNAL_ERROR"
)

var statusByKind = map[Kind]int{
	KindValidation:    http.StatusBadRequest,
	KindNotFound:      http.StatusNotFound,
	KindConflict:      http.StatusConflict,
	KindSignature:     http.StatusUnauthorized,
	KindGateway:       http.StatusBadGateway,
	KindConfiguration: http.StatusInternalServerError,
	KindInternal:      http.StatusInternalServerError,
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the classification of err, or KindInternal when err does not
// carry one.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status code the API should respond with.
func HTTPStatus(err error) int {
	if status, ok := statusByKind[KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may safely retry the operation.
// Gateway failures leave the transaction in its prior status, and the
// reconcile/claim paths are conditional updates, so a retry never
// double-applies state.
func Retryable(err error) bool {
	return KindOf(err) == KindGateway
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool { return IsKind(err, KindConflict) }
