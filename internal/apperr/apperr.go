// Package apperr defines the error kinds every engine operation reports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, client-visible error category.
type Kind string

const (
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindInvalidArgument     Kind = "invalid_argument"
	KindTooLarge            Kind = "payload_too_large"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindInvalidTransition   Kind = "invalid_transition"
	KindConflict            Kind = "conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindTransient           Kind = "transient"
	KindInternal            Kind = "internal"
)

// Error pairs a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err. Internal errors get a generic text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "internal error"
}

var httpStatus = map[Kind]int{
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindInvalidArgument:     http.StatusBadRequest,
	KindTooLarge:            http.StatusRequestEntityTooLarge,
	KindInsufficientBalance: http.StatusPaymentRequired,
	KindInvalidTransition:   http.StatusConflict,
	KindConflict:            http.StatusConflict,
	KindUpstreamUnavailable: http.StatusBadGateway,
	KindTransient:           http.StatusServiceUnavailable,
	KindInternal:            http.StatusInternalServerError,
}

// HTTPStatus returns the response status for err's kind.
func HTTPStatus(err error) int {
	if s, ok := httpStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func Unauthorized(msg string) *Error        { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error           { return New(KindForbidden, msg) }
func NotFound(msg string) *Error            { return New(KindNotFound, msg) }
func InvalidArgument(msg string) *Error     { return New(KindInvalidArgument, msg) }
func TooLarge(msg string) *Error            { return New(KindTooLarge, msg) }
func InsufficientBalance(msg string) *Error { return New(KindInsufficientBalance, msg) }
func InvalidTransition(msg string) *Error   { return New(KindInvalidTransition, msg) }
func Conflict(msg string) *Error            { return New(KindConflict, msg) }
func UpstreamUnavailable(msg string) *Error { return New(KindUpstreamUnavailable, msg) }
func Transient(msg string) *Error           { return New(KindTransient, msg) }
