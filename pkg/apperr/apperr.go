// Package apperr defines the error taxonomy shared by the booking domains and
// its translation to HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindNotFound           Kind = "NOT_FOUND"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindAvailabilityWindow Kind = "AVAILABILITY_WINDOW"
	KindConflict           Kind = "CONFLICT"
	KindDuplicate          Kind = "DUPLICATE"
	KindInternal           Kind = "INTERNAL"
)

// AppError carries a Kind, a user-facing message and an optional cause.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap returns a copy of e with cause attached. errors.Is(result, e) holds.
func (e *AppError) Wrap(cause error) error {
	return &wrapped{AppError: AppError{Kind: e.Kind, Message: e.Message, Err: cause}, sentinel: e}
}

// WithDetail returns an error that reports detail as its message and still
// matches e under errors.Is.
func (e *AppError) WithDetail(format string, args ...interface{}) error {
	return &wrapped{AppError: AppError{Kind: e.Kind, Message: fmt.Sprintf(format, args...)}, sentinel: e}
}

type wrapped struct {
	AppError
	sentinel *AppError
}

func (w *wrapped) Is(target error) bool {
	return target == error(w.sentinel)
}

func (w *wrapped) Unwrap() error {
	return w.Err
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func Duplicate(message string) *AppError {
	return &AppError{Kind: KindDuplicate, Message: message}
}

func Internal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind of the first AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var w *wrapped
	if errors.As(err, &w) {
		return w.Kind
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status maps a Kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindValidation, KindAvailabilityWindow, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an *echo.HTTPError. Internal errors keep their
// cause on Internal but expose a generic message.
func ToHTTP(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	kind := KindOf(err)
	status := Status(kind)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, message(err))
}

func message(err error) string {
	var w *wrapped
	if errors.As(err, &w) {
		return w.Message
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
