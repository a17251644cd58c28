package apperr

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Kind is the class of failure surfaced to callers.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// Code narrows a Kind to a specific condition.
type Code string

const (
	CodeInvalidInput   Code = "invalid_input"
	CodeInvalidTarget  Code = "invalid_target"
	CodeLineNotFound   Code = "line_not_found"
	CodeBatchNotFound  Code = "batch_not_found"
	CodeMatchNotFound  Code = "match_not_found"
	CodeTargetNotFound Code = "target_not_found"
	CodeAlreadyMatched Code = "already_matched"
	CodeBatchMismatch  Code = "batch_mismatch"
	CodeNotApprovable  Code = "not_approvable"
	CodeNotRejectable  Code = "not_rejectable"
	CodeLineNotPending Code = "line_not_pending"
	CodeStore          Code = "store_error"
)

type Context map[string]interface{}

// Error is the error type returned by every engine operation.
type Error struct {
	Kind    Kind    `json:"kind"`
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Context Context `json:"context,omitempty"`
	Cause   error   `json:"-"`
	stack   errors.StackTrace
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) StackTrace() errors.StackTrace {
	return e.stack
}

// WithContext attaches a key/value pair reported alongside the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func New(kind Kind, code Code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		stack:   errors.New("").(stackTracer).StackTrace()[1:],
	}
}

func Wrap(err error, kind Kind, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   err,
		stack:   errors.WithStack(err).(stackTracer).StackTrace()[1:],
	}
}

func Validation(code Code, message string) *Error { return New(KindValidation, code, message) }
func NotFound(code Code, message string) *Error   { return New(KindNotFound, code, message) }
func Conflict(code Code, message string) *Error   { return New(KindConflict, code, message) }

// AlreadyMatched is returned when a statement line already carries a match.
func AlreadyMatched(lineID fmt.Stringer) *Error {
	return Conflict(CodeAlreadyMatched, "statement line is already matched").
		WithContext("statement_line_id", lineID.String())
}

// Store wraps a backing store failure. Record-not-found is mapped to the
// supplied not-found code so callers get a NotFound instead of an internal error.
func Store(err error, notFound Code, message string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) && notFound != "" {
		return Wrap(err, KindNotFound, notFound, message)
	}
	return Wrap(err, KindInternal, CodeStore, message)
}

// As extracts the *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if ae, ok := As(err); ok {
		return ae.Code == code
	}
	return false
}
