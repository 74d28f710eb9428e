package fee

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

var (
	ErrStudentNotFound       = errors.New("student not found")
	ErrInvoiceNotFound       = errors.New("invoice not found")
	ErrBalanceNotFound       = errors.New("balance record not found")
	ErrAcademicYearNotFound  = errors.New("academic year not found")
	ErrSettlementUnavailable = errors.New("semester settlement unavailable")
)

// Kind classifies the failures surfaced to the bursar.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindResolutionMiss   Kind = "resolution_miss"
	KindSettlementFailed Kind = "settlement_failed"
	KindSchedulerMiss    Kind = "scheduler_miss"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Notice() Notice {
	return Notice{Kind: e.Kind, Message: e.Message}
}

// Notice is a non-fatal, user-facing message attached to an operation result.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// KindOf returns the Kind of err, or "" if err is not one of ours.
func KindOf(err error) Kind {
	switch e := errors.Cause(err).(type) {
	case *Error:
		return e.Kind
	case validator.ValidationErrors, *core.ValidationError:
		return KindValidation
	}
	return ""
}
