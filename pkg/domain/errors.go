package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies precondition failures raised by engine operations.
// None of these are transient: the caller must resubmit with corrected
// arguments or after a state change by another party.
type ErrorCode string

// Engine error codes. InsufficientFunds, AlreadyCompleted, and DisputeActive
// are reserved for future enforcement and currently never raised.
const (
	// CodeUnauthorized indicates the caller is not the required party.
	CodeUnauthorized ErrorCode = "unauthorized"
	// CodeInvalidStatus indicates the entity is not in the state required for
	// the requested transition.
	CodeInvalidStatus ErrorCode = "invalid_status"
	// CodeProjectNotActive indicates an operation requiring an active project
	// was invoked against a project in another state.
	CodeProjectNotActive ErrorCode = "project_not_active"
	// CodeMilestoneNotFound indicates a milestone index outside the project's
	// milestone sequence.
	CodeMilestoneNotFound ErrorCode = "milestone_not_found"
	// CodeProjectNotFound indicates an unknown project id.
	CodeProjectNotFound ErrorCode = "project_not_found"
	// CodeInvalidInput indicates creation-time argument validation failed.
	CodeInvalidInput ErrorCode = "invalid_input"

	CodeInsufficientFunds ErrorCode = "insufficient_funds"
	CodeAlreadyCompleted  ErrorCode = "already_completed"
	CodeDisputeActive     ErrorCode = "dispute_active"
)

// Error is a classified precondition failure. Operations abort with no
// partial state change when returning one.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors carrying the same code, so sentinel comparison works with
// errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Errf constructs a classified error with a formatted message.
func Errf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}
