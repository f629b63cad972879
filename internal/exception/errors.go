// Package exception holds the typed errors shared by the object layer and
// its collaborators. Errors carry a stable code so callers can match them
// with errors.Is regardless of message or details.
package exception

import (
	"errors"
	"fmt"
)

const (
	CodeComputeHostNotFound       = "COMPUTE_HOST_NOT_FOUND"
	CodeComputeNodeNotFound       = "COMPUTE_NODE_NOT_FOUND"
	CodeServiceNotFound           = "SERVICE_NOT_FOUND"
	CodeValueConversion           = "VALUE_CONVERSION"
	CodeObjectActionError         = "OBJECT_ACTION_ERROR"
	CodeReadOnlyField             = "READ_ONLY_FIELD"
	CodeIncompatibleObjectVersion = "INCOMPATIBLE_OBJECT_VERSION"
)

// Error is a coded error with optional structured details
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so the package-level
// sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewWithDetails creates a new Error with details
func NewWithDetails(code, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Sentinels for errors.Is
var (
	ErrComputeHostNotFound       = New(CodeComputeHostNotFound, "compute host not found")
	ErrComputeNodeNotFound       = New(CodeComputeNodeNotFound, "compute node not found")
	ErrServiceNotFound           = New(CodeServiceNotFound, "service not found")
	ErrValueConversion           = New(CodeValueConversion, "value conversion failed")
	ErrObjectAction              = New(CodeObjectActionError, "object action failed")
	ErrReadOnlyField             = New(CodeReadOnlyField, "read-only field")
	ErrIncompatibleObjectVersion = New(CodeIncompatibleObjectVersion, "incompatible object version")
)

func ComputeHostNotFound(host string) *Error {
	return NewWithDetails(CodeComputeHostNotFound,
		fmt.Sprintf("compute host %s could not be found", host),
		map[string]interface{}{"host": host})
}

func ComputeNodeNotFound(id int64) *Error {
	return NewWithDetails(CodeComputeNodeNotFound,
		fmt.Sprintf("compute node %d could not be found", id),
		map[string]interface{}{"id": id})
}

func ServiceNotFound(id int64) *Error {
	return NewWithDetails(CodeServiceNotFound,
		fmt.Sprintf("service %d could not be found", id),
		map[string]interface{}{"service_id": id})
}

func ServiceHostNotFound(host string) *Error {
	return NewWithDetails(CodeServiceNotFound,
		fmt.Sprintf("no compute service on host %s", host),
		map[string]interface{}{"host": host})
}

// ValueConversion reports a field value that could not be coerced. cause
// may be nil.
func ValueConversion(field string, value interface{}, cause error) *Error {
	return &Error{
		Code:    CodeValueConversion,
		Message: fmt.Sprintf("invalid value %#v for field %s", value, field),
		Details: map[string]interface{}{"field": field},
		cause:   cause,
	}
}

func ObjectAction(action, reason string) *Error {
	return NewWithDetails(CodeObjectActionError,
		fmt.Sprintf("object action %s failed because: %s", action, reason),
		map[string]interface{}{"action": action})
}

func ReadOnlyField(field string) *Error {
	return NewWithDetails(CodeReadOnlyField,
		fmt.Sprintf("cannot modify readonly field %s", field),
		map[string]interface{}{"field": field})
}

func IncompatibleObjectVersion(objName, requested, supported string) *Error {
	return NewWithDetails(CodeIncompatibleObjectVersion,
		fmt.Sprintf("version %s of %s is not supported, supported version is %s", requested, objName, supported),
		map[string]interface{}{"objname": objName, "objver": requested, "supported": supported})
}

// IsNotFound reports whether err is any of the not-found kinds
func IsNotFound(err error) bool {
	return errors.Is(err, ErrComputeHostNotFound) ||
		errors.Is(err, ErrComputeNodeNotFound) ||
		errors.Is(err, ErrServiceNotFound)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
