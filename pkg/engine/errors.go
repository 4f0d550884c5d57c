package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error crossing the engine boundary.
type ErrorClass string

const (
	// ErrorClassLookup indicates a reference to a handle that is not in the
	// reference table. It signals a defect (stale or never-created reference)
	// rather than a logical failure of the query.
	ErrorClassLookup ErrorClass = "lookup"

	// ErrorClassContract indicates a caller contract violation, such as
	// unifying sequences of different length or a predicate whose declared
	// arity does not match its handler.
	ErrorClassContract ErrorClass = "contract"

	// ErrorClassHost indicates an error returned by host code invoked from a
	// predicate (a method call, a database driver, a script).
	ErrorClassHost ErrorClass = "host"

	// ErrorClassEngine indicates an error raised by the logic engine itself:
	// syntax errors, uncaught exceptions, consult failures.
	ErrorClassEngine ErrorClass = "engine"

	// ErrorClassConfig indicates an invalid configuration.
	ErrorClassConfig ErrorClass = "config"
)

// Error represents a classified error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Predicate is the predicate indicator (module:name/arity) that raised the
	// error, if applicable.
	Predicate string `json:"predicate,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Predicate != "" {
		msg = fmt.Sprintf("%s (predicate=%s)", msg, e.Predicate)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithPredicate adds predicate context to an error.
func (e *Error) WithPredicate(indicator string) *Error {
	e.Predicate = indicator
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error codes.
const (
	ErrCodeHandleNotFound  = "HANDLE_NOT_FOUND"
	ErrCodeLengthMismatch  = "LENGTH_MISMATCH"
	ErrCodeArityMismatch   = "ARITY_MISMATCH"
	ErrCodeBadHandler      = "BAD_HANDLER"
	ErrCodeHostCall        = "HOST_CALL_FAILED"
	ErrCodeQuery           = "QUERY_FAILED"
	ErrCodeConsult         = "CONSULT_FAILED"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
	ErrCodeUnsupportedTerm = "UNSUPPORTED_TERM"
	ErrCodeEngineStart     = "ENGINE_START_FAILED"
	ErrCodeRegister        = "REGISTER_FAILED"
)

// Sentinel errors for errors.Is checks. They match any *Error with the same
// class and code.
var (
	ErrHandleNotFound = &Error{Class: ErrorClassLookup, Code: ErrCodeHandleNotFound, Message: "handle not found"}
	ErrContract       = &Error{Class: ErrorClassContract, Code: ErrCodeLengthMismatch, Message: "contract violation"}
	ErrArity          = &Error{Class: ErrorClassContract, Code: ErrCodeArityMismatch, Message: "arity mismatch"}
	ErrQuery          = &Error{Class: ErrorClassEngine, Code: ErrCodeQuery, Message: "query failed"}
	ErrConsult        = &Error{Class: ErrorClassEngine, Code: ErrCodeConsult, Message: "consult failed"}
)

// NewLookupError creates a new lookup error for the given handle.
func NewLookupError(handle string) *Error {
	return (&Error{
		Class:   ErrorClassLookup,
		Message: fmt.Sprintf("no value stored for handle %s", handle),
		Code:    ErrCodeHandleNotFound,
	}).WithDetail("handle", handle)
}

// NewContractError creates a new contract violation error.
func NewContractError(code, message string) *Error {
	return &Error{
		Class:   ErrorClassContract,
		Message: message,
		Code:    code,
	}
}

// NewHostError creates a new error wrapping a failure of host code.
func NewHostError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassHost,
		Message: message,
		Code:    ErrCodeHostCall,
		Err:     err,
	}
}

// NewEngineError creates a new error raised by the logic engine.
func NewEngineError(code, message string, err error) *Error {
	return &Error{
		Class:   ErrorClassEngine,
		Message: message,
		Code:    code,
		Err:     err,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassConfig,
		Message: message,
		Code:    ErrCodeInvalidConfig,
		Err:     err,
	}
}

// IsLookup returns true if the error is classified as a lookup fault.
func IsLookup(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassLookup
	}
	return false
}

// IsContract returns true if the error is classified as a contract violation.
func IsContract(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassContract
	}
	return false
}

// IsHost returns true if the error was raised by host code.
func IsHost(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassHost
	}
	return false
}

// ClassOf returns the class of a classified error, or "" for other errors.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}
