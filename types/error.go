package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Engine error codes. Each of these is terminal for the run that
// produced it; the engine never retries or falls back.
const (
	ErrActionNotFound      ErrorCode = "ACTION_NOT_FOUND"
	ErrActionExecution     ErrorCode = "ACTION_EXECUTION"
	ErrConditionEvaluation ErrorCode = "CONDITION_EVALUATION"
	ErrIterationLimit      ErrorCode = "ITERATION_LIMIT_EXCEEDED"
	ErrInvalidGraph        ErrorCode = "INVALID_GRAPH_REFERENCE"
	ErrRunCancelled        ErrorCode = "RUN_CANCELLED"
)

// API and infrastructure error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Node       string    `json:"node,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Node != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] node %q: %s: %v", e.Code, e.Node, e.Message, e.Cause)
	case e.Node != "":
		return fmt.Sprintf("[%s] node %q: %s", e.Code, e.Node, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNode attaches the name of the node the error occurred at.
func (e *Error) WithNode(node string) *Error {
	e.Node = node
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
