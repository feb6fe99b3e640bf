package types

import (
	"errors"
	"fmt"
)

// FailureCode classifies a workflow failure.
type FailureCode string

const (
	// ErrRequired marks missing or mistyped node inputs, a wiring defect.
	ErrRequired FailureCode = "REQUIRED"
	// ErrConversion marks a value that could not be converted or parsed.
	ErrConversion FailureCode = "CONVERSION"
	// ErrProvider marks an error from a model provider call.
	ErrProvider FailureCode = "PROVIDER"
	// ErrMissingToolCall marks a model response without the expected call.
	ErrMissingToolCall FailureCode = "MISSING_TOOL_CALL"
	// ErrToolCall marks a tool invocation error.
	ErrToolCall FailureCode = "TOOL_CALL"
	// ErrValidation marks a value that does not conform to its schema.
	ErrValidation FailureCode = "VALIDATION"
	// ErrInterrupted marks a run stopped by cancellation.
	ErrInterrupted FailureCode = "INTERRUPTED"
	// ErrTimeout marks a run or node that exceeded its deadline.
	ErrTimeout FailureCode = "TIMEOUT"
	// ErrUnfinished marks a graph that terminated before its finish node ran.
	ErrUnfinished FailureCode = "UNFINISHED"
	// ErrSubgraph wraps a failure escalated across a subgraph boundary.
	ErrSubgraph FailureCode = "SUBGRAPH"
	// ErrConfig marks an invalid invocation configuration, fatal before any
	// node executes.
	ErrConfig FailureCode = "CONFIG"
	// ErrFatal marks an unconditional halt (the Panic node). Never absorbed
	// by failure handlers.
	ErrFatal FailureCode = "FATAL"
	// ErrUnknown is the catch-all code.
	ErrUnknown FailureCode = "UNKNOWN"
)

// FlowError is the structured error carried on failure pins and returned
// from engine runs.
type FlowError struct {
	Code    FailureCode `json:"code"`
	Message string      `json:"message"`
	Cause   error       `json:"-"`
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewFlowError creates a FlowError with the given code and message.
func NewFlowError(code FailureCode, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// FlowErrorf creates a FlowError with a formatted message.
func FlowErrorf(code FailureCode, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches a cause and returns the error.
func (e *FlowError) WithCause(cause error) *FlowError {
	e.Cause = cause
	return e
}

// AsFlowError extracts a *FlowError from an error chain, wrapping foreign
// errors under ErrUnknown so failure pins always carry a structured value.
func AsFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return &FlowError{Code: ErrUnknown, Message: err.Error(), Cause: err}
}

// CodeOf returns the failure code of an error, or ErrUnknown for foreign
// errors.
func CodeOf(err error) FailureCode {
	if fe := AsFlowError(err); fe != nil {
		return fe.Code
	}
	return ErrUnknown
}

// IsFatal reports whether the error must halt a run regardless of wired
// failure handlers.
func IsFatal(err error) bool {
	return CodeOf(err) == ErrFatal
}

// IsConfig reports whether the error is an invocation configuration error.
func IsConfig(err error) bool {
	return CodeOf(err) == ErrConfig
}

// IsWiring reports whether the error indicates a mis-wired graph. Wiring
// errors are non-recoverable: nothing downstream can repair a missing input.
func IsWiring(err error) bool {
	return CodeOf(err) == ErrRequired
}
