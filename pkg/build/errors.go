package build

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a build failure for exit-code mapping and for
// deciding how the supervisor reports it.
type ErrorClass string

const (
	// ErrorClassStructural indicates the plan could not be compiled:
	// unreadable input, a transform stage failure, or a broken graph.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassValidation indicates the compiled plan was rejected by
	// a gate with blocking violations.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassPartial indicates one or more generators failed while
	// their siblings completed; successful fragments were kept.
	ErrorClassPartial ErrorClass = "partial"

	// ErrorClassInterrupted indicates the build was cancelled by a
	// signal or a deadline.
	ErrorClassInterrupted ErrorClass = "interrupted"

	// ErrorClassInternal indicates an infrastructure failure such as a
	// store or filesystem error.
	ErrorClassInternal ErrorClass = "internal"
)

// BuildError is a classified build failure with the context the
// supervisor needs to report it.
type BuildError struct {
	Class     ErrorClass `json:"class"`
	Message   string     `json:"message"`
	Code      string     `json:"code,omitempty"`
	Workspace string     `json:"workspace,omitempty"`
	Phase     string     `json:"phase,omitempty"`
	Err       error      `json:"-"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("[%s] %s (phase=%s): %s", e.Class, e.Message, e.Phase, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *BuildError) Unwrap() error {
	return e.Err
}

func (e *BuildError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is.
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewStructuralError creates a structural compilation error.
func NewStructuralError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassStructural, Message: message, Err: err}
}

// NewValidationError creates a gate-rejection error.
func NewValidationError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewPartialError creates a partial generator-failure error.
func NewPartialError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassPartial, Message: message, Err: err}
}

// NewInterruptedError creates a cancellation error.
func NewInterruptedError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassInterrupted, Message: message, Err: err}
}

// NewInternalError creates an infrastructure error.
func NewInternalError(message string, err error) *BuildError {
	return &BuildError{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithPhase adds the build phase to an error.
func (e *BuildError) WithPhase(phase string) *BuildError {
	e.Phase = phase
	return e
}

// WithWorkspace adds the workspace key to an error.
func (e *BuildError) WithWorkspace(key string) *BuildError {
	e.Workspace = key
	return e
}

// WithCode adds an error code to an error.
func (e *BuildError) WithCode(code string) *BuildError {
	e.Code = code
	return e
}

// ClassOf returns the error's class, or ErrorClassInternal when the
// error is not a BuildError.
func ClassOf(err error) ErrorClass {
	var e *BuildError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassInternal
}

// ExitCode maps a build error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch ClassOf(err) {
	case ErrorClassStructural:
		return 1
	case ErrorClassValidation:
		return 2
	case ErrorClassPartial:
		return 3
	case ErrorClassInterrupted:
		return 130
	default:
		return 1
	}
}

// Common error codes.
const (
	ErrCodeLoadFailed      = "LOAD_FAILED"
	ErrCodeStageFailed     = "STAGE_FAILED"
	ErrCodeGateRejected    = "GATE_REJECTED"
	ErrCodeGeneratorFailed = "GENERATOR_FAILED"
	ErrCodeLockHeld        = "LOCK_HELD"
	ErrCodeStoreFailed     = "STORE_FAILED"
	ErrCodeCancelled       = "CANCELLED"
)
