// Package errors provides structured error handling for the crawler connectors.
// Every failure surfaced to a host carries an ErrorType from a small taxonomy so
// the host can decide what to do with it:
//
//   - ErrorTypeConfig: bad or missing connector settings, never retried
//   - ErrorTypeConnection: a session could not be established
//   - ErrorTypeNotFound: an addressed item no longer exists
//   - ErrorTypeOperationFailed: any other I/O or query failure
//
// Errors capture the call stack at creation and preserve it through Wrap.
//
//	if err := db.PingContext(ctx); err != nil {
//	    return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach database").
//	        WithDetail("driver", driver)
//	}
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents API misuse such as reading a closed iterator
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents an addressed item that no longer exists
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents session establishment failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeAuthentication represents authentication errors
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents a malformed row or entry
	ErrorTypeData ErrorType = "data"
	// ErrorTypeOperationFailed represents any other I/O or query failure
	ErrorTypeOperationFailed ErrorType = "operation_failed"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. If the error is
// already a structured Error its stack is preserved. Returns nil for nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, errType, fmt.Sprintf(format, args...))
	var existingErr *Error
	if !errors.As(err, &existingErr) {
		wrapped.Stack = captureStack(2)
	}
	return wrapped
}

// Propagate returns err unchanged when it already carries one of the crawl
// taxonomy types, and otherwise wraps it with errType. Adapters use it so a
// NotFound raised deep in a call chain is not relabelled as OperationFailed.
func Propagate(err error, errType ErrorType, message string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeNotFound, ErrorTypeConfig, ErrorTypeConnection, ErrorTypeOperationFailed:
			return err
		}
	}
	return Wrap(err, errType, message)
}

// IsRetryable reports whether a host may reasonably retry the failed call.
// Nothing inside this module retries; the decision belongs to the host.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the outermost structured error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return IsType(err, ErrorTypeConfig) }

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return IsType(err, ErrorTypeConnection) }

// IsOperationFailed reports whether err is an operation failure.
func IsOperationFailed(err error) bool { return IsType(err, ErrorTypeOperationFailed) }

// Is and As re-export the standard library helpers so callers importing this
// package under the name errors keep them.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
