// Package fault defines the error taxonomy shared by the supervisor and its
// collaborators, and the uniform (ok, message) result returned across public
// boundaries.
package fault

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error represents an error with additional context for troubleshooting.
type Error struct {
	// Code identifies the error category
	Code Code

	// Message is the primary error message
	Message string

	// Context provides additional details
	Context map[string]interface{}

	// Cause is the underlying error (if any)
	Cause error

	// Suggestion provides actionable guidance for resolving the error
	Suggestion string
}

// Code identifies categories of errors
type Code string

const (
	// Supervisor errors
	CodeConfig             Code = "CONFIG_ERROR"
	CodeSpawn              Code = "SPAWN_ERROR"
	CodeTerminationTimeout Code = "TERMINATION_TIMEOUT"
	CodePortConflict       Code = "PORT_CONFLICT"

	// Collaborator errors
	CodeNotFound        Code = "NOT_FOUND"
	CodePermission      Code = "PERMISSION_DENIED"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeCommandFailed   Code = "COMMAND_FAILED"

	// Internal errors
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error implements the error interface. Context keys are sorted so output is
// stable.
func (e *Error) Error() string {
	parts := []string{fmt.Sprintf("[%s] %s", e.Code, e.Message)}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Cause))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "; ")
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and message
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithContext adds context information to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithSuggestion adds an actionable suggestion to the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// Common constructors

// ErrConfig reports missing or invalid configuration
func ErrConfig(field string, reason string) *Error {
	return Newf(CodeConfig, "Invalid configuration: %s", reason).
		WithContext("field", field)
}

// ErrSpawn reports a failure to create the child process or its log file
func ErrSpawn(command string, cause error) *Error {
	return Newf(CodeSpawn, "Failed to start process '%s'", command).
		WithCause(cause).
		WithSuggestion("Check that the command exists, is executable and that the working directory is valid")
}

// ErrTerminationTimeout reports a process that survived the force kill
func ErrTerminationTimeout(pid int, cause error) *Error {
	return Newf(CodeTerminationTimeout, "Process %d did not exit after SIGKILL", pid).
		WithContext("pid", pid).
		WithCause(cause).
		WithSuggestion(fmt.Sprintf("Inspect the process state: ps -o pid,stat,cmd -p %d", pid))
}

// ErrPortConflict reports a port that could not be freed or confirmed released
func ErrPortConflict(port int, owners []int) *Error {
	return Newf(CodePortConflict, "Port %d is still in use", port).
		WithContext("port", port).
		WithContext("owners", owners).
		WithSuggestion(fmt.Sprintf("Find the owner: lsof -nP -iTCP:%d -sTCP:LISTEN", port))
}

// ErrNotFound reports a missing file, directory, branch or commit
func ErrNotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// ErrPermission reports an operation blocked by OS permissions
func ErrPermission(message string, cause error) *Error {
	return New(CodePermission, message).WithCause(cause)
}

// ErrPathNotAllowed reports a path outside the configured allow-list
func ErrPathNotAllowed(path string) *Error {
	return Newf(CodePermission, "Path not allowed: %s", path)
}

// ErrInvalidArgument reports a malformed request
func ErrInvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// ErrCommandFailed reports a failed external command
func ErrCommandFailed(message string, cause error) *Error {
	return New(CodeCommandFailed, message).WithCause(cause)
}

// IsCode checks if an error, or any error it wraps, has the specified code
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the error code from an error, or empty string if not an *Error
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// SuggestionOf returns the suggestion from an error, or empty string if not available
func SuggestionOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Suggestion
	}
	return ""
}

// MessageOf returns the primary message of an *Error, or err.Error() otherwise
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Cause != nil {
			return fmt.Sprintf("%s: %v", fe.Message, fe.Cause)
		}
		return fe.Message
	}
	return err.Error()
}
