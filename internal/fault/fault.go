// Package fault defines the closed set of error codes the gateway returns
// to callers. Every operation that crosses the tool boundary fails with
// exactly one code; nothing is ever truncated or partially delivered in
// place of an error.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies a gateway failure class.
type Code string

const (
	// CodeRootEscape indicates a path resolved outside every allowed root.
	CodeRootEscape Code = "ROOT_ESCAPE"
	// CodePathNotFound indicates the target path does not exist.
	CodePathNotFound Code = "PATH_NOT_FOUND"
	// CodeSizeExceeded indicates a file is above the handle size ceiling.
	CodeSizeExceeded Code = "SIZE_EXCEEDED"
	// CodeStaleHandle indicates the file changed after the handle was issued.
	CodeStaleHandle Code = "STALE_HANDLE"
	// CodeSpanTooLarge indicates a read exceeds the per-call line or byte bound.
	CodeSpanTooLarge Code = "SPAN_TOO_LARGE"
	// CodeChunkBudgetExceeded indicates a partition needs more chunks than budgeted.
	CodeChunkBudgetExceeded Code = "CHUNK_BUDGET_EXCEEDED"
	// CodePatternInvalid indicates a search pattern failed to compile.
	CodePatternInvalid Code = "PATTERN_INVALID"
	// CodeCodeTooLarge indicates a sandbox submission is above the size cap.
	CodeCodeTooLarge Code = "CODE_TOO_LARGE"
	// CodeSandboxViolation indicates code was statically rejected as unsafe.
	CodeSandboxViolation Code = "SANDBOX_VIOLATION"
	// CodeSandboxTimeout indicates execution hit the wall-clock ceiling.
	CodeSandboxTimeout Code = "SANDBOX_TIMEOUT"
	// CodeSandboxOOM indicates execution hit the memory ceiling.
	CodeSandboxOOM Code = "SANDBOX_OOM"
	// CodeBudgetExceeded indicates a session budget ceiling would be crossed.
	CodeBudgetExceeded Code = "BUDGET_EXCEEDED"
	// CodeNotFound indicates an unknown handle or chunk id.
	CodeNotFound Code = "NOT_FOUND"
	// CodeSessionNotFound indicates an unknown session id.
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	// CodeSessionExpired indicates the session timed out or was closed.
	CodeSessionExpired Code = "SESSION_EXPIRED"
	// CodeInternal is the fallback for errors with no gateway code.
	CodeInternal Code = "INTERNAL"
)

// Error is the structured failure carrier returned across the tool boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a gateway code to an underlying error.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), cause: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target carries the same code. This lets callers write
// errors.Is(err, fault.New(fault.CodeRootEscape, "")) but the usual entry
// point is CodeOf.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Code == e.Code
	}
	return false
}

// CodeOf extracts the gateway code from err.
// Returns CodeInternal for errors without one, and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
