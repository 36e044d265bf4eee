package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable failure kind surfaced to callers.
type ErrorCode string

const (
	CodeInvalidURL              ErrorCode = "INVALID_URL"
	CodeInvalidFormat           ErrorCode = "INVALID_FORMAT"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeTooLarge                ErrorCode = "TOO_LARGE"
	CodeStorageFailed           ErrorCode = "STORAGE_FAILED"
	CodeGenerationFailed        ErrorCode = "GENERATION_FAILED"
	CodeInvalidResponse         ErrorCode = "INVALID_RESPONSE"
	CodeSandboxCreationFailed   ErrorCode = "SANDBOX_CREATION_FAILED"
	CodeDependencyInstallFailed ErrorCode = "DEPENDENCY_INSTALL_FAILED"
	CodeCodeWriteFailed         ErrorCode = "CODE_WRITE_FAILED"
	CodeExecutionFailed         ErrorCode = "EXECUTION_FAILED"
	CodeTemplateNotFound        ErrorCode = "TEMPLATE_NOT_FOUND"
	CodeUnauthorized            ErrorCode = "UNAUTHORIZED"
	CodeValidation              ErrorCode = "VALIDATION_ERROR"
	CodeInvalidState            ErrorCode = "INVALID_STATE"
	CodeConflict                ErrorCode = "CONFLICT"
	CodeInternal                ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectBusy     = errors.New("project is already being processed")
)

// Error is the typed failure returned across component boundaries.
type Error struct {
	Code    ErrorCode
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that keeps cause for logging. The cause is not exposed to clients.
func Wrap(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the error code, mapping sentinels and foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrProjectNotFound):
		return CodeNotFound
	case errors.Is(err, ErrProjectBusy):
		return CodeConflict
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	switch {
	case errors.Is(err, ErrProjectNotFound):
		return ErrProjectNotFound.Error()
	case errors.Is(err, ErrProjectBusy):
		return ErrProjectBusy.Error()
	}
	return "internal server error"
}
