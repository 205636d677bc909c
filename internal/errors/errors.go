package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeInvalidToken indicates a bearer token that could not be decoded.
	ErrCodeInvalidToken ErrorCode = "invalid_token"
	// ErrCodeMissingClaim indicates a token missing a required claim.
	ErrCodeMissingClaim ErrorCode = "missing_claim"
	// ErrCodeMissingTenant indicates a tenant-restricted role without a tenant id.
	ErrCodeMissingTenant ErrorCode = "missing_tenant"
	// ErrCodeMaskingUnavailable indicates no masking rules could be resolved
	// from either the token or the identity provider.
	ErrCodeMaskingUnavailable ErrorCode = "masking_rules_unavailable"
	// ErrCodeTransientFetch indicates a retryable data store failure during a chunk fetch.
	ErrCodeTransientFetch ErrorCode = "transient_fetch"
	// ErrCodeWrite indicates a failure writing the report artifact.
	ErrCodeWrite ErrorCode = "write_error"
	// ErrCodeJobCancelled indicates the job was cancelled by an external caller.
	ErrCodeJobCancelled ErrorCode = "job_cancelled"
	// ErrCodeDependency indicates a dependency fan-out failure. Never fails the parent.
	ErrCodeDependency ErrorCode = "dependency"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}

// InvalidToken creates an error for a structurally unusable bearer token.
func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidToken,
		Message: message,
	}
}

// MissingClaim creates an error for a token missing a required claim.
func MissingClaim(claim string) *AppError {
	return &AppError{
		Code:    ErrCodeMissingClaim,
		Message: fmt.Sprintf("token missing required claim %q", claim),
		Field:   claim,
	}
}

// MissingTenant creates an error for a tenant-restricted role with no tenant id.
func MissingTenant(role string) *AppError {
	return &AppError{
		Code:    ErrCodeMissingTenant,
		Message: fmt.Sprintf("MissingTenant: role %s requires a tenant id", role),
	}
}

// MaskingUnavailable creates an error for an unresolvable masking rule set.
func MaskingUnavailable(role, reportType string) *AppError {
	return &AppError{
		Code:    ErrCodeMaskingUnavailable,
		Message: fmt.Sprintf("no masking rules available for role %s and report type %s", role, reportType),
	}
}

// TransientFetch wraps a retryable data store failure.
func TransientFetch(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    ErrCodeTransientFetch,
		Message: "transient data fetch failure",
		Cause:   err,
	}
}

// WriteFailure wraps a report artifact write failure.
func WriteFailure(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    ErrCodeWrite,
		Message: "report write failure",
		Cause:   err,
	}
}

// JobCancelled creates the terminal cancellation marker. Carries no error text
// beyond the code; cancellations are not failures.
func JobCancelled(jobID string) *AppError {
	return &AppError{
		Code:    ErrCodeJobCancelled,
		Message: fmt.Sprintf("job %s cancelled", jobID),
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInvalidToken checks if an error is an InvalidToken error.
func IsInvalidToken(err error) bool {
	return isCode(err, ErrCodeInvalidToken)
}

// IsMissingTenant checks if an error is a MissingTenant error.
func IsMissingTenant(err error) bool {
	return isCode(err, ErrCodeMissingTenant)
}

// IsMaskingUnavailable checks if an error is a MaskingUnavailable error.
func IsMaskingUnavailable(err error) bool {
	return isCode(err, ErrCodeMaskingUnavailable)
}

// IsTransientFetch checks if an error is a retryable fetch error.
func IsTransientFetch(err error) bool {
	return isCode(err, ErrCodeTransientFetch)
}

// IsJobCancelled checks if an error is the cancellation marker.
func IsJobCancelled(err error) bool {
	return isCode(err, ErrCodeJobCancelled)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
