// Package contextutils provides error handling utilities and standardized error types
// for consistent error management across the triage pipeline.
package contextutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	// Database error codes
	ErrorCodeDatabaseConnection  ErrorCode = "DATABASE_CONNECTION_ERROR"
	ErrorCodeDatabaseQuery       ErrorCode = "DATABASE_QUERY_ERROR"
	ErrorCodeDatabaseTransaction ErrorCode = "DATABASE_TRANSACTION_ERROR"
	ErrorCodeRecordNotFound      ErrorCode = "RECORD_NOT_FOUND"
	ErrorCodeRecordExists        ErrorCode = "RECORD_ALREADY_EXISTS"

	// Validation error codes
	ErrorCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	// ErrorCodeValidation indicates that a report draft is missing required fields
	ErrorCodeValidation      ErrorCode = "VALIDATION_ERROR"

	// Authentication error codes
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrorCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// Service error codes
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout            ErrorCode = "REQUEST_TIMEOUT"
	ErrorCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrorCodeConflict           ErrorCode = "CONFLICT"

	// Capture and upload error codes
	// ErrorCodeCapturePermissionDenied indicates the user declined a capture permission
	ErrorCodeCapturePermissionDenied ErrorCode = "CAPTURE_PERMISSION_DENIED"
	// ErrorCodeCaptureFailed indicates capture was permitted but failed technically
	ErrorCodeCaptureFailed           ErrorCode = "CAPTURE_FAILED"
	// ErrorCodeUploadFailed indicates a network or storage failure during media upload
	ErrorCodeUploadFailed            ErrorCode = "UPLOAD_FAILED"
	// ErrorCodeUploadExpired indicates the upload target is no longer valid
	ErrorCodeUploadExpired           ErrorCode = "UPLOAD_EXPIRED"

	// Report lifecycle error codes
	// ErrorCodeReportClosed indicates a message was posted to a closed report
	ErrorCodeReportClosed           ErrorCode = "REPORT_CLOSED"
	// ErrorCodeInvalidTransition indicates a report status change that is not allowed
	ErrorCodeInvalidTransition      ErrorCode = "INVALID_STATUS_TRANSITION"
	// ErrorCodeSatisfactionExists indicates the report already has a satisfaction rating
	ErrorCodeSatisfactionExists     ErrorCode = "SATISFACTION_EXISTS"
	// ErrorCodeSatisfactionNotAllowed indicates the report is not resolved or closed yet
	ErrorCodeSatisfactionNotAllowed ErrorCode = "SATISFACTION_NOT_ALLOWED"

	// AI Service error codes
	ErrorCodeAIRequestFailed   ErrorCode = "AI_REQUEST_FAILED"
	ErrorCodeAIResponseInvalid ErrorCode = "AI_RESPONSE_INVALID"
	ErrorCodeAIConfigInvalid   ErrorCode = "AI_CONFIG_INVALID"
	// ErrorCodeAnalysisFailed indicates a terminal analysis job failure
	ErrorCodeAnalysisFailed    ErrorCode = "ANALYSIS_FAILED"
)

// SeverityLevel represents the severity of an error for logging and monitoring
type SeverityLevel string

const (
	// SeverityDebug indicates debug-level errors for development
	SeverityDebug SeverityLevel = "debug"
	// SeverityInfo indicates informational errors
	SeverityInfo SeverityLevel = "info"
	// SeverityWarn indicates warning-level errors
	SeverityWarn SeverityLevel = "warn"
	// SeverityError indicates error-level issues
	SeverityError SeverityLevel = "error"
	// SeverityFatal indicates fatal errors that require immediate attention
	SeverityFatal SeverityLevel = "fatal"
)

// AppError represents a structured error with code, severity, and context
type AppError struct {
	Code     ErrorCode
	Severity SeverityLevel
	Message  string
	Details  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison for errors.Is
func (e *AppError) Is(target error) bool {
	if appErr, ok := target.(*AppError); ok {
		return e.Code == appErr.Code
	}
	return false
}

// sentinels indexes every registered error by code
var sentinels = map[ErrorCode]*AppError{}

// sentinel registers the canonical error for a code
func sentinel(code ErrorCode, severity SeverityLevel, message string) *AppError {
	e := &AppError{Code: code, Severity: severity, Message: message}
	sentinels[code] = e
	return e
}

// Sentinel errors. Match them with errors.Is; wrapping keeps the code.
var (
	// Storage
	ErrDatabaseConnection  = sentinel(ErrorCodeDatabaseConnection, SeverityError, "Database connection failed")
	ErrDatabaseQuery       = sentinel(ErrorCodeDatabaseQuery, SeverityError, "Database query failed")
	ErrDatabaseTransaction = sentinel(ErrorCodeDatabaseTransaction, SeverityError, "Database transaction failed")
	ErrRecordNotFound      = sentinel(ErrorCodeRecordNotFound, SeverityInfo, "Record not found")
	ErrRecordExists        = sentinel(ErrorCodeRecordExists, SeverityInfo, "Record already exists")

	// Input
	ErrInvalidInput    = sentinel(ErrorCodeInvalidInput, SeverityWarn, "Invalid input")
	ErrMissingRequired = sentinel(ErrorCodeMissingRequired, SeverityWarn, "Missing required field")
	ErrValidation      = sentinel(ErrorCodeValidation, SeverityWarn, "Title and description are required")

	// Auth
	ErrUnauthorized       = sentinel(ErrorCodeUnauthorized, SeverityWarn, "Unauthorized")
	ErrForbidden          = sentinel(ErrorCodeForbidden, SeverityWarn, "Forbidden")
	ErrInvalidCredentials = sentinel(ErrorCodeInvalidCredentials, SeverityWarn, "Invalid credentials")

	// Service
	ErrServiceUnavailable = sentinel(ErrorCodeServiceUnavailable, SeverityError, "Service unavailable")
	ErrTimeout            = sentinel(ErrorCodeTimeout, SeverityWarn, "Request timeout")
	ErrRateLimit          = sentinel(ErrorCodeRateLimit, SeverityWarn, "Rate limit exceeded")
	ErrInternalError      = sentinel(ErrorCodeInternalError, SeverityError, "Internal server error")
	ErrConflict           = sentinel(ErrorCodeConflict, SeverityWarn, "Operation conflicts with current state")

	// Capture and upload
	ErrCapturePermissionDenied = sentinel(ErrorCodeCapturePermissionDenied, SeverityInfo, "Capture permission was denied")
	ErrCaptureFailed           = sentinel(ErrorCodeCaptureFailed, SeverityWarn, "Capture failed")
	ErrUploadFailed            = sentinel(ErrorCodeUploadFailed, SeverityWarn, "Media upload failed")
	ErrUploadExpired           = sentinel(ErrorCodeUploadExpired, SeverityInfo, "Upload target expired")

	// Report lifecycle
	ErrReportClosed           = sentinel(ErrorCodeReportClosed, SeverityInfo, "This report is closed and no longer accepts messages")
	ErrInvalidTransition      = sentinel(ErrorCodeInvalidTransition, SeverityWarn, "Status transition not allowed")
	ErrSatisfactionExists     = sentinel(ErrorCodeSatisfactionExists, SeverityInfo, "Feedback has already been submitted for this report")
	ErrSatisfactionNotAllowed = sentinel(ErrorCodeSatisfactionNotAllowed, SeverityInfo, "Feedback can only be submitted once the report is resolved")

	// Analysis
	ErrAIRequestFailed   = sentinel(ErrorCodeAIRequestFailed, SeverityError, "AI request failed")
	ErrAIResponseInvalid = sentinel(ErrorCodeAIResponseInvalid, SeverityError, "AI response invalid")
	ErrAIConfigInvalid   = sentinel(ErrorCodeAIConfigInvalid, SeverityError, "AI configuration invalid")
	ErrAnalysisFailed    = sentinel(ErrorCodeAnalysisFailed, SeverityWarn, "Analysis failed")
)

// SentinelForCode returns the sentinel error registered for code, or nil.
// Clients use it to turn an API error body back into an error that matches with errors.Is.
func SentinelForCode(code ErrorCode) *AppError {
	return sentinels[code]
}

// NewAppError creates a new AppError with the specified code, severity, message and details
func NewAppError(code ErrorCode, severity SeverityLevel, message, details string) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
	}
}

// NewAppErrorWithCause creates a new AppError with an underlying cause
func NewAppErrorWithCause(code ErrorCode, severity SeverityLevel, message, details string, cause error) *AppError {
	return &AppError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Details:  details,
		Cause:    cause,
	}
}

// WrapError wraps an error with additional context, preserving AppError structure if possible
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:     appErr.Code,
			Severity: appErr.Severity,
			Message:  context,
			Details:  appErr.Error(),
			Cause:    err,
		}
	}

	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  context,
		Details:  err.Error(),
		Cause:    err,
	}
}

// WrapErrorf wraps an error with formatted context, preserving AppError structure if possible
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}

	// %w in the format is handled by fmt.Errorf so the chain stays intact
	if strings.Contains(format, "%w") {
		wrappedErr := fmt.Errorf(format, args...)

		var appErr *AppError
		if errors.As(err, &appErr) {
			return &AppError{
				Code:     appErr.Code,
				Severity: appErr.Severity,
				Message:  wrappedErr.Error(),
				Details:  appErr.Error(),
				Cause:    wrappedErr,
			}
		}

		return &AppError{
			Code:     ErrorCodeInternalError,
			Severity: SeverityError,
			Message:  wrappedErr.Error(),
			Details:  err.Error(),
			Cause:    wrappedErr,
		}
	}

	return WrapError(err, fmt.Sprintf(format, args...))
}

// ErrorWithContextf creates a new error with formatted context
func ErrorWithContextf(format string, args ...interface{}) error {
	return &AppError{
		Code:     ErrorCodeInternalError,
		Severity: SeverityError,
		Message:  fmt.Sprintf(format, args...),
	}
}

// IsError checks if an error matches a specific AppError type anywhere in its chain
func IsError(err error, target *AppError) bool {
	return err != nil && errors.Is(err, target)
}

// GetErrorCode returns the error code from an error if it's an AppError, otherwise returns a default code
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternalError
}

// IsRetryable determines if an error should be retried based on its type and severity
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrorCodeTimeout, ErrorCodeServiceUnavailable, ErrorCodeDatabaseConnection,
		ErrorCodeUploadFailed, ErrorCodeCaptureFailed, ErrorCodeCapturePermissionDenied,
		ErrorCodeAnalysisFailed, ErrorCodeRateLimit:
		return appErr.Severity != SeverityFatal
	}
	return false
}

// ToJSON converts an AppError to a JSON-serializable structure for API responses
func (e *AppError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     string(e.Code),
		"message":  e.Message,
		"severity": string(e.Severity),
		"error":    e.Message,
	}

	if e.Details != "" {
		result["details"] = e.Details
	}

	result["retryable"] = IsRetryable(e)

	if e.Cause != nil {
		switch e.Severity {
		case SeverityError, SeverityFatal:
			result["cause"] = e.Cause.Error()
		}
	}

	return result
}

// ContextKey represents a context key type for passing values through context
type ContextKey string

const (
	// UserIDKey is used to store user ID in context
	UserIDKey ContextKey = "userID"
	// APIKeyIDKey is used to store API key ID in context
	APIKeyIDKey ContextKey = "apiKeyID"
)

// GetUserIDFromContext extracts the user ID from context, returning 0 if not found
func GetUserIDFromContext(ctx context.Context) int {
	if userID, ok := ctx.Value(UserIDKey).(int); ok {
		return userID
	}
	return 0
}

// GetAPIKeyIDFromContext extracts the API key ID from context, returning nil if not found
func GetAPIKeyIDFromContext(ctx context.Context) *int {
	if apiKeyID, ok := ctx.Value(APIKeyIDKey).(*int); ok {
		return apiKeyID
	}
	return nil
}

// WithUserID returns a new context with the user ID set
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithAPIKeyID returns a new context with the API key ID set
func WithAPIKeyID(ctx context.Context, apiKeyID int) context.Context {
	return context.WithValue(ctx, APIKeyIDKey, &apiKeyID)
}
