package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "STF1001"
	ErrCodeConnectionTimeout    ErrorCode = "STF1002"
	ErrCodeAuthenticationFailed ErrorCode = "STF1003"
	ErrCodeNetworkUnavailable   ErrorCode = "STF1004"
	ErrCodeUnsupportedDriver    ErrorCode = "STF1005"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound   ErrorCode = "STF2001"
	ErrCodeConfigInvalid    ErrorCode = "STF2002"
	ErrCodeConfigMissing    ErrorCode = "STF2003"
	ErrCodeCredentials      ErrorCode = "STF2004"
	ErrCodeUnknownVariable  ErrorCode = "STF2005"
	ErrCodeUnknownConnID    ErrorCode = "STF2006"

	// Storage errors (3xxx)
	ErrCodeStorageRead   ErrorCode = "STF3001"
	ErrCodeStorageWrite  ErrorCode = "STF3002"
	ErrCodeStorageList   ErrorCode = "STF3003"
	ErrCodeInvalidURI    ErrorCode = "STF3004"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "STF4001"
	ErrCodeSQLPermission     ErrorCode = "STF4002"
	ErrCodeSQLTimeout        ErrorCode = "STF4003"
	ErrCodeSQLTransaction    ErrorCode = "STF4004"
	ErrCodeSQLObjectNotFound ErrorCode = "STF4005"
	ErrCodeSQLExecution      ErrorCode = "STF4006"
	ErrCodeNoResults         ErrorCode = "STF4008"

	// File system errors (5xxx)
	ErrCodeFileNotFound  ErrorCode = "STF5001"
	ErrCodeFileOperation ErrorCode = "STF5005"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "STF6001"
	ErrCodeInvalidInput     ErrorCode = "STF6002"
	ErrCodeRequiredField    ErrorCode = "STF6003"
	ErrCodeQualityCheck     ErrorCode = "STF6004"

	// Load/query job errors (7xxx)
	ErrCodeLoadJobFailed  ErrorCode = "STF7001"
	ErrCodeQueryJobFailed ErrorCode = "STF7002"
	ErrCodeDatasetExists  ErrorCode = "STF7003"

	// DAG errors (8xxx)
	ErrCodeTaskFailed     ErrorCode = "STF8001"
	ErrCodeDAGCycle       ErrorCode = "STF8002"
	ErrCodeDAGUnknownTask ErrorCode = "STF8003"
	ErrCodeDAGDuplicate   ErrorCode = "STF8004"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "STF9001"
	ErrCodeTimeout            ErrorCode = "STF9002"
	ErrCodeResourceExhausted  ErrorCode = "STF9003"
	ErrCodeServiceUnavailable ErrorCode = "STF9004"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
	// Details holds vendor-provided messages, one per failed row or item.
	Details []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	for _, d := range e.Details {
		b.WriteString("\n  - ")
		b.WriteString(d)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit some properties
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithCode overrides the error code
func (e *AppError) WithCode(code ErrorCode) *AppError {
	e.Code = code
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDetails attaches vendor messages to the error
func (e *AppError) WithDetails(details ...string) *AppError {
	e.Details = append(e.Details, details...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the cluster endpoint and port in the [CLUSTER] section",
			"Check that the cluster security group allows your address",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'starflow setup' to write a profile",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	causeText := ""
	if cause != nil {
		causeText = strings.ToLower(cause.Error())
	}

	switch {
	case strings.Contains(causeText, "permission") || strings.Contains(causeText, "access denied"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check the user's grants on the target schema",
			"Verify the IAM role can read the source bucket",
		)
	case strings.Contains(causeText, "timeout"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the statement timeout",
			"Check the cluster load",
		)
	case strings.Contains(causeText, "does not exist") || strings.Contains(causeText, "not found"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Run the create-tables step before loading",
			"Check the search_path / schema name",
		)
	case strings.Contains(causeText, "syntax error"):
		err.Code = ErrCodeSQLSyntax
	}

	return err
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning)
}

// LoadJobError reports a failed warehouse load job together with the
// per-row messages the service returned.
func LoadJobError(table string, cause error, messages []string) *AppError {
	err := New(ErrCodeLoadJobFailed, fmt.Sprintf("Load job into %s failed", table)).
		WithContext("table", table).
		WithDetails(messages...)
	err.Cause = cause
	return err
}

// QueryJobError reports a failed query job writing into a destination table
func QueryJobError(table string, cause error, messages []string) *AppError {
	err := New(ErrCodeQueryJobFailed, fmt.Sprintf("Query job into %s failed", table)).
		WithContext("table", table).
		WithDetails(messages...)
	err.Cause = cause
	return err
}

// TaskError wraps the failure of a single DAG task
func TaskError(taskID string, attempts int, cause error) *AppError {
	return Wrap(cause, ErrCodeTaskFailed, fmt.Sprintf("Task %s failed", taskID)).
		WithContext("task", taskID).
		WithContext("attempts", attempts)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
