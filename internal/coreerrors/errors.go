package coreerrors

import "fmt"

// CoreError is the structured error type for chunkcore.
// It carries the context needed by logging, the MCP transport, and the
// HTTP status-code mapping in internal/httptransport.
type CoreError struct {
	// Code is the unique error code (e.g. "ERR_201_CHUNK_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category classifies the error (Input, NotFound, Fingerprint, Registry, State, IO).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates whether the operation can be retried. The core
	// itself never makes network calls, so this is always false today; it
	// is kept so internal/httptransport can set Retry-After uniformly if a
	// future collaborator (the training driver) needs it.
	Retryable bool
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, enabling errors.Is().
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CoreError with the given code and message.
// Category and severity are derived from the code.
func New(code, message string, cause error) *CoreError {
	return &CoreError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a CoreError from an existing error, or returns nil if err is nil.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InputErrorf creates an input-validation error.
func InputErrorf(code, format string, args ...any) *CoreError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// NotFoundErrorf creates a not-found error.
func NotFoundErrorf(code, format string, args ...any) *CoreError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// StateErrorf creates an illegal-transition error.
func StateErrorf(code, format string, args ...any) *CoreError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// FingerprintError wraps an I/O failure that occurred while checksumming a model file.
func FingerprintError(message string, cause error) *CoreError {
	return New(ErrCodeWeightFileUnreadable, message, cause)
}

// RegistryError wraps a structurally invalid registry document.
func RegistryError(message string, cause error) *CoreError {
	return New(ErrCodeRegistryCorrupt, message, cause)
}

// IOError wraps a mid-write filesystem failure.
func IOError(code, message string, cause error) *CoreError {
	return New(code, message, cause)
}

// GetCode extracts the error code from a CoreError, or "" if err is not one.
func GetCode(err error) string {
	if ce, ok := err.(*CoreError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError, or "" if err is not one.
func GetCategory(err error) Category {
	if ce, ok := err.(*CoreError); ok {
		return ce.Category
	}
	return ""
}

// IsFatal reports whether err is a CoreError with fatal severity.
func IsFatal(err error) bool {
	ce, ok := err.(*CoreError)
	return ok && ce.Severity == SeverityFatal
}
