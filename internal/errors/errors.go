package errors

import (
	"fmt"
)

// AskError is the structured error type for askdoc.
// It provides rich context for error handling, logging, and job status messages.
type AskError struct {
	// Code is the unique error code (e.g., "ERR_302_PARSE_EXHAUSTED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, External, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *AskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AskError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AskError.
func (e *AskError) Is(target error) bool {
	if t, ok := target.(*AskError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AskError) WithDetail(key, value string) *AskError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new AskError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AskError {
	return &AskError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AskError from an existing error.
// The error's message becomes the AskError message.
func Wrap(code string, err error) *AskError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// DocumentLoadError creates a document-level load error (fatal for a job).
func DocumentLoadError(message string, cause error) *AskError {
	return New(ErrCodeDocumentLoad, message, cause)
}

// ParseTransientError creates a retryable page-parse error.
func ParseTransientError(message string, cause error) *AskError {
	return New(ErrCodeParseTransient, message, cause)
}

// ParseExhaustedError creates a terminal per-page parse error.
// Terminal for one page, non-fatal for the job.
func ParseExhaustedError(message string, cause error) *AskError {
	return New(ErrCodeParseExhausted, message, cause)
}

// CorruptIndexError creates an index corruption error (triggers forced rebuild).
func CorruptIndexError(message string, cause error) *AskError {
	return New(ErrCodeCorruptIndex, message, cause)
}

// StoreUnavailableError creates an external store error (propagated to caller).
func StoreUnavailableError(message string, cause error) *AskError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// IsRetryable checks if an error is retryable.
// AskErrors carry an explicit flag; unknown errors default to false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AskError); ok {
		return ae.Retryable
	}
	return false
}

// CodeOf returns the error code of an AskError, or ERR_501_INTERNAL for
// plain errors.
func CodeOf(err error) string {
	if ae, ok := err.(*AskError); ok {
		return ae.Code
	}
	return ErrCodeInternal
}
