// Package errors provides a structured error system for the collector with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for collector operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Input Errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Fetch Errors
	ErrCodeTransientFetch ErrorCode = "TRANSIENT_FETCH"

	// Persistence Errors
	ErrCodePersistence ErrorCode = "PERSISTENCE"

	// Archive Errors
	ErrCodeCompression ErrorCode = "COMPRESSION"
	ErrCodeUpload      ErrorCode = "UPLOAD"
	ErrCodeCleanup     ErrorCode = "CLEANUP"

	// Configuration Errors
	ErrCodeInvalidConfig      ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig      ErrorCode = "MISSING_CONFIG"
	ErrCodeCredentialsMissing ErrorCode = "CREDENTIALS_MISSING"

	// State Management Errors
	ErrCodeAlreadyStarted   ErrorCode = "ALREADY_STARTED"
	ErrCodeComponentStopped ErrorCode = "COMPONENT_STOPPED"

	// Internal System Errors
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryInput         ErrorCategory = "input"
	CategoryFetch         ErrorCategory = "fetch"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryArchive       ErrorCategory = "archive"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

var categories = map[ErrorCode]ErrorCategory{
	ErrCodeInvalidInput:       CategoryInput,
	ErrCodeTransientFetch:     CategoryFetch,
	ErrCodePersistence:        CategoryPersistence,
	ErrCodeCompression:        CategoryArchive,
	ErrCodeUpload:             CategoryArchive,
	ErrCodeCleanup:            CategoryArchive,
	ErrCodeInvalidConfig:      CategoryConfiguration,
	ErrCodeMissingConfig:      CategoryConfiguration,
	ErrCodeCredentialsMissing: CategoryConfiguration,
	ErrCodeAlreadyStarted:     CategoryState,
	ErrCodeComponentStopped:   CategoryState,
}

// CollectorError represents a structured error with context and metadata.
type CollectorError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool `json:"retryable"`
}

// NewError creates a new collector error with default values.
func NewError(code ErrorCode, message string) *CollectorError {
	return &CollectorError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// Error implements the error interface.
func (e *CollectorError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *CollectorError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *CollectorError) Is(target error) bool {
	if other, ok := target.(*CollectorError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *CollectorError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("CollectorError{%s}", strings.Join(parts, ", "))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	if category, ok := categories[code]; ok {
		return category
	}
	return CategoryInternal
}

// IsRetryableByDefault reports whether the failed operation can succeed on
// a later attempt. Only fetches are retried; archives are never re-run.
func IsRetryableByDefault(code ErrorCode) bool {
	return code == ErrCodeTransientFetch
}

// WithContext adds contextual information to an error
func (e *CollectorError) WithContext(key, value string) *CollectorError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *CollectorError) WithDetail(key string, value interface{}) *CollectorError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *CollectorError) WithComponent(component string) *CollectorError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *CollectorError) WithOperation(operation string) *CollectorError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *CollectorError) WithCause(cause error) *CollectorError {
	e.Cause = cause
	return e
}

// Wrap creates an error with the given code around cause.
func Wrap(cause error, code ErrorCode, message string) *CollectorError {
	return NewError(code, message).WithCause(cause)
}

// GetCode returns the code of the first CollectorError in err's chain, or
// ErrCodeInternalError when there is none.
func GetCode(err error) ErrorCode {
	var ce *CollectorError
	if stderr.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether any CollectorError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderr.Is(err, &CollectorError{Code: code})
}
