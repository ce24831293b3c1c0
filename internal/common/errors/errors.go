// Package errors provides the standardized error model shared by the HTTP API
// and the job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode is a stable, machine readable error identifier.
type ErrorCode string

const (
	ErrCodeTemplateValidationFailed ErrorCode = "TEMPLATE_VALIDATION_FAILED"
	ErrCodeUnknownTemplateID        ErrorCode = "UNKNOWN_TEMPLATE_ID"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeNotConfigured  ErrorCode = "NOT_CONFIGURED"
	ErrCodeInvalidAPIKey  ErrorCode = "INVALID_API_KEY"

	ErrCodeClassificationTimeout   ErrorCode = "CLASSIFICATION_TIMEOUT"
	ErrCodeModelVerificationFailed ErrorCode = "MODEL_VERIFICATION_FAILED"

	ErrCodeSettingsStoreFailed ErrorCode = "SETTINGS_STORE_FAILED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the domain error the StandardError was built from.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying error and copies its text into Details
// when Details is empty.
func (e *StandardError) WithCause(err error) *StandardError {
	e.cause = err
	if e.Details == "" && err != nil {
		e.Details = err.Error()
	}
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError is an error thrown back to the Zeebe workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateValidationFailedError reports a template list that could not be built.
func NewTemplateValidationFailedError(err error) *StandardError {
	return newError(ErrCodeTemplateValidationFailed, "Prompt template validation failed", "", false).WithCause(err)
}

// NewUnknownTemplateIDError reports an explicit agent id with no matching template.
func NewUnknownTemplateIDError(id string, err error) *StandardError {
	e := newError(ErrCodeUnknownTemplateID, fmt.Sprintf("Unknown prompt template id: %s", id), "", false).WithCause(err)
	e.Metadata = map[string]interface{}{"templateId": id}
	return e
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false)
}

// NewNotConfiguredError reports a missing API key or template list.
func NewNotConfiguredError(details string) *StandardError {
	return newError(ErrCodeNotConfigured, "Prompt switcher is not configured", details, false)
}

func NewInvalidAPIKeyError(details string) *StandardError {
	return newError(ErrCodeInvalidAPIKey, "Invalid API key", details, false)
}

// NewClassificationTimeoutError reports an OpenAI call that ran out of time.
func NewClassificationTimeoutError(err error) *StandardError {
	return newError(ErrCodeClassificationTimeout, "Prompt classification timed out", "", true).WithCause(err)
}

// NewModelVerificationFailedError reports a rejected credential/model test call.
func NewModelVerificationFailedError(err error) *StandardError {
	return newError(ErrCodeModelVerificationFailed, "Model verification failed", "", false).WithCause(err)
}

func NewSettingsStoreFailedError(err error) *StandardError {
	return newError(ErrCodeSettingsStoreFailed, "Settings store operation failed", "", true).WithCause(err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), "", true).WithCause(err)
	e.Metadata = map[string]interface{}{"service": service}
	return e
}

func NewTimeoutError(service string, err error) *StandardError {
	e := newError(ErrCodeTimeout, fmt.Sprintf("Timeout calling %s", service), "", true).WithCause(err)
	e.Metadata = map[string]interface{}{"service": service}
	return e
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", "", false).WithCause(err)
}

// FromError returns err as a StandardError, wrapping anything else as an
// internal error.
func FromError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// ==========================
// 4. Error Conversion
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSettingsStoreFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeClassificationTimeout,
		ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError for the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := 0
	if stdErr.Retryable && IsRetryableErrorCode(stdErr.Code) {
		retries = GetRetryCount(stdErr.Code)
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// HTTPStatus maps a code onto the status the API responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeInvalidAPIKey:
		return http.StatusBadRequest
	case ErrCodeTemplateValidationFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeUnknownTemplateID:
		return http.StatusNotFound
	case ErrCodeNotConfigured:
		return http.StatusServiceUnavailable
	case ErrCodeModelVerificationFailed, ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeClassificationTimeout, ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode reports whether a job failing with code is worth
// retrying at all.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TEMPLATE"):
		return "TEMPLATE"
	case strings.Contains(codeStr, "CLASSIFICATION") || strings.Contains(codeStr, "MODEL"):
		return "AI"
	case strings.Contains(codeStr, "SETTINGS") || strings.Contains(codeStr, "CONFIGURED") || strings.Contains(codeStr, "API_KEY"):
		return "CONFIG"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL") || strings.Contains(codeStr, "TIMEOUT"):
		return "INFRASTRUCTURE"
	default:
		return "OTHER"
	}
}
