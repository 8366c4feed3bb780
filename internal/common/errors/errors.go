package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeSequenceAllocationFailed ErrorCode = "SEQUENCE_ALLOCATION_FAILED"
	ErrCodeUnknownCodeKind          ErrorCode = "UNKNOWN_CODE_KIND"

	ErrCodeRecipientNotFound      ErrorCode = "RECIPIENT_NOT_FOUND"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeDispatchTimeout        ErrorCode = "DISPATCH_TIMEOUT"
	ErrCodeChannelUnavailable     ErrorCode = "CHANNEL_UNAVAILABLE"
	ErrCodeRecordNotFound         ErrorCode = "RECORD_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"

	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeExternalService     ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout             ErrorCode = "TIMEOUT"
	ErrCodeBusinessRule        ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthenticationError ErrorCode = "AUTHENTICATION_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// BPMNError carries the variables thrown back to the process engine.
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

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewSequenceAllocationFailedError(scope string, err error) *StandardError {
	return newError(ErrCodeSequenceAllocationFailed, "Sequence allocation failed",
		fmt.Sprintf("scope: %s, error: %v", scope, err), true, err)
}

func NewUnknownCodeKindError(kind string) *StandardError {
	return newError(ErrCodeUnknownCodeKind, "Unknown code kind", fmt.Sprintf("kind: %s", kind), false, nil)
}

func NewRecipientNotFoundError(kind, id string) *StandardError {
	return newError(ErrCodeRecipientNotFound, "Recipient not found",
		fmt.Sprintf("recipientKind: %s, recipientId: %s", kind, id), false, nil)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), false, err)
}

func NewDispatchTimeoutError(channel string) *StandardError {
	return newError(ErrCodeDispatchTimeout, "timeout", fmt.Sprintf("channel: %s", channel), false, nil)
}

func NewChannelUnavailableError(channel string) *StandardError {
	return newError(ErrCodeChannelUnavailable, "Requested channel is unavailable",
		fmt.Sprintf("channel: %s", channel), false, nil)
}

func NewRecordNotFoundError(id string) *StandardError {
	return newError(ErrCodeRecordNotFound, "Notification record not found", fmt.Sprintf("id: %s", id), false, nil)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("queryType: %s, error: %s", queryType, err.Error()), true, err)
}

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Input validation failed", details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s request timed out", service), err.Error(), true, err)
}

func NewResourceNotFoundError(resource, details string) *StandardError {
	return newError(ErrCodeRecordNotFound, fmt.Sprintf("%s resource not found", resource), details, false, nil)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthenticationError, "Authentication failed", details, false, nil)
}

// As extracts a *StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a StandardError with code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := As(err)
	return ok && se.Code == code
}

func IsRetryable(err error) bool {
	if se, ok := As(err); ok {
		return se.Retryable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused")
}

// ToBPMNError converts any error into the shape thrown to the engine.
func ToBPMNError(err error, retries int) *BPMNError {
	if se, ok := As(err); ok {
		return &BPMNError{
			Code:      string(se.Code),
			Message:   se.Message,
			Details:   se.Details,
			Retryable: se.Retryable,
			Retries:   retries,
		}
	}
	return &BPMNError{
		Code:      "INTERNAL_ERROR",
		Message:   err.Error(),
		Retryable: false,
		Retries:   retries,
	}
}
