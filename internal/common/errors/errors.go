// Package errors provides the standardized error type shared by the HTTP API
// and the BPMN job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

// Visitor-facing errors
const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeConsentRequired   ErrorCode = "CONSENT_REQUIRED"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeRequestInFlight   ErrorCode = "REQUEST_IN_FLIGHT"
)

// Decoder capability errors
const (
	ErrCodeIncompleteAIResponse ErrorCode = "INCOMPLETE_AI_RESPONSE"
	ErrCodeAICallFailed         ErrorCode = "AI_CALL_FAILED"
	ErrCodeAITimeout            ErrorCode = "AI_TIMEOUT"
	ErrCodeVariantNotFound      ErrorCode = "VARIANT_NOT_FOUND"
)

// Infrastructure errors
const (
	ErrCodeStoreFailed            ErrorCode = "STORE_FAILED"
	ErrCodeAccessCheckFailed      ErrorCode = "ACCESS_CHECK_FAILED"
	ErrCodeWebhookInvalid         ErrorCode = "WEBHOOK_INVALID"
	ErrCodeLeadCaptureFailed      ErrorCode = "LEAD_CAPTURE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
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
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another *StandardError by code, so errors.Is(err, &StandardError{Code: X}) works.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after attaching a metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
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

// NewValidationError reports missing or malformed form input.
func NewValidationError(message string, fieldErrors map[string]string) *StandardError {
	e := newError(ErrCodeValidationFailed, message, "", false, nil)
	for field, msg := range fieldErrors {
		e.WithMetadata(field, msg)
	}
	return e
}

// NewConsentRequiredError reports an unchecked disclaimer agreement.
func NewConsentRequiredError() *StandardError {
	return newError(ErrCodeConsentRequired, "You must agree to the terms to proceed.", "", false, nil)
}

func NewInvalidTransitionError(from, event string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Action not available on this page",
		fmt.Sprintf("page: %s, event: %s", from, event), false, nil)
}

func NewRequestInFlightError() *StandardError {
	return newError(ErrCodeRequestInFlight, "A question is already being decoded", "", false, nil)
}

// NewIncompleteAIResponseError reports a non-harmful result missing content fields.
func NewIncompleteAIResponseError(missing []string) *StandardError {
	return newError(ErrCodeIncompleteAIResponse,
		"The Decoder returned an incomplete response. Please try again.",
		"missing: "+strings.Join(missing, ","), false, nil)
}

// NewAICallFailedError keeps the underlying detail when one exists.
func NewAICallFailedError(err error) *StandardError {
	if err == nil {
		return newError(ErrCodeAICallFailed,
			"An unknown error occurred while decoding your question.", "", true, nil)
	}
	return newError(ErrCodeAICallFailed,
		fmt.Sprintf("An error occurred: %s.", err.Error()), err.Error(), true, err)
}

func NewAITimeoutError(err error) *StandardError {
	details := "decoder call exceeded its deadline"
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeAITimeout,
		"The Decoder took too long to answer. Please try again.", details, true, err)
}

func NewVariantNotFoundError(variantID string) *StandardError {
	return newError(ErrCodeVariantNotFound, "Unknown decoder variant",
		fmt.Sprintf("variant: %s", variantID), false, nil)
}

func NewStoreFailedError(op string, err error) *StandardError {
	return newError(ErrCodeStoreFailed, "Visitor state store error",
		fmt.Sprintf("op: %s, error: %v", op, err), true, err)
}

func NewAccessCheckFailedError(err error) *StandardError {
	return newError(ErrCodeAccessCheckFailed, "Access check failed", err.Error(), true, err)
}

func NewWebhookInvalidError(err error) *StandardError {
	return newError(ErrCodeWebhookInvalid, "Payment webhook rejected", err.Error(), false, err)
}

func NewLeadCaptureFailedError(sink string, err error) *StandardError {
	return newError(ErrCodeLeadCaptureFailed, "Lead capture failed",
		fmt.Sprintf("sink: %s, error: %v", sink, err), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// Conversion helpers
// ==========================

// AsStandard normalizes any error into a *StandardError.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// HTTPStatus maps an error code onto the API response status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeConsentRequired:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidTransition, ErrCodeRequestInFlight:
		return http.StatusConflict
	case ErrCodeWebhookInvalid:
		return http.StatusBadRequest
	case ErrCodeVariantNotFound:
		return http.StatusNotFound
	case ErrCodeIncompleteAIResponse, ErrCodeAICallFailed:
		return http.StatusBadGateway
	case ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	case ErrCodeStoreFailed, ErrCodeAccessCheckFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the BPMN retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreFailed, ErrCodeAccessCheckFailed, ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeAICallFailed, ErrCodeAITimeout, ErrCodeLeadCaptureFailed:
		return 1
	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeConsentRequired, ErrCodeInvalidTransition, ErrCodeRequestInFlight:
		return "visitor"
	case ErrCodeIncompleteAIResponse, ErrCodeAICallFailed, ErrCodeAITimeout, ErrCodeVariantNotFound:
		return "decoder"
	case ErrCodeStoreFailed, ErrCodeAccessCheckFailed:
		return "storage"
	case ErrCodeWebhookInvalid:
		return "payments"
	case ErrCodeLeadCaptureFailed, ErrCodeNotificationSendFailed:
		return "integration"
	default:
		return "internal"
	}
}
