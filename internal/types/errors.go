package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidEmail  ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidTitle  ErrorCode = "validation_invalid_title"
	ErrCodeValidationInvalidID     ErrorCode = "validation_invalid_id"
	ErrCodeValidationWeakPassword  ErrorCode = "validation_weak_password"
	ErrCodeValidationInvalidStatus ErrorCode = "validation_invalid_subscription_status"

	// Auth (401)
	ErrCodeAuthTokenMissing  ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid  ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired  ErrorCode = "auth_token_expired"
	ErrCodeAuthInvalidCreds  ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthUserNotFound  ErrorCode = "auth_user_not_found"
	ErrCodeAuthSignature     ErrorCode = "auth_signature_invalid"
	ErrCodeAuthSignatureMiss ErrorCode = "auth_signature_missing"

	// Forbidden (403)
	ErrCodeForbiddenSessionMismatch ErrorCode = "forbidden_session_mismatch"
	ErrCodeQuotaNoteLimit           ErrorCode = "quota_note_limit_reached"

	// Not Found (404)
	ErrCodeNotFoundNote        ErrorCode = "not_found_note"
	ErrCodeNotFoundUser        ErrorCode = "not_found_user"
	ErrCodeNotFoundEntitlement ErrorCode = "not_found_entitlement"
	ErrCodeNotFoundCustomer    ErrorCode = "not_found_customer"
	ErrCodeNotFoundSession     ErrorCode = "not_found_checkout_session"

	// Conflict (409)
	ErrCodeConflictEmail              ErrorCode = "conflict_email_exists"
	ErrCodeConflictNoBilling          ErrorCode = "conflict_no_billing_relationship"
	ErrCodeConflictAlreadySubscribed  ErrorCode = "conflict_already_subscribed"
	ErrCodeConflictCheckoutIncomplete ErrorCode = "conflict_checkout_incomplete"
	ErrCodeConflictCustomerLinked     ErrorCode = "conflict_customer_already_linked"

	// Internal/Upstream (500/502/503)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalConfig      ErrorCode = "internal_configuration_error"
	ErrCodeUpstreamStripe      ErrorCode = "upstream_stripe_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case c == ErrCodeAuthSignature, c == ErrCodeAuthSignatureMiss:
		// The billing provider treats 4xx on signature failure as terminal.
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "forbidden_"), strings.HasPrefix(s, "quota_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case c == ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable // 503
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode carried by err, or the empty string when err
// does not wrap an *AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
