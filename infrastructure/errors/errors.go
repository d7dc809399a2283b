// Package errors provides unified, structured error handling for the hub.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/game-hub/wbp-hub/infrastructure/security"
)

// ErrorCode represents a unique error code drawn from the protocol's error taxonomy.
type ErrorCode string

const (
	// Transport errors (1xxx) - retried by the failover engine with backoff.
	ErrCodeConnectionFailed ErrorCode = "TRANSPORT_1001"
	ErrCodeSessionClosed    ErrorCode = "TRANSPORT_1002"
	ErrCodeTimeout          ErrorCode = "TRANSPORT_1003"

	// Protocol errors (2xxx) - reported, never retried.
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_2001"
	ErrCodeUnknownOperation  ErrorCode = "PROTOCOL_2002"
	ErrCodeInvalidRequest    ErrorCode = "PROTOCOL_2003"

	// Authentication errors (3xxx) - counted by the connection-security gate.
	ErrCodeAuthInvalid  ErrorCode = "AUTH_3001"
	ErrCodeAuthExpired  ErrorCode = "AUTH_3002"
	ErrCodeIPNotAllowed ErrorCode = "AUTH_3003"
	ErrCodeIPBlocked    ErrorCode = "AUTH_3004"

	// Authorization errors (4xxx) - escalate via the business degrader.
	ErrCodePermissionDenied ErrorCode = "AUTHZ_4001"

	// Availability errors (5xxx) - trigger caching/degradation.
	ErrCodeServerUnavailable ErrorCode = "AVAIL_5001"

	// Conflict errors (6xxx) - resolved or flagged manual by the degrader.
	ErrCodeSyncConflict ErrorCode = "CONFLICT_6001"

	// Rate errors (7xxx) - never retried automatically.
	ErrCodeRateLimited ErrorCode = "RATE_7001"

	// Internal errors (8xxx) - logged with full context, surfaced redacted.
	ErrCodeRequestFailed ErrorCode = "INTERNAL_8001"
	ErrCodeInternal      ErrorCode = "INTERNAL_8002"
)

// ServiceError represents a structured error with code, message and wire/http status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Transport errors

func ConnectionFailed(serverID string, err error) *ServiceError {
	return Wrap(ErrCodeConnectionFailed, "Connection to server failed", http.StatusBadGateway, err).
		WithDetails("serverId", serverID)
}

func SessionClosed(reason string) *ServiceError {
	return New(ErrCodeSessionClosed, "Session closed", http.StatusGone).
		WithDetails("reason", reason)
}

func Timeout(op string) *ServiceError {
	return New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout).
		WithDetails("op", op)
}

// Protocol errors

func ProtocolViolation(reason string) *ServiceError {
	return New(ErrCodeProtocolViolation, "Protocol violation", http.StatusBadRequest).
		WithDetails("reason", reason)
}

func UnknownOperation(op string) *ServiceError {
	return New(ErrCodeUnknownOperation, "Unknown operation", http.StatusNotFound).
		WithDetails("op", op)
}

func InvalidRequest(reason string) *ServiceError {
	return New(ErrCodeInvalidRequest, "Invalid request", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// Authentication errors

func AuthInvalid(err error) *ServiceError {
	return Wrap(ErrCodeAuthInvalid, "Invalid authentication token", http.StatusUnauthorized, err)
}

func AuthExpired() *ServiceError {
	return New(ErrCodeAuthExpired, "Authentication token has expired", http.StatusUnauthorized)
}

func IPNotAllowed(ip string) *ServiceError {
	return New(ErrCodeIPNotAllowed, "IP address not allowed for this token", http.StatusForbidden).
		WithDetails("ip", ip)
}

func IPBlocked(retryAfterMs int64) *ServiceError {
	return New(ErrCodeIPBlocked, "IP address is temporarily blocked", http.StatusTooManyRequests).
		WithDetails("retryAfter", retryAfterMs)
}

// Authorization errors

func PermissionDenied(op string) *ServiceError {
	return New(ErrCodePermissionDenied, "Permission denied", http.StatusForbidden).
		WithDetails("op", op)
}

// Availability errors

func ServerUnavailable(serverID string) *ServiceError {
	return New(ErrCodeServerUnavailable, "Server is unavailable", http.StatusServiceUnavailable).
		WithDetails("serverId", serverID)
}

// Conflict errors

func SyncConflict(kind string) *ServiceError {
	return New(ErrCodeSyncConflict, "Synchronization conflict", http.StatusConflict).
		WithDetails("kind", kind)
}

// Rate errors

func RateLimited(retryAfterMs int64) *ServiceError {
	return New(ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("retryAfter", retryAfterMs)
}

// Internal errors

// RequestFailed wraps a handler failure as the protocol's catch-all
// internal error. The underlying err is kept on the error chain for
// server-side logging (errors.Unwrap, logging.Logger.WithError) but never
// reaches the wire: only a sanitized cause, with tokens/secrets/credentials
// masked, is exposed to the caller via Details["cause"].
func RequestFailed(message string, err error) *ServiceError {
	svcErr := Wrap(ErrCodeRequestFailed, message, http.StatusInternalServerError, err)
	if err != nil {
		svcErr.WithDetails("cause", security.SanitizeError(err))
	}
	return svcErr
}

// Internal wraps an unexpected failure. Like RequestFailed, the raw err
// stays server-side; callers only see a sanitized cause.
func Internal(message string, err error) *ServiceError {
	svcErr := Wrap(ErrCodeInternal, message, http.StatusInternalServerError, err)
	if err != nil {
		svcErr.WithDetails("cause", security.SanitizeError(err))
	}
	return svcErr
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Code returns the error's code, or ErrCodeInternal if it is not a ServiceError.
func Code(err error) ErrorCode {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Code
	}
	return ErrCodeInternal
}
