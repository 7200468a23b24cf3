// Package errors provides structured application errors with a closed set
// of error kinds so route-level code can match on outcomes instead of
// string-comparing generic errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConnection represents connection-related errors
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"

	// ErrTypeCacheUnavailable represents a degraded cache backend.
	// Never surfaced to end users; callers fall back and continue.
	ErrTypeCacheUnavailable ErrorType = "cache_unavailable"
	// ErrTypeMissingVerifier represents a callback without a stored PKCE verifier
	ErrTypeMissingVerifier ErrorType = "missing_verifier"
	// ErrTypeStateMismatch represents an OAuth state round-trip failure
	ErrTypeStateMismatch ErrorType = "state_mismatch"
	// ErrTypeInvalidIDToken represents an ID token without a usable subject
	ErrTypeInvalidIDToken ErrorType = "invalid_id_token"
	// ErrTypeRefreshFailure represents a rejected refresh grant
	ErrTypeRefreshFailure ErrorType = "refresh_failure"
	// ErrTypeRevokedTokenReuse represents a blacklisted refresh token being presented
	ErrTypeRevokedTokenReuse ErrorType = "revoked_token_reuse"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: msg,
		Cause:   cause,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// CacheUnavailableError creates a cache degradation error
func CacheUnavailableError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeCacheUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// MissingVerifierError creates an error for a callback with no stored PKCE verifier
func MissingVerifierError() *AppError {
	return &AppError{
		Type:    ErrTypeMissingVerifier,
		Message: "no code verifier stored for this session",
	}
}

// StateMismatchError creates an error for a failed OAuth state round trip
func StateMismatchError() *AppError {
	return &AppError{
		Type:    ErrTypeStateMismatch,
		Message: "callback state does not match stored state",
	}
}

// InvalidIDTokenError creates an error for an ID token missing required claims
func InvalidIDTokenError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeInvalidIDToken,
		Message: msg,
	}
}

// RefreshFailureError creates an error for a rejected refresh grant
func RefreshFailureError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeRefreshFailure,
		Message: msg,
		Cause:   cause,
	}
}

// RevokedTokenReuseError creates an error for a blacklisted refresh token
func RevokedTokenReuseError() *AppError {
	return &AppError{
		Type:    ErrTypeRevokedTokenReuse,
		Message: "refresh token has been revoked",
	}
}

// IsType checks if an error is of a specific type, unwrapping as needed
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ErrTypeInternal
	}

	return appErr.Type
}
