package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "type and message only",
			err:      &AppError{Type: ErrTypeValidation, Message: "bad input"},
			expected: "validation: bad input",
		},
		{
			name:     "with code",
			err:      (&AppError{Type: ErrTypeAuth, Message: "denied"}).WithCode("401"),
			expected: "authentication: denied: code=401",
		},
		{
			name:     "with cause",
			err:      RefreshFailureError("refresh grant rejected", errors.New("invalid_grant")),
			expected: "refresh_failure: refresh grant rejected: cause=invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
		want    bool
	}{
		{"nil error", nil, ErrTypeInternal, false},
		{"plain error", errors.New("boom"), ErrTypeInternal, false},
		{"matching type", MissingVerifierError(), ErrTypeMissingVerifier, true},
		{"non-matching type", StateMismatchError(), ErrTypeMissingVerifier, false},
		{"wrapped AppError", fmt.Errorf("callback: %w", RevokedTokenReuseError()), ErrTypeRevokedTokenReuse, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.errType); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetType(t *testing.T) {
	if got := GetType(InvalidIDTokenError("no sub")); got != ErrTypeInvalidIDToken {
		t.Errorf("expected %s, got %s", ErrTypeInvalidIDToken, got)
	}
	if got := GetType(errors.New("boom")); got != ErrTypeInternal {
		t.Errorf("expected %s, got %s", ErrTypeInternal, got)
	}
	if got := GetType(nil); got != ErrorType("") {
		t.Errorf("expected empty type, got %s", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := CacheUnavailableError("redis down", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}
