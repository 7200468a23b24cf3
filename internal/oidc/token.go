package oidc

import (
	"time"

	"github.com/callezenwaka/authenticate/internal/common/errors"
)

// RefreshThreshold is the remaining lifetime below which a bundle should be
// refreshed before use.
const RefreshThreshold = 300 * time.Second

// DefaultLifetime is assumed when the provider omits expires_in
const DefaultLifetime = 3600 * time.Second

// TokenBundle is the token set issued by the identity provider for one
// authenticated session. Bundles are immutable once issued and replaced
// wholesale on refresh.
type TokenBundle struct {
	// AccessToken authenticates API calls on behalf of the user
	AccessToken string `json:"access_token"`
	// TokenType is how the access token is presented, normally "bearer"
	TokenType string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds, if known
	ExpiresIn int64 `json:"expires_in,omitempty"`
	// RefreshToken obtains replacement bundles without re-authentication
	RefreshToken string `json:"refresh_token,omitempty"`
	// IDToken carries the OpenID Connect identity claims
	IDToken string `json:"id_token,omitempty"`
	// Scope is the granted scope set
	Scope string `json:"scope,omitempty"`
	// ObtainedAt anchors ExpiresIn to wall-clock time; set when the bundle
	// is decoded from the token endpoint response
	ObtainedAt time.Time `json:"obtained_at,omitempty"`
}

// Validate checks the closed record at the deserialization boundary so
// cache contents are never trusted blindly.
func (t *TokenBundle) Validate() error {
	if t == nil {
		return errors.ValidationError("token bundle is nil")
	}
	if t.AccessToken == "" {
		return errors.ValidationError("token bundle missing access_token")
	}
	if t.TokenType == "" {
		return errors.ValidationError("token bundle missing token_type")
	}
	return nil
}

// ExpiresAt returns the absolute expiry time, or the zero time when the
// lifetime is unknown
func (t *TokenBundle) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 || t.ObtainedAt.IsZero() {
		return time.Time{}
	}
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// RemainingLifetime returns the time until expiry. The second return is
// false when the provider gave no lifetime, in which case the bundle is
// treated as non-expiring.
func (t *TokenBundle) RemainingLifetime() (time.Duration, bool) {
	expiresAt := t.ExpiresAt()
	if expiresAt.IsZero() {
		return 0, false
	}
	return time.Until(expiresAt), true
}

// NeedsRefresh reports whether the bundle is inside the refresh window and
// a refresh token is available to act on it
func (t *TokenBundle) NeedsRefresh() bool {
	if t.RefreshToken == "" {
		return false
	}
	remaining, known := t.RemainingLifetime()
	if !known {
		return false
	}
	return remaining < RefreshThreshold
}

// Lifetime returns the token lifetime for cache TTL purposes, falling back
// to DefaultLifetime when the provider omitted expires_in
func (t *TokenBundle) Lifetime() time.Duration {
	if t.ExpiresIn <= 0 {
		return DefaultLifetime
	}
	return time.Duration(t.ExpiresIn) * time.Second
}
