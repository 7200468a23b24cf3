// Package vault stores token bundles and the refresh-token blacklist in
// the shared cache. Bundles are encrypted at rest; blacklist entries hold
// only a digest of the refresh token, never the token itself.
package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/crypto"
	"github.com/callezenwaka/authenticate/internal/oidc"
)

// blacklistTTL outlives any refresh token the provider issues, so a
// revoked token stays revoked for its entire natural lifetime
const blacklistTTL = 30 * 24 * time.Hour

// TokenVault is the authority for which token bundle belongs to which
// user and which refresh tokens have been revoked
type TokenVault struct {
	store     *cache.Store
	encryptor *crypto.TokenEncryptor
	logger    logging.Logger
}

// NewTokenVault creates a vault over the given cache. The encryptor is
// optional; without one, bundles are stored as plain JSON.
func NewTokenVault(store *cache.Store, encryptor *crypto.TokenEncryptor, logger logging.Logger) *TokenVault {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TokenVault{
		store:     store,
		encryptor: encryptor,
		logger:    logger,
	}
}

// StoreToken persists a user's bundle with a TTL matching the access
// token lifetime, so the cache entry dies with the token it holds
func (v *TokenVault) StoreToken(ctx context.Context, userID string, bundle *oidc.TokenBundle) error {
	if userID == "" {
		return errors.ValidationError("user ID is required to store a token bundle")
	}
	if err := bundle.Validate(); err != nil {
		return err
	}

	payload, err := v.encode(bundle)
	if err != nil {
		return err
	}

	v.store.Set(ctx, cache.TokenKey(userID), payload, bundle.Lifetime())

	v.logger.Debug("Token bundle stored",
		logging.Field{Key: "user_id", Value: userID},
		logging.Field{Key: "ttl", Value: bundle.Lifetime().String()})
	return nil
}

// GetToken retrieves a user's bundle. The second return is false on miss
// or when the stored payload fails decryption or validation.
func (v *TokenVault) GetToken(ctx context.Context, userID string) (*oidc.TokenBundle, bool) {
	payload, ok := v.store.Get(ctx, cache.TokenKey(userID))
	if !ok {
		return nil, false
	}

	bundle, err := v.decode(payload)
	if err != nil {
		v.logger.Warn("Stored token bundle is unreadable, discarding",
			logging.Field{Key: "user_id", Value: userID},
			logging.Field{Key: "error", Value: err.Error()})
		v.store.Delete(ctx, cache.TokenKey(userID))
		return nil, false
	}

	return bundle, true
}

// InvalidateToken removes a user's bundle
func (v *TokenVault) InvalidateToken(ctx context.Context, userID string) {
	v.store.Delete(ctx, cache.TokenKey(userID))
	v.logger.Debug("Token bundle invalidated", logging.Field{Key: "user_id", Value: userID})
}

// BlacklistToken marks a refresh token as revoked. Takes effect
// immediately for callers that check before use.
func (v *TokenVault) BlacklistToken(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	v.store.Set(ctx, cache.BlacklistKey(hashToken(refreshToken)), "revoked", blacklistTTL)
	v.logger.Info("Refresh token blacklisted")
}

// IsBlacklisted reports whether a refresh token has been revoked. The
// check fails open: if the cache cannot answer, the token is treated as
// valid and the identity provider remains the backstop. Availability is
// deliberately favored over strict revocation here.
func (v *TokenVault) IsBlacklisted(ctx context.Context, refreshToken string) bool {
	if refreshToken == "" {
		return false
	}
	_, found := v.store.Get(ctx, cache.BlacklistKey(hashToken(refreshToken)))
	return found
}

func (v *TokenVault) encode(bundle *oidc.TokenBundle) (string, error) {
	if v.encryptor != nil {
		return v.encryptor.EncryptJSON(bundle)
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", errors.InternalError("failed to encode token bundle", err)
	}
	return string(data), nil
}

func (v *TokenVault) decode(payload string) (*oidc.TokenBundle, error) {
	bundle := &oidc.TokenBundle{}

	if v.encryptor != nil {
		if err := v.encryptor.DecryptJSON(payload, bundle); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal([]byte(payload), bundle); err != nil {
		return nil, errors.InternalError("failed to decode token bundle", err)
	}

	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	return bundle, nil
}

// hashToken digests a refresh token for use as a blacklist key
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
