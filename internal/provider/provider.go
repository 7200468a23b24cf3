// Package provider ties the token lifecycle together. It hands each
// request a scope bound to its session; the scope guarantees a valid
// access token before any downstream call, refreshing lazily and tearing
// the session down when the refresh token is dead.
package provider

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/oidc"
	"github.com/callezenwaka/authenticate/internal/pkce"
	"github.com/callezenwaka/authenticate/internal/services"
	"github.com/callezenwaka/authenticate/internal/session"
	"github.com/callezenwaka/authenticate/internal/vault"
)

// Provider holds the application-scoped pieces of the token lifecycle
type Provider struct {
	oidcClient *oidc.Client
	flow       *pkce.Flow
	vault      *vault.TokenVault
	sessions   *session.Manager
	store      *cache.Store
	apiURL     string
	logger     logging.Logger

	// refreshGroup collapses concurrent refreshes for the same user into
	// one token endpoint call
	refreshGroup singleflight.Group
}

// New creates the provider from its application-scoped collaborators
func New(oidcClient *oidc.Client, flow *pkce.Flow, tokenVault *vault.TokenVault,
	sessions *session.Manager, store *cache.Store, apiURL string, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Provider{
		oidcClient: oidcClient,
		flow:       flow,
		vault:      tokenVault,
		sessions:   sessions,
		store:      store,
		apiURL:     apiURL,
		logger:     logger,
	}
}

// Flow returns the login flow
func (p *Provider) Flow() *pkce.Flow { return p.flow }

// Sessions returns the session manager
func (p *Provider) Sessions() *session.Manager { return p.sessions }

// Vault returns the token vault
func (p *Provider) Vault() *vault.TokenVault { return p.vault }

// OIDC returns the identity provider client
func (p *Provider) OIDC() *oidc.Client { return p.oidcClient }

// ForSession creates the request scope for one session
func (p *Provider) ForSession(sess *session.Session) *RequestScope {
	return &RequestScope{provider: p, session: sess}
}

// CompleteLogin finishes the callback leg: it binds the exchanged bundle
// to the user identified by the ID token, persists it, and promotes the
// session to authenticated
func (p *Provider) CompleteLogin(ctx context.Context, sess *session.Session, bundle *oidc.TokenBundle) error {
	userID, err := oidc.SubjectFromIDToken(bundle.IDToken)
	if err != nil {
		return err
	}

	info, err := p.oidcClient.UserInfo(ctx, bundle.AccessToken)
	if err != nil {
		// Identity is already proven by the ID token; a userinfo outage
		// should not fail the login.
		p.logger.Warn("Userinfo fetch failed during login",
			logging.Field{Key: "error", Value: err.Error()})
		info = &oidc.UserInfo{Sub: userID}
	}

	if err := p.vault.StoreToken(ctx, userID, bundle); err != nil {
		return err
	}

	sess.UserID = userID
	sess.User = info
	sess.Tokens = bundle
	sess.Login = nil
	if err := p.sessions.Save(ctx, sess); err != nil {
		return err
	}

	p.logger.Info("User logged in", logging.Field{Key: "user_id", Value: userID})
	return nil
}

// RequestScope is the per-request view of the provider, bound to one
// session. Downstream services are built lazily and rebound in place when
// a refresh replaces the access token.
type RequestScope struct {
	provider *Provider
	session  *session.Session

	mu          sync.Mutex
	blogService *services.BlogService
	userService *services.UserService
}

// Session returns the scope's session
func (rs *RequestScope) Session() *session.Session { return rs.session }

// EnsureValidToken returns a bundle guaranteed to be outside the refresh
// window, refreshing it first when needed. A dead refresh token destroys
// the session: the caller must treat the user as logged out.
func (rs *RequestScope) EnsureValidToken(ctx context.Context) (*oidc.TokenBundle, error) {
	p := rs.provider

	if !rs.session.IsAuthenticated() {
		return nil, errors.AuthError("session is not authenticated")
	}

	bundle := rs.session.Tokens
	if !bundle.NeedsRefresh() {
		return bundle, nil
	}

	result, err, _ := p.refreshGroup.Do(rs.session.UserID, func() (interface{}, error) {
		return p.refresh(ctx, rs.session.UserID, bundle.RefreshToken)
	})
	if err != nil {
		if errors.IsType(err, errors.ErrTypeRevokedTokenReuse) ||
			errors.IsType(err, errors.ErrTypeRefreshFailure) {
			rs.destroySession(ctx)
		}
		return nil, err
	}

	fresh := result.(*oidc.TokenBundle)
	if err := rs.adoptBundle(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

// refresh runs the actual token endpoint round trip. The blacklist is
// consulted first so a revoked token is rejected without touching the
// network.
func (p *Provider) refresh(ctx context.Context, userID, refreshToken string) (*oidc.TokenBundle, error) {
	if p.vault.IsBlacklisted(ctx, refreshToken) {
		p.logger.Warn("Revoked refresh token presented", logging.Field{Key: "user_id", Value: userID})
		return nil, errors.RevokedTokenReuseError()
	}

	bundle, err := p.oidcClient.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	if err := p.vault.StoreToken(ctx, userID, bundle); err != nil {
		return nil, err
	}

	p.logger.Info("Token bundle refreshed", logging.Field{Key: "user_id", Value: userID})
	return bundle, nil
}

// adoptBundle installs a refreshed bundle into the session and rebinds any
// services already built in this scope
func (rs *RequestScope) adoptBundle(ctx context.Context, bundle *oidc.TokenBundle) error {
	rs.session.Tokens = bundle
	if err := rs.provider.sessions.Save(ctx, rs.session); err != nil {
		return err
	}

	rs.mu.Lock()
	if rs.blogService != nil {
		rs.blogService.UpdateAccessToken(bundle.AccessToken)
	}
	if rs.userService != nil {
		rs.userService.UpdateAccessToken(bundle.AccessToken)
	}
	rs.mu.Unlock()

	return nil
}

func (rs *RequestScope) destroySession(ctx context.Context) {
	p := rs.provider
	p.vault.InvalidateToken(ctx, rs.session.UserID)
	p.sessions.Destroy(ctx, rs.session.ID)
	rs.session.UserID = ""
	rs.session.User = nil
	rs.session.Tokens = nil
}

// BlogService returns the blog client for this request, built on a token
// that is valid at the time of the call
func (rs *RequestScope) BlogService(ctx context.Context) (*services.BlogService, error) {
	bundle, err := rs.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.blogService == nil {
		rs.blogService = services.NewBlogService(rs.provider.apiURL, bundle.AccessToken, rs.provider.store, rs.provider.logger)
	}
	return rs.blogService, nil
}

// UserService returns the user client for this request, built on a token
// that is valid at the time of the call
func (rs *RequestScope) UserService(ctx context.Context) (*services.UserService, error) {
	bundle, err := rs.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.userService == nil {
		rs.userService = services.NewUserService(rs.provider.apiURL, bundle.AccessToken, rs.provider.store, rs.provider.logger)
	}
	return rs.userService, nil
}

// Logout revokes the session's credentials everywhere: the refresh token
// is blacklisted locally, the provider is told to revoke it, the vault
// entry dies, and the session is destroyed. Provider-side revocation is
// best-effort; the blacklist is the authority.
func (rs *RequestScope) Logout(ctx context.Context) {
	p := rs.provider

	if rs.session.Tokens != nil && rs.session.Tokens.RefreshToken != "" {
		refreshToken := rs.session.Tokens.RefreshToken

		p.vault.BlacklistToken(ctx, refreshToken)

		if err := p.oidcClient.Revoke(ctx, refreshToken); err != nil {
			p.logger.Warn("Provider-side revocation failed",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	userID := rs.session.UserID
	rs.destroySession(ctx)

	rs.mu.Lock()
	rs.blogService = nil
	rs.userService = nil
	rs.mu.Unlock()

	p.logger.Info("User logged out", logging.Field{Key: "user_id", Value: userID})
}
