// Package middleware provides the HTTP middleware chain: request logging,
// session resolution, and authentication enforcement.
package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/provider"
	"github.com/callezenwaka/authenticate/internal/session"
)

type contextKey string

const scopeKey contextKey = "request_scope"

// FromContext returns the request scope attached by SessionMiddleware
func FromContext(ctx context.Context) (*provider.RequestScope, bool) {
	scope, ok := ctx.Value(scopeKey).(*provider.RequestScope)
	return scope, ok
}

// SessionMiddleware resolves the request's session, creating one for new
// browsers, and attaches the provider scope to the request context. Every
// route behind it can reach its scope via FromContext.
func SessionMiddleware(p *provider.Provider, opts session.CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := p.Sessions().Ensure(r.Context(), w, r, opts)
			if err != nil {
				logging.Error("Failed to establish session", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			scope := p.ForSession(sess)
			ctx := context.WithValue(r.Context(), scopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth gates a route on a live, refreshable login. Anonymous
// requests are sent to the login flow with the original URL preserved;
// sessions whose refresh token is dead are logged out and sent there too.
func RequireAuth(opts session.CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, ok := FromContext(r.Context())
			if !ok || !scope.Session().IsAuthenticated() {
				redirectToLogin(w, r)
				return
			}

			// Refresh up front so handlers never run with a token about to
			// expire mid-request.
			if _, err := scope.EnsureValidToken(r.Context()); err != nil {
				if errors.IsType(err, errors.ErrTypeRevokedTokenReuse) ||
					errors.IsType(err, errors.ErrTypeRefreshFailure) {
					session.ClearCookie(w, opts)
					redirectToLogin(w, r)
					return
				}

				logging.Error("Token validation failed", err,
					logging.Field{Key: "path", Value: r.URL.Path})
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Path
	if r.URL.RawQuery != "" {
		returnTo += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, "/login?returnTo="+url.QueryEscape(returnTo), http.StatusFound)
}
