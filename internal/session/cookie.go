package session

import (
	"context"
	"net/http"
	"time"
)

// CookieName is the browser cookie carrying the opaque session ID
const CookieName = "session"

// CookieOptions controls the attributes of the session cookie
type CookieOptions struct {
	// Secure marks the cookie HTTPS-only; disable for local development
	Secure bool
}

// ReadCookie extracts the session ID from a request, if present
func ReadCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// WriteCookie sets the session cookie on a response. HttpOnly and
// SameSite=Lax keep the ID away from scripts and cross-site posts while
// still surviving the provider's redirect back to the callback.
func WriteCookie(w http.ResponseWriter, id string, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on a response
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Load resolves the request's session from its cookie
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, bool) {
	id, ok := ReadCookie(r)
	if !ok {
		return nil, false
	}
	return m.Get(ctx, id)
}

// Ensure resolves the request's session, creating one and setting the
// cookie when the request has none
func (m *Manager) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request, opts CookieOptions) (*Session, error) {
	if session, ok := m.Load(ctx, r); ok {
		return session, nil
	}

	session, err := m.Create(ctx)
	if err != nil {
		return nil, err
	}

	WriteCookie(w, session.ID, opts)
	return session, nil
}
