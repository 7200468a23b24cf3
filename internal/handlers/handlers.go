// Package handlers contains the HTTP routes: the login flow legs, the
// authenticated pages backed by the downstream API, and health.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/middleware"
	"github.com/callezenwaka/authenticate/internal/provider"
	"github.com/callezenwaka/authenticate/internal/services"
	"github.com/callezenwaka/authenticate/internal/session"
)

// Handler wires the routes to the provider
type Handler struct {
	provider   *provider.Provider
	store      *cache.Store
	cookieOpts session.CookieOptions
	logger     logging.Logger
}

// New creates the route handler set
func New(p *provider.Provider, store *cache.Store, cookieOpts session.CookieOptions, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handler{
		provider:   p,
		store:      store,
		cookieOpts: cookieOpts,
		logger:     logger,
	}
}

// Register mounts all routes on the router. The session middleware must
// already be installed on the router; protected routes add RequireAuth.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/", h.Home).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.RequireAuth(h.cookieOpts))
	protected.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	protected.HandleFunc("/users", h.Users).Methods(http.MethodGet)
	protected.HandleFunc("/blogs", h.Blogs).Methods(http.MethodGet)
	protected.HandleFunc("/blogs", h.CreateBlog).Methods(http.MethodPost)
	protected.HandleFunc("/blogs/{id}", h.Blog).Methods(http.MethodGet)
	protected.HandleFunc("/blogs/{id}", h.UpdateBlog).Methods(http.MethodPut)
	protected.HandleFunc("/blogs/{id}", h.DeleteBlog).Methods(http.MethodDelete)
}

// Login starts the authorization code flow and redirects to the provider
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, errors.InternalError("no session on request", nil))
		return
	}

	returnTo := sanitizeReturnTo(r.URL.Query().Get("returnTo"))

	checkpoint, authURL, err := h.provider.Flow().Begin(r.Context(), returnTo)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess := scope.Session()
	sess.Login = checkpoint
	if err := h.provider.Sessions().Save(r.Context(), sess); err != nil {
		h.writeError(w, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the authorization code flow. The login checkpoint is
// consumed before the exchange, so a replayed callback finds nothing.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.FromContext(r.Context())
	if !ok {
		h.writeError(w, errors.InternalError("no session on request", nil))
		return
	}
	sess := scope.Session()
	ctx := r.Context()

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		h.logger.Warn("Provider returned an error on callback",
			logging.Field{Key: "error", Value: errCode},
			logging.Field{Key: "description", Value: query.Get("error_description")})
		h.writeError(w, errors.AuthError("login was denied by the identity provider"))
		return
	}

	checkpoint := sess.Login
	sess.Login = nil
	if err := h.provider.Sessions().Save(ctx, sess); err != nil {
		h.writeError(w, err)
		return
	}

	bundle, err := h.provider.Flow().Complete(ctx, checkpoint, query.Get("code"), query.Get("state"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.provider.CompleteLogin(ctx, sess, bundle); err != nil {
		h.writeError(w, err)
		return
	}

	returnTo := "/"
	if checkpoint.ReturnTo != "" {
		returnTo = checkpoint.ReturnTo
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// Logout revokes the session's credentials and clears the cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if scope, ok := middleware.FromContext(r.Context()); ok {
		scope.Logout(r.Context())
	}

	session.ClearCookie(w, h.cookieOpts)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Home reports the session's login state
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{"authenticated": false}

	if scope, ok := middleware.FromContext(r.Context()); ok && scope.Session().IsAuthenticated() {
		response["authenticated"] = true
		response["user"] = scope.Session().User
	}

	h.writeJSON(w, http.StatusOK, response)
}

// Profile returns the logged-in user's account record from the API
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	users, err := scope.UserService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	user, err := users.GetProfile(r.Context(), scope.Session().UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

// Blogs lists posts from the API
func (h *Handler) Blogs(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	blogs, err := scope.BlogService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	list, err := blogs.ListBlogs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

// Users lists accounts from the API
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	users, err := scope.UserService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	list, err := users.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

// CreateBlog submits a new post to the API
func (h *Handler) CreateBlog(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	blogs, err := scope.BlogService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	blog := &services.Blog{}
	if err := json.NewDecoder(r.Body).Decode(blog); err != nil {
		h.writeError(w, errors.ValidationError("request body is not a valid blog post"))
		return
	}

	created, err := blogs.CreateBlog(r.Context(), blog)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// UpdateBlog replaces one post through the API
func (h *Handler) UpdateBlog(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	blogs, err := scope.BlogService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	blog := &services.Blog{}
	if err := json.NewDecoder(r.Body).Decode(blog); err != nil {
		h.writeError(w, errors.ValidationError("request body is not a valid blog post"))
		return
	}

	updated, err := blogs.UpdateBlog(r.Context(), mux.Vars(r)["id"], blog)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// DeleteBlog removes one post through the API
func (h *Handler) DeleteBlog(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	blogs, err := scope.BlogService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := blogs.DeleteBlog(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Blog returns one post from the API
func (h *Handler) Blog(w http.ResponseWriter, r *http.Request) {
	scope, _ := middleware.FromContext(r.Context())

	blogs, err := scope.BlogService(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	blog, err := blogs.GetBlog(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, blog)
}

// Health reports process liveness and whether the cache backend is
// degraded. Degraded is still 200: the service keeps working on the
// fallback.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "ok"
	if err := h.store.Health(r.Context()); err != nil {
		cacheStatus = "degraded"
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  cacheStatus,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeStateMismatch, errors.ErrTypeMissingVerifier:
		status = http.StatusBadRequest
	case errors.ErrTypeAuth, errors.ErrTypeRefreshFailure, errors.ErrTypeRevokedTokenReuse:
		status = http.StatusUnauthorized
	case errors.ErrTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrTypeConnection:
		status = http.StatusBadGateway
	}

	if status >= 500 {
		h.logger.Error("Request failed", err)
	} else {
		h.logger.Warn("Request rejected", logging.Field{Key: "error", Value: err.Error()})
	}

	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// sanitizeReturnTo keeps return targets on this site; anything absolute
// or scheme-relative is an open-redirect vector and collapses to "/"
func sanitizeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}
