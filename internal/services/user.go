package services

import (
	"context"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/logging"
)

// User is an account record from the downstream API
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// UserService reads user records from the downstream API with a
// read-through cache in front
type UserService struct {
	api    *apiClient
	store  *cache.Store
	keys   cache.EntityKeys
	logger logging.Logger
}

// NewUserService creates a user client bound to an access token
func NewUserService(baseURL, accessToken string, store *cache.Store, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &UserService{
		api:    newAPIClient(baseURL, accessToken, logger),
		store:  store,
		keys:   cache.NewEntityKeys("backend", "user"),
		logger: logger,
	}
}

// UpdateAccessToken rebinds the service to a refreshed access token
func (s *UserService) UpdateAccessToken(token string) {
	s.api.UpdateAccessToken(token)
}

// GetProfile returns the calling user's own account record. Profiles are
// cached per user so one user's refresh never serves another's data.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*User, error) {
	key := s.keys.Sub(userID, "profile")

	user := &User{}
	if s.store.GetJSON(ctx, key, user) {
		s.logger.Debug("Profile served from cache", logging.Field{Key: "user_id", Value: userID})
		return user, nil
	}

	if err := s.api.getJSON(ctx, "/users/me", user); err != nil {
		return nil, err
	}

	s.store.Set(ctx, key, user, cacheTTL)
	return user, nil
}

// ListUsers returns all accounts, serving from cache while fresh
func (s *UserService) ListUsers(ctx context.Context) ([]User, error) {
	key := s.keys.Collection("")

	var users []User
	if s.store.GetJSON(ctx, key, &users) {
		s.logger.Debug("User list served from cache")
		return users, nil
	}

	if err := s.api.getJSON(ctx, "/users", &users); err != nil {
		return nil, err
	}

	s.store.Set(ctx, key, users, cacheTTL)
	return users, nil
}
