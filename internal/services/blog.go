package services

import (
	"context"
	"net/http"
	"time"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/logging"
)

// Blog is a post from the downstream API
type Blog struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// BlogService reads blog posts from the downstream API with a read-through
// cache in front
type BlogService struct {
	api    *apiClient
	store  *cache.Store
	keys   cache.EntityKeys
	logger logging.Logger
}

// NewBlogService creates a blog client bound to an access token
func NewBlogService(baseURL, accessToken string, store *cache.Store, logger logging.Logger) *BlogService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &BlogService{
		api:    newAPIClient(baseURL, accessToken, logger),
		store:  store,
		keys:   cache.NewEntityKeys("backend", "blog"),
		logger: logger,
	}
}

// UpdateAccessToken rebinds the service to a refreshed access token
func (s *BlogService) UpdateAccessToken(token string) {
	s.api.UpdateAccessToken(token)
}

// ListBlogs returns all posts, serving from cache while fresh
func (s *BlogService) ListBlogs(ctx context.Context) ([]Blog, error) {
	key := s.keys.Collection("")

	var blogs []Blog
	if s.store.GetJSON(ctx, key, &blogs) {
		s.logger.Debug("Blog list served from cache")
		return blogs, nil
	}

	if err := s.api.getJSON(ctx, "/blogs", &blogs); err != nil {
		return nil, err
	}

	s.store.Set(ctx, key, blogs, cacheTTL)
	return blogs, nil
}

// GetBlog returns one post by ID, serving from cache while fresh
func (s *BlogService) GetBlog(ctx context.Context, id string) (*Blog, error) {
	key := s.keys.Single(id)

	blog := &Blog{}
	if s.store.GetJSON(ctx, key, blog) {
		s.logger.Debug("Blog served from cache", logging.Field{Key: "blog_id", Value: id})
		return blog, nil
	}

	if err := s.api.getJSON(ctx, "/blogs/"+id, blog); err != nil {
		return nil, err
	}

	s.store.Set(ctx, key, blog, cacheTTL)
	return blog, nil
}

// CreateBlog submits a new post and drops the now-stale list cache
func (s *BlogService) CreateBlog(ctx context.Context, blog *Blog) (*Blog, error) {
	created := &Blog{}
	if err := s.api.doJSON(ctx, http.MethodPost, "/blogs", blog, created); err != nil {
		return nil, err
	}

	s.store.Delete(ctx, s.keys.Collection(""))
	return created, nil
}

// UpdateBlog replaces a post and drops its cached copies
func (s *BlogService) UpdateBlog(ctx context.Context, id string, blog *Blog) (*Blog, error) {
	updated := &Blog{}
	if err := s.api.doJSON(ctx, http.MethodPut, "/blogs/"+id, blog, updated); err != nil {
		return nil, err
	}

	s.store.Delete(ctx, s.keys.Single(id))
	s.store.Delete(ctx, s.keys.Collection(""))
	return updated, nil
}

// DeleteBlog removes a post and drops its cached copies
func (s *BlogService) DeleteBlog(ctx context.Context, id string) error {
	if err := s.api.doJSON(ctx, http.MethodDelete, "/blogs/"+id, nil, nil); err != nil {
		return err
	}

	s.store.Delete(ctx, s.keys.Single(id))
	s.store.Delete(ctx, s.keys.Collection(""))
	return nil
}
