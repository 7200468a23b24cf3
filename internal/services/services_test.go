package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callezenwaka/authenticate/internal/cache"
	"github.com/callezenwaka/authenticate/internal/common/errors"
)

// fakeAPI serves the downstream REST API and counts hits per path
type fakeAPI struct {
	srv  *httptest.Server
	hits int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{}
	mux := http.NewServeMux()

	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer valid-token"
	}

	mux.HandleFunc("/blogs", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.hits, 1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if r.Method == http.MethodPost {
			submitted := Blog{}
			if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			submitted.ID = "3"
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(submitted)
			return
		}

		json.NewEncoder(w).Encode([]Blog{
			{ID: "1", Title: "First post"},
			{ID: "2", Title: "Second post"},
		})
	})

	mux.HandleFunc("/blogs/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.hits, 1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodPut:
			submitted := Blog{}
			if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			submitted.ID = "1"
			json.NewEncoder(w).Encode(submitted)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(Blog{ID: "1", Title: "First post"})
		}
	})

	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.hits, 1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]User{
			{ID: "user-1", Email: "user@example.com"},
			{ID: "user-2", Email: "other@example.com"},
		})
	})

	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&api.hits, 1)
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(User{ID: "user-1", Email: "user@example.com"})
	})

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	srv := miniredis.RunT(t)
	store := cache.NewStore(&cache.Config{Address: srv.Addr()}, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBlogService_ListBlogs(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)

	blogs, err := svc.ListBlogs(context.Background())
	require.NoError(t, err)
	require.Len(t, blogs, 2)
	assert.Equal(t, "First post", blogs[0].Title)
}

func TestBlogService_ListServedFromCache(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	_, err := svc.ListBlogs(ctx)
	require.NoError(t, err)
	_, err = svc.ListBlogs(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&api.hits), "second read must hit the cache")
}

func TestBlogService_GetBlog(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)

	blog, err := svc.GetBlog(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "First post", blog.Title)

	_, err = svc.GetBlog(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestBlogService_RejectedToken(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "expired-token", store, nil)

	_, err := svc.ListBlogs(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
}

func TestBlogService_UpdateAccessToken(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "expired-token", store, nil)
	ctx := context.Background()

	_, err := svc.ListBlogs(ctx)
	require.Error(t, err)

	svc.UpdateAccessToken("valid-token")

	blogs, err := svc.ListBlogs(ctx)
	require.NoError(t, err)
	assert.Len(t, blogs, 2)
}

func TestBlogService_CreateInvalidatesListCache(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	_, err := svc.ListBlogs(ctx)
	require.NoError(t, err)

	created, err := svc.CreateBlog(ctx, &Blog{Title: "Third post"})
	require.NoError(t, err)
	assert.Equal(t, "3", created.ID)
	assert.Equal(t, "Third post", created.Title)

	// The list cache was dropped, so this read goes back to the API.
	_, err = svc.ListBlogs(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&api.hits))
}

func TestBlogService_UpdateInvalidatesCachedCopy(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	_, err := svc.GetBlog(ctx, "1")
	require.NoError(t, err)

	updated, err := svc.UpdateBlog(ctx, "1", &Blog{Title: "Edited post"})
	require.NoError(t, err)
	assert.Equal(t, "Edited post", updated.Title)

	_, err = svc.GetBlog(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&api.hits))
}

func TestBlogService_DeleteBlog(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewBlogService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	_, err := svc.GetBlog(ctx, "1")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBlog(ctx, "1"))

	// The single-entity cache entry must not survive the delete.
	_, err = svc.GetBlog(ctx, "1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&api.hits))
}

func TestUserService_GetProfile(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewUserService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	user, err := svc.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)

	_, err = svc.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.hits))
}

func TestUserService_ProfileCacheIsPerUser(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewUserService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	_, err := svc.GetProfile(ctx, "user-1")
	require.NoError(t, err)

	// A different user must not be answered from user-1's cache entry.
	_, err = svc.GetProfile(ctx, "user-2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&api.hits))
}

func TestUserService_ListUsers(t *testing.T) {
	api := newFakeAPI(t)
	store := newTestStore(t)
	svc := NewUserService(api.srv.URL, "valid-token", store, nil)
	ctx := context.Background()

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "user-1", users[0].ID)

	_, err = svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&api.hits))
}
