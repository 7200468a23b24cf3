// Package services provides the clients for the downstream REST API. Each
// service authenticates with the caller's access token and reads through
// the shared cache to keep hot responses off the network.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/callezenwaka/authenticate/internal/circuitbreaker"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	commonhttp "github.com/callezenwaka/authenticate/internal/common/http"
	"github.com/callezenwaka/authenticate/internal/common/logging"
)

const (
	// cacheTTL bounds how stale a cached API response may get
	cacheTTL = 300 * time.Second

	apiTimeout = 10 * time.Second
)

// apiClient is the shared transport for the downstream API. The access
// token is swappable so a refreshed bundle rebinds every service built on
// the same client without reconstructing them.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger

	mu          sync.RWMutex
	accessToken string
}

func newAPIClient(baseURL, accessToken string, logger logging.Logger) *apiClient {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &apiClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  commonhttp.NewHTTPClientWithTimeout(apiTimeout),
		breaker:     circuitbreaker.NewGoBreaker("downstream-api", circuitbreaker.APIConfig, logger),
		logger:      logger,
		accessToken: accessToken,
	}
}

// UpdateAccessToken swaps the bearer token used for subsequent requests
func (c *apiClient) UpdateAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *apiClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// getJSON fetches a path and decodes the response into dest
func (c *apiClient) getJSON(ctx context.Context, path string, dest interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, dest)
}

// doJSON sends a request with an optional JSON body and decodes the
// response into dest when given. Auth and not-found outcomes map onto the
// error taxonomy; transport failures count against the breaker.
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, dest interface{}) error {
	return c.breaker.Execute(ctx, func() error {
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return errors.InternalError("failed to encode API request body", err)
			}
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return errors.InternalError("failed to build API request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token())
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.ConnectionError("API request failed", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return errors.AuthError("API rejected access token").
				WithContext("path", path)
		case resp.StatusCode == http.StatusNotFound:
			return errors.NotFoundError("API resource " + path)
		case resp.StatusCode >= 300:
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errors.ConnectionError(
				fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(raw)), nil)
		}

		if dest == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errors.InternalError("failed to decode API response", err)
		}
		return nil
	})
}
