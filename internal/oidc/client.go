// Package oidc implements the client side of the OpenID Connect provider
// integration: endpoint discovery, the token grants used by the login and
// refresh paths, and the userinfo, introspection, and revocation calls.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/callezenwaka/authenticate/internal/circuitbreaker"
	"github.com/callezenwaka/authenticate/internal/common/errors"
	commonhttp "github.com/callezenwaka/authenticate/internal/common/http"
	"github.com/callezenwaka/authenticate/internal/common/logging"
)

const requestTimeout = 10 * time.Second

// Config holds the relying-party registration with the identity provider
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	// Audience is forwarded to the authorization endpoint when set, for
	// providers that mint audience-restricted access tokens
	Audience string
}

// Validate checks the registration is complete enough to run the flow
func (c Config) Validate() error {
	if c.Issuer == "" {
		return errors.ConfigError("OIDC issuer is required")
	}
	if c.ClientID == "" {
		return errors.ConfigError("OIDC client ID is required")
	}
	if c.RedirectURL == "" {
		return errors.ConfigError("OIDC redirect URL is required")
	}
	return nil
}

// UserInfo is the identity profile returned by the userinfo endpoint
type UserInfo struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Picture           string `json:"picture,omitempty"`
}

// Introspection is the provider's answer about a token's state
type Introspection struct {
	Active    bool   `json:"active"`
	Sub       string `json:"sub,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// providerError is the OAuth error body returned by token endpoints
type providerError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e providerError) String() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Client talks to a single identity provider. The discovery document is
// fetched lazily and cached after the first success; token grants run
// behind a circuit breaker so a struggling provider does not absorb every
// request's latency budget.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger

	mu       sync.Mutex
	metadata *ProviderMetadata
}

// NewClient creates a provider client from the given registration
func NewClient(config Config, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Client{
		config:     config,
		httpClient: commonhttp.NewHTTPClientWithTimeout(requestTimeout),
		breaker:    circuitbreaker.NewGoBreaker("oidc-token-endpoint", circuitbreaker.TokenEndpointConfig, logger),
		logger:     logger,
	}
}

// Config returns the relying-party registration the client was built with
func (c *Client) Config() Config {
	return c.config
}

// Metadata returns the provider's discovery document, fetching it on first
// use. Failed fetches are not cached; the next call retries.
func (c *Client) Metadata(ctx context.Context) (*ProviderMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metadata != nil {
		return c.metadata, nil
	}

	metadata, err := Discover(ctx, c.httpClient, c.config.Issuer)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Provider metadata discovered",
		logging.Field{Key: "issuer", Value: metadata.Issuer},
		logging.Field{Key: "token_endpoint", Value: metadata.TokenEndpoint})

	c.metadata = metadata
	return metadata, nil
}

// Exchange redeems an authorization code at the token endpoint, proving
// possession of the PKCE verifier that opened the flow
func (c *Client) Exchange(ctx context.Context, code, verifier string) (*TokenBundle, error) {
	if code == "" {
		return nil, errors.ValidationError("authorization code is empty")
	}
	if verifier == "" {
		return nil, errors.MissingVerifierError()
	}

	metadata, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
		"client_id":     {c.config.ClientID},
		"code_verifier": {verifier},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	bundle, err := c.requestToken(ctx, metadata.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Authorization code exchanged")
	return bundle, nil
}

// Refresh redeems a refresh token for a replacement bundle. A rejection by
// the provider is reported as a refresh failure so callers can tear the
// session down rather than retry.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	if refreshToken == "" {
		return nil, errors.RefreshFailureError("no refresh token available", nil)
	}

	metadata, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	bundle, err := c.requestToken(ctx, metadata.TokenEndpoint, form)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeAuth) || errors.IsType(err, errors.ErrTypeValidation) {
			return nil, errors.RefreshFailureError("provider rejected refresh token", err)
		}
		return nil, err
	}

	c.logger.Info("Token bundle refreshed")
	return bundle, nil
}

// requestToken posts a grant to the token endpoint inside the circuit
// breaker and decodes the resulting bundle
func (c *Client) requestToken(ctx context.Context, endpoint string, form url.Values) (*TokenBundle, error) {
	var bundle *TokenBundle

	err := c.breaker.Execute(ctx, func() error {
		resp, err := c.postForm(ctx, endpoint, form)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.ConnectionError("failed to read token response", err)
		}

		if resp.StatusCode != http.StatusOK {
			return tokenEndpointError(resp.StatusCode, body)
		}

		decoded := &TokenBundle{}
		if err := json.Unmarshal(body, decoded); err != nil {
			return errors.InternalError("failed to decode token response", err)
		}
		decoded.ObtainedAt = time.Now()

		if err := decoded.Validate(); err != nil {
			return err
		}

		bundle = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

// tokenEndpointError maps a non-200 token response onto the error taxonomy.
// 4xx means the grant itself was rejected; everything else is provider
// trouble and counts against the breaker.
func tokenEndpointError(status int, body []byte) error {
	var perr providerError
	_ = json.Unmarshal(body, &perr)

	detail := perr.String()
	if detail == "" {
		detail = fmt.Sprintf("status %d", status)
	}

	if status >= 400 && status < 500 {
		return errors.AuthError(fmt.Sprintf("token endpoint rejected grant: %s", detail)).
			WithCode(fmt.Sprintf("%d", status))
	}
	return errors.ConnectionError(fmt.Sprintf("token endpoint failed: %s", detail), nil)
}

// UserInfo fetches the identity profile for an access token
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, errors.AuthError("no access token for userinfo request")
	}

	metadata, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if metadata.UserinfoEndpoint == "" {
		return nil, errors.ConfigError("provider does not advertise a userinfo endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadata.UserinfoEndpoint, nil)
	if err != nil {
		return nil, errors.InternalError("failed to build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("userinfo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.AuthError("access token rejected by userinfo endpoint")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.ConnectionError(
			fmt.Sprintf("userinfo endpoint returned status %d", resp.StatusCode), nil)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.InternalError("failed to decode userinfo response", err)
	}
	if info.Sub == "" {
		return nil, errors.InvalidIDTokenError("userinfo response missing subject identifier")
	}

	return &info, nil
}

// Introspect asks the provider whether a token is still active
func (c *Client) Introspect(ctx context.Context, token string) (*Introspection, error) {
	endpoint, err := c.endpointOr(ctx, func(m *ProviderMetadata) string { return m.IntrospectionEndpoint }, "/introspect")
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"token":     {token},
		"client_id": {c.config.ClientID},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	resp, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ConnectionError(
			fmt.Sprintf("introspection endpoint returned status %d", resp.StatusCode), nil)
	}

	var result Introspection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.InternalError("failed to decode introspection response", err)
	}

	return &result, nil
}

// Revoke tells the provider to invalidate a token. Revocation is advisory:
// the local blacklist is the authority, so failures are reported but the
// caller treats them as best-effort.
func (c *Client) Revoke(ctx context.Context, token string) error {
	endpoint, err := c.endpointOr(ctx, func(m *ProviderMetadata) string { return m.RevocationEndpoint }, "/revoke")
	if err != nil {
		return err
	}

	form := url.Values{
		"token":     {token},
		"client_id": {c.config.ClientID},
	}
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	resp, err := c.postForm(ctx, endpoint, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// RFC 7009 answers 200 regardless of whether the token existed
	if resp.StatusCode != http.StatusOK {
		return errors.ConnectionError(
			fmt.Sprintf("revocation endpoint returned status %d", resp.StatusCode), nil)
	}

	return nil
}

// endpointOr resolves an optional endpoint from the discovery document,
// falling back to the conventional issuer-relative path
func (c *Client) endpointOr(ctx context.Context, pick func(*ProviderMetadata) string, fallbackPath string) (string, error) {
	metadata, err := c.Metadata(ctx)
	if err != nil {
		return "", err
	}
	if endpoint := pick(metadata); endpoint != "" {
		return endpoint, nil
	}
	return strings.TrimRight(c.config.Issuer, "/") + fallbackPath, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.InternalError("failed to build provider request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("provider request failed", err)
	}
	return resp, nil
}
