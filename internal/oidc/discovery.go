package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/callezenwaka/authenticate/internal/common/errors"
)

// ProviderMetadata is the subset of the OpenID Connect discovery document
// the application needs
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
}

// Validate checks the discovery document carries the endpoints required
// for the authorization code flow
func (m *ProviderMetadata) Validate() error {
	if m.Issuer == "" {
		return errors.ValidationError("discovery document missing issuer")
	}
	if m.AuthorizationEndpoint == "" {
		return errors.ValidationError("discovery document missing authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		return errors.ValidationError("discovery document missing token_endpoint")
	}
	return nil
}

// Discover fetches the provider's discovery document from the well-known
// location under the issuer URL
func Discover(ctx context.Context, client *http.Client, issuer string) (*ProviderMetadata, error) {
	if issuer == "" {
		return nil, errors.ConfigError("issuer URL is not configured")
	}

	url := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.InternalError("failed to build discovery request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.ConnectionError("failed to fetch discovery document", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ConnectionError(
			fmt.Sprintf("discovery endpoint returned status %d", resp.StatusCode), nil)
	}

	var metadata ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, errors.InternalError("failed to decode discovery document", err)
	}

	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	return &metadata, nil
}
