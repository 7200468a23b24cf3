// Package pkce implements the Authorization Code flow with Proof Key for
// Code Exchange (RFC 7636, S256 method). A login begins with a checkpoint
// holding the code verifier and state nonce; the callback proves the state
// round trip and redeems the code with the verifier.
package pkce

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"

	"github.com/callezenwaka/authenticate/internal/common/errors"
	"github.com/callezenwaka/authenticate/internal/common/logging"
	"github.com/callezenwaka/authenticate/internal/oidc"
)

const (
	// verifierBytes yields a 43-character base64url verifier, the RFC 7636
	// minimum length
	verifierBytes = 32
	stateBytes    = 16

	challengeMethod = "S256"
)

// Checkpoint is the per-login state persisted between the redirect to the
// provider and the callback. It is single-use: the session layer deletes
// it on the first callback attempt, pass or fail.
type Checkpoint struct {
	Verifier string `json:"verifier"`
	State    string `json:"state"`
	ReturnTo string `json:"return_to,omitempty"`
}

// GenerateVerifier creates a high-entropy code verifier
func GenerateVerifier() (string, error) {
	return randomToken(verifierBytes)
}

// GenerateState creates the CSRF nonce for the authorization round trip
func GenerateState() (string, error) {
	return randomToken(stateBytes)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalError("failed to generate random token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Challenge derives the S256 code challenge from a verifier
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Flow drives logins against one identity provider
type Flow struct {
	client *oidc.Client
	logger logging.Logger
}

// NewFlow creates a login flow bound to the given provider client
func NewFlow(client *oidc.Client, logger logging.Logger) *Flow {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Flow{client: client, logger: logger}
}

// Begin starts a login: it mints a fresh checkpoint and the authorization
// URL to redirect the user to. returnTo is kept with the checkpoint so the
// callback can send the user back where they started.
func (f *Flow) Begin(ctx context.Context, returnTo string) (*Checkpoint, string, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, "", err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, "", err
	}

	checkpoint := &Checkpoint{
		Verifier: verifier,
		State:    state,
		ReturnTo: returnTo,
	}

	authURL, err := f.buildAuthorizationURL(ctx, checkpoint)
	if err != nil {
		return nil, "", err
	}

	f.logger.Debug("Login flow started", logging.Field{Key: "state", Value: state})
	return checkpoint, authURL, nil
}

func (f *Flow) buildAuthorizationURL(ctx context.Context, checkpoint *Checkpoint) (string, error) {
	metadata, err := f.client.Metadata(ctx)
	if err != nil {
		return "", err
	}

	endpoint, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return "", errors.InternalError("provider authorization endpoint is not a valid URL", err)
	}

	config := f.client.Config()

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {config.ClientID},
		"redirect_uri":          {config.RedirectURL},
		"scope":                 {config.Scope},
		"state":                 {checkpoint.State},
		"code_challenge":        {Challenge(checkpoint.Verifier)},
		"code_challenge_method": {challengeMethod},
	}
	if config.Audience != "" {
		params.Set("audience", config.Audience)
	}

	endpoint.RawQuery = params.Encode()
	return endpoint.String(), nil
}

// Complete finishes a login from the provider callback. Both checks fail
// closed: a missing checkpoint or verifier rejects the callback before any
// network call, as does a state mismatch.
func (f *Flow) Complete(ctx context.Context, checkpoint *Checkpoint, code, state string) (*oidc.TokenBundle, error) {
	if checkpoint == nil || checkpoint.Verifier == "" {
		return nil, errors.MissingVerifierError()
	}
	if state == "" || state != checkpoint.State {
		return nil, errors.StateMismatchError()
	}

	bundle, err := f.client.Exchange(ctx, code, checkpoint.Verifier)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Login flow completed")
	return bundle, nil
}
