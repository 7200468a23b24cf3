package oidc

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callezenwaka/authenticate/internal/common/errors"
)

func signTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return signed
}

func TestSubjectFromIDToken(t *testing.T) {
	idToken := signTestToken(t, jwt.MapClaims{
		"sub":   "auth0|user-42",
		"email": "user@example.com",
	})

	sub, err := SubjectFromIDToken(idToken)
	require.NoError(t, err)
	assert.Equal(t, "auth0|user-42", sub)
}

func TestSubjectFromIDToken_MissingSub(t *testing.T) {
	idToken := signTestToken(t, jwt.MapClaims{"email": "user@example.com"})

	_, err := SubjectFromIDToken(idToken)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeInvalidIDToken))
}

func TestSubjectFromIDToken_Malformed(t *testing.T) {
	for _, idToken := range []string{"", "not-a-jwt", "a.b"} {
		_, err := SubjectFromIDToken(idToken)
		require.Error(t, err, "input %q", idToken)
		assert.True(t, errors.IsType(err, errors.ErrTypeInvalidIDToken))
	}
}
