package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "regdesk/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")

func Test_IssueAndVerify(t *testing.T) {
	token, err := jwtService.IssueToken("idp|ana", "ana@example.org", "Ana", time.Hour)
	require.NoError(t, err)

	claims, err := jwtService.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "idp|ana", claims.Subject)
	assert.Equal(t, "ana@example.org", claims.Email)
	assert.Equal(t, "Ana", claims.Name)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.IssueToken("idp|ana", "", "", -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	other, err := NewJWTService("other-key", "test-issuer").IssueToken("idp|ana", "", "", time.Hour)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(other)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	foreign, err := NewJWTService("test-signing-key", "someone-else").IssueToken("idp|ana", "", "", time.Hour)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(foreign)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RequiresSubjectAndExpiry(t *testing.T) {
	noSubject, err := jwtService.IssueToken("", "", "", time.Hour)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(noSubject)
	assert.Equal(t, "token has no subject", dErrors.MessageOf(err))

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "idp|ana",
		Issuer:  "test-issuer",
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(noExpiry)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
