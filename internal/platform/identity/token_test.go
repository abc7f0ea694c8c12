package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docproof/pkg/domain"
	dErrors "docproof/pkg/domain-errors"
)

var tokens = NewTokenService("test-signing-key", "docproof-test", "registry")

func TestIssueAndValidate(t *testing.T) {
	token, err := tokens.IssueToken("issuer-1", time.Hour)
	require.NoError(t, err)

	claims, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("issuer-1"), claims.Actor())
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := tokens.IssueToken("", time.Hour)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateRejects(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.ValidateToken("not-a-token")
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthenticated, "invalid token"))
	})

	t.Run("expired", func(t *testing.T) {
		token, err := tokens.IssueToken("issuer-1", -time.Hour)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(token)
		require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthenticated, "token has expired"))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := NewTokenService("other-key", "docproof-test", "registry")
		token, err := other.IssueToken("issuer-1", time.Hour)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewTokenService("test-signing-key", "docproof-test", "someone-else")
		token, err := other.IssueToken("issuer-1", time.Hour)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	t.Run("padded subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   " issuer-1 ",
			Issuer:    "docproof-test",
			Audience:  []string{"registry"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}})
		signed, err := token.SignedString([]byte("test-signing-key"))
		require.NoError(t, err)
		_, err = tokens.ValidateToken(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.ValidateToken(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})
}
