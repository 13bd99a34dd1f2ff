package tokenizer

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/sentinel/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func now() time.Time {
	return time.Now().Truncate(time.Second)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now()
	in := &core.AccessClaims{
		PrincipalID:  "p-1",
		Role:         core.RoleUser,
		RenewalToken: "renewal",
		IssuedAt:     issued,
		ExpiresAt:    issued.Add(24 * time.Hour),
	}

	token, err := tk.ClaimsToAccessToken(in)
	require.NoError(t, err)

	out, err := tk.AccessTokenToClaims(token)
	require.NoError(t, err)

	assert.Equal(t, in.PrincipalID, out.PrincipalID)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.RenewalToken, out.RenewalToken)
	assert.True(t, in.IssuedAt.Equal(out.IssuedAt))
	assert.True(t, out.ExpiresAt.Equal(out.IssuedAt.Add(24*time.Hour)))
}

func TestRenewalToken_RoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now()
	in := &core.RenewalClaims{
		ID:          "jti-1",
		PrincipalID: "p-1",
		IssuedAt:    issued,
		ExpiresAt:   issued.Add(7 * 24 * time.Hour),
	}

	token, err := tk.ClaimsToRenewalToken(in)
	require.NoError(t, err)

	out, err := tk.RenewalTokenToClaims(token)
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.PrincipalID, out.PrincipalID)
	assert.True(t, out.ExpiresAt.Equal(in.IssuedAt.Add(7*24*time.Hour)))
}

func TestExpiredTokens(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now().Add(-2 * time.Hour)

	renewal, err := tk.ClaimsToRenewalToken(&core.RenewalClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)
	_, err = tk.RenewalTokenToClaims(renewal)
	assert.ErrorIs(t, err, core.ErrTokenExpired)

	access, err := tk.ClaimsToAccessToken(&core.AccessClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)
	_, err = tk.AccessTokenToClaims(access)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestStaleAccessToken_AcceptsExpired(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now().Add(-2 * time.Hour)

	access, err := tk.ClaimsToAccessToken(&core.AccessClaims{
		PrincipalID:  "p-1",
		RenewalToken: "r",
		IssuedAt:     issued,
		ExpiresAt:    issued.Add(time.Hour),
	})
	require.NoError(t, err)

	claims, err := tk.StaleAccessTokenToClaims(access)
	require.NoError(t, err)
	assert.Equal(t, "p-1", claims.PrincipalID)
	assert.Equal(t, "r", claims.RenewalToken)
}

func TestStaleAccessToken_RejectsRenewalAudience(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now()

	renewal, err := tk.ClaimsToRenewalToken(&core.RenewalClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)

	_, err = tk.StaleAccessTokenToClaims(renewal)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestAudienceSeparation(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now()

	renewal, err := tk.ClaimsToRenewalToken(&core.RenewalClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)
	access, err := tk.ClaimsToAccessToken(&core.AccessClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)

	_, err = tk.AccessTokenToClaims(renewal)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = tk.RenewalTokenToClaims(access)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredWrongAudience_IsInvalidNotExpired(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)
	issued := now().Add(-2 * time.Hour)

	access, err := tk.ClaimsToAccessToken(&core.AccessClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)

	_, err = tk.RenewalTokenToClaims(access)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	assert.False(t, errors.Is(err, core.ErrTokenExpired))
}

func TestWrongSecret(t *testing.T) {
	issued := now()
	token, err := NewJWTTokenizer([]byte("right")).ClaimsToAccessToken(&core.AccessClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)

	_, err = NewJWTTokenizer([]byte("wrong")).AccessTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = NewJWTTokenizer([]byte("wrong")).StaleAccessTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredWithWrongSecret_IsInvalid(t *testing.T) {
	issued := now().Add(-2 * time.Hour)
	token, err := NewJWTTokenizer([]byte("right")).ClaimsToRenewalToken(&core.RenewalClaims{PrincipalID: "p-1", IssuedAt: issued, ExpiresAt: issued.Add(time.Hour)})
	require.NoError(t, err)

	_, err = NewJWTTokenizer([]byte("wrong")).RenewalTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	assert.False(t, errors.Is(err, core.ErrTokenExpired))
}

func TestMalformedAndForeignAlgorithm(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)

	_, err := tk.AccessTokenToClaims("not.a.jwt")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "p-1",
			Audience:  jwt.ClaimStrings{AudienceAccess},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: core.RoleAdmin,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tk.AccessTokenToClaims(none)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestMissingExpiry_IsInvalid(t *testing.T) {
	tk := NewJWTTokenizer(testSecret)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  "p-1",
			Audience: jwt.ClaimStrings{AudienceAccess},
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = tk.AccessTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}
