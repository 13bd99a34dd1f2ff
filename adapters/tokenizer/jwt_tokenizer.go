package tokenizer

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

const Issuer = "sentinel"
const AudienceAccess = "session:access"
const AudienceRenewal = "session:renewal"

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret []byte
}

// NewJWTTokenizer creates a new JWT tokenizer. The secret is read-only after
// construction.
func NewJWTTokenizer(secret []byte) ports.Tokenizer {
	return &JWTTokenizer{secret: slices.Clone(secret)}
}

// ClaimsToAccessToken signs access claims
func (j *JWTTokenizer) ClaimsToAccessToken(claims *core.AccessClaims) (string, error) {
	c := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   claims.PrincipalID,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		Role:         claims.Role,
		RenewalToken: claims.RenewalToken,
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToClaims verifies an access token's signature, audience and expiry
func (j *JWTTokenizer) AccessTokenToClaims(tokenStr string) (*core.AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, jwt.WithAudience(AudienceAccess), jwt.WithIssuer(Issuer)); err != nil {
		return nil, err
	}

	return accessFromJWT(claims), nil
}

// StaleAccessTokenToClaims verifies an access token's signature and audience
// but accepts it past its expiry
func (j *JWTTokenizer) StaleAccessTokenToClaims(tokenStr string) (*core.AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, jwt.WithoutClaimsValidation()); err != nil {
		return nil, err
	}

	if claims.Issuer != Issuer || !slices.Contains(claims.Audience, AudienceAccess) {
		return nil, core.ErrInvalidToken
	}

	return accessFromJWT(claims), nil
}

// ClaimsToRenewalToken signs renewal claims
func (j *JWTTokenizer) ClaimsToRenewalToken(claims *core.RenewalClaims) (string, error) {
	c := RenewalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   claims.PrincipalID,
			ID:        claims.ID,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRenewal},
		},
	}

	signedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign renewal token: %w", err)
	}

	return signedToken, nil
}

// RenewalTokenToClaims verifies a renewal token's signature, audience and expiry
func (j *JWTTokenizer) RenewalTokenToClaims(tokenStr string) (*core.RenewalClaims, error) {
	claims := &RenewalClaims{}
	if err := j.parse(tokenStr, claims, jwt.WithAudience(AudienceRenewal), jwt.WithIssuer(Issuer)); err != nil {
		return nil, err
	}

	return &core.RenewalClaims{
		ID:          claims.ID,
		PrincipalID: claims.Subject,
		IssuedAt:    timeOf(claims.IssuedAt),
		ExpiresAt:   timeOf(claims.ExpiresAt),
	}, nil
}

// parse verifies tokenStr into claims. Failures collapse into
// core.ErrTokenExpired or core.ErrInvalidToken.
func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, opts ...jwt.ParserOption) error {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, opts...)

	if err != nil {
		// A token for the wrong audience is never "expired", even if it also is.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidAudience) && !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}

	return nil
}

func accessFromJWT(claims *AccessClaims) *core.AccessClaims {
	return &core.AccessClaims{
		PrincipalID:  claims.Subject,
		Role:         claims.Role,
		RenewalToken: claims.RenewalToken,
		IssuedAt:     timeOf(claims.IssuedAt),
		ExpiresAt:    timeOf(claims.ExpiresAt),
	}
}

func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
