package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	RenewalToken string `json:"rtk"` // Renewal token stored when this access token was minted
}

// RenewalClaims are just the standard claims for renewal tokens
type RenewalClaims struct {
	jwt.RegisteredClaims
}
