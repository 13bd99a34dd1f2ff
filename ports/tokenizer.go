package ports

import "github.com/layer-3/sentinel/core"

// Tokenizer converts between claims and signed tokens
type Tokenizer interface {
	// Access token operations
	ClaimsToAccessToken(claims *core.AccessClaims) (string, error)
	AccessTokenToClaims(token string) (*core.AccessClaims, error)

	// StaleAccessTokenToClaims checks the signature but not the expiry.
	StaleAccessTokenToClaims(token string) (*core.AccessClaims, error)

	// Renewal token operations
	ClaimsToRenewalToken(claims *core.RenewalClaims) (string, error)
	RenewalTokenToClaims(token string) (*core.RenewalClaims, error)
}
