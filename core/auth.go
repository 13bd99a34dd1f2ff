package core

import "time"

// Principal is an identity record owned by the credential store
type Principal struct {
	ID           string    // Opaque identifier assigned by the store
	Username     string    // Unique across all principals
	PasswordHash string    // bcrypt hash, never the plaintext
	Nickname     string    // Display name supplied at sign-up
	Role         string    // e.g. "user" or "admin"
	RenewalToken string    // The single active renewal token, empty when cleared
	CreatedAt    time.Time // When the record was created
	UpdatedAt    time.Time // When the record was last written
}

// Public returns a copy of the principal with secrets stripped.
func (p *Principal) Public() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.PasswordHash = ""
	cp.RenewalToken = ""
	return &cp
}

// NewPrincipal holds the fields needed to create a principal
type NewPrincipal struct {
	Username     string
	PasswordHash string
	Nickname     string
	Role         string
}

// PrincipalPatch is a partial update. Nil fields are left untouched;
// a pointer to "" clears RenewalToken.
type PrincipalPatch struct {
	RenewalToken *string
	Role         *string
	Nickname     *string
}

// Predicate selects a single principal. Only three shapes are used:
// {Username}, {ID} and {ID, RenewalToken}.
type Predicate struct {
	ID           string
	Username     string
	RenewalToken string
	matchRenewal bool
}

// ByUsername selects a principal by username.
func ByUsername(username string) Predicate {
	return Predicate{Username: username}
}

// ByID selects a principal by id.
func ByID(id string) Predicate {
	return Predicate{ID: id}
}

// ByIDAndRenewalToken selects a principal by id whose stored renewal token
// equals token. An empty token never matches.
func ByIDAndRenewalToken(id, token string) Predicate {
	return Predicate{ID: id, RenewalToken: token, matchRenewal: true}
}

// MatchesRenewal reports whether the predicate constrains the renewal token.
func (p Predicate) MatchesRenewal() bool {
	return p.matchRenewal
}

// Matches reports whether principal satisfies the predicate.
func (p Predicate) Matches(principal *Principal) bool {
	if principal == nil {
		return false
	}
	if p.ID != "" && principal.ID != p.ID {
		return false
	}
	if p.Username != "" && principal.Username != p.Username {
		return false
	}
	if p.matchRenewal {
		if p.RenewalToken == "" || principal.RenewalToken != p.RenewalToken {
			return false
		}
	}
	return p.ID != "" || p.Username != ""
}

// AccessClaims is the payload of an access token
type AccessClaims struct {
	PrincipalID  string    // Subject of the token
	Role         string    // Role at mint time, informational only
	RenewalToken string    // The renewal token stored at mint time
	IssuedAt     time.Time // When the token was minted
	ExpiresAt    time.Time // IssuedAt + access TTL
}

// RenewalClaims is the payload of a renewal token
type RenewalClaims struct {
	ID          string    // Unique token id, distinguishes tokens minted in the same second
	PrincipalID string    // Subject of the token
	IssuedAt    time.Time // When the token was minted
	ExpiresAt   time.Time // IssuedAt + renewal TTL
}

// Session is returned after a successful authentication or renewal
type Session struct {
	AccessToken     string
	RenewalToken    string
	AccessExpiresAt time.Time
	Principal       *Principal // Public view, secrets stripped
}
