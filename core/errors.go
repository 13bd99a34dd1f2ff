package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when no valid identity could be established.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenExpired is returned when a signed token is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrUnauthenticated)

	// ErrInvalidToken is returned when a token fails signature or structure checks.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthenticated)

	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("username already exists")
	ErrStoreUnavailable  = errors.New("credential store unavailable")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrInvalidInput      = errors.New("invalid input")
)
