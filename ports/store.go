package ports

import (
	"context"

	"github.com/layer-3/sentinel/core"
)

// CredentialStore persists principals. Implementations return
// core.ErrPrincipalNotFound on a miss, core.ErrConflict on a duplicate
// username and wrap driver failures in core.ErrStoreUnavailable.
type CredentialStore interface {
	FindOne(ctx context.Context, where core.Predicate) (*core.Principal, error)
	Create(ctx context.Context, fields core.NewPrincipal) (*core.Principal, error)
	Update(ctx context.Context, id string, patch core.PrincipalPatch) (*core.Principal, error)
}
