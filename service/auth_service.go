package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/internal/logging"
	"github.com/layer-3/sentinel/ports"
)

// bcrypt ignores input past 72 bytes
const maxPasswordBytes = 72

// AuthService handles authentication business logic
type AuthService struct {
	store     ports.CredentialStore
	tokenizer ports.Tokenizer
	hasher    ports.PasswordHasher
	eventPub  ports.EventPublisher
	logger    logging.Logger

	accessTTL  time.Duration
	renewalTTL time.Duration
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// Option configures an AuthService
type Option func(*AuthService)

// WithTTL overrides the access and renewal token lifetimes.
func WithTTL(access, renewal time.Duration) Option {
	return func(s *AuthService) {
		s.accessTTL = access
		s.renewalTTL = renewal
	}
}

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// WithClock sets the time source used when minting tokens.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.CredentialStore,
	tokenizer ports.Tokenizer,
	hasher ports.PasswordHasher,
	eventPub ports.EventPublisher,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		store:      store,
		tokenizer:  tokenizer,
		hasher:     hasher,
		eventPub:   eventPub,
		logger:     logging.Nop(),
		accessTTL:  24 * time.Hour,
		renewalTTL: 7 * 24 * time.Hour, // 7 days
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL is the lifetime of minted access tokens.
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

// ValidateCredentials returns the principal whose password matches.
// An unknown username and a wrong password both yield core.ErrUnauthenticated
// after the same hash comparison.
func (s *AuthService) ValidateCredentials(ctx context.Context, username, password string) (*core.Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", core.ErrInvalidInput)
	}

	principal, err := s.store.FindOne(ctx, core.ByUsername(username))
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			s.hasher.Compare(password, s.dummyPasswordHash())
			return nil, core.ErrUnauthenticated
		}
		return nil, err
	}

	if !s.hasher.Compare(password, principal.PasswordHash) {
		return nil, core.ErrUnauthenticated
	}

	return principal, nil
}

// SignIn rotates the principal's renewal token and issues a new session.
// Any previously issued renewal token stops working.
func (s *AuthService) SignIn(ctx context.Context, principal *core.Principal) (*core.Session, error) {
	now := s.now().UTC().Truncate(time.Second)

	renewalToken, err := s.tokenizer.ClaimsToRenewalToken(&core.RenewalClaims{
		ID:          uuid.New().String(),
		PrincipalID: principal.ID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.renewalTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal token: %w", err)
	}

	// Rotation point: the single slot is overwritten.
	updated, err := s.store.Update(ctx, principal.ID, core.PrincipalPatch{RenewalToken: &renewalToken})
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			return nil, core.ErrUnauthenticated
		}
		return nil, err
	}

	session, err := s.issue(updated, renewalToken, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "principal signed in", "principal_id", updated.ID)
	return session, nil
}

// SignUp creates a principal with the default role and signs it in.
func (s *AuthService) SignUp(ctx context.Context, username, password, nickname string) (*core.Session, error) {
	username = strings.TrimSpace(username)
	nickname = strings.TrimSpace(nickname)
	if err := validateSignUp(username, password, nickname); err != nil {
		return nil, err
	}

	// The check and the create are not atomic; stores reject the loser of a
	// race with core.ErrConflict on create.
	_, err := s.store.FindOne(ctx, core.ByUsername(username))
	switch {
	case err == nil:
		return nil, core.ErrConflict
	case !errors.Is(err, core.ErrPrincipalNotFound):
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principal, err := s.store.Create(ctx, core.NewPrincipal{
		Username:     username,
		PasswordHash: hash,
		Nickname:     nickname,
		Role:         core.RoleUser,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "principal signed up", "principal_id", principal.ID)
	return s.SignIn(ctx, principal)
}

// Renew exchanges a renewal token for a fresh access token. The renewal
// token itself is not rotated.
func (s *AuthService) Renew(ctx context.Context, principalID, renewalToken string) (*core.Session, error) {
	principal, err := s.VerifyRenewal(ctx, principalID, renewalToken)
	if err != nil {
		return nil, err
	}
	return s.IssueAccess(principal, renewalToken)
}

// VerifyRenewal checks a renewal token and that it is the one currently
// stored for principalID.
//
// An expired token clears the principal's stored renewal token before
// failing with core.ErrTokenExpired. Any other verification failure leaves
// the store untouched.
func (s *AuthService) VerifyRenewal(ctx context.Context, principalID, renewalToken string) (*core.Principal, error) {
	claims, err := s.tokenizer.RenewalTokenToClaims(renewalToken)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			s.clearExpired(ctx, principalID)
			return nil, core.ErrTokenExpired
		}
		return nil, err
	}

	if claims.PrincipalID != principalID {
		return nil, core.ErrUnauthenticated
	}

	principal, err := s.store.FindOne(ctx, core.ByIDAndRenewalToken(principalID, renewalToken))
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			return nil, core.ErrUnauthenticated
		}
		return nil, err
	}

	return principal, nil
}

// RenewalCredentials extracts the principal id and embedded renewal token
// from an access token. The access token may be past its expiry.
func (s *AuthService) RenewalCredentials(accessToken string) (principalID, renewalToken string, err error) {
	claims, err := s.tokenizer.StaleAccessTokenToClaims(accessToken)
	if err != nil {
		return "", "", err
	}
	if claims.PrincipalID == "" || claims.RenewalToken == "" {
		return "", "", core.ErrInvalidToken
	}
	return claims.PrincipalID, claims.RenewalToken, nil
}

// IssueAccess mints an access token for principal embedding renewalToken.
func (s *AuthService) IssueAccess(principal *core.Principal, renewalToken string) (*core.Session, error) {
	return s.issue(principal, renewalToken, s.now().UTC().Truncate(time.Second))
}

// Authorize verifies an access token and applies the role gate against the
// principal's current role.
func (s *AuthService) Authorize(ctx context.Context, accessToken string, requiredRoles []string) (*core.Principal, error) {
	claims, err := s.tokenizer.AccessTokenToClaims(accessToken)
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	// The role embedded in the token is informational only.
	principal, err := s.store.FindOne(ctx, core.ByID(claims.PrincipalID))
	if err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			return nil, core.ErrUnauthenticated
		}
		return nil, err
	}

	if err := core.CheckRole(principal.Role, requiredRoles); err != nil {
		return nil, err
	}

	return principal.Public(), nil
}

// SignOut clears the principal's stored renewal token.
func (s *AuthService) SignOut(ctx context.Context, principalID string) error {
	if err := s.clearRenewalToken(ctx, principalID); err != nil {
		if errors.Is(err, core.ErrPrincipalNotFound) {
			return core.ErrUnauthenticated
		}
		return err
	}

	s.logger.Info(ctx, "principal signed out", "principal_id", principalID)
	s.publish(ctx, principalID, ports.ReasonSignOut)
	return nil
}

// GetPrincipal returns the public view of a principal.
func (s *AuthService) GetPrincipal(ctx context.Context, id string) (*core.Principal, error) {
	principal, err := s.store.FindOne(ctx, core.ByID(id))
	if err != nil {
		return nil, err
	}
	return principal.Public(), nil
}

// SetRole changes a principal's role. The change applies to the next
// authorized request.
func (s *AuthService) SetRole(ctx context.Context, id, role string) (*core.Principal, error) {
	if !core.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", core.ErrInvalidInput, role)
	}

	principal, err := s.store.Update(ctx, id, core.PrincipalPatch{Role: &role})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "principal role changed", "principal_id", id, "role", role)
	return principal.Public(), nil
}

// EnsureAdmin creates an admin principal unless the username is taken.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (*core.Principal, error) {
	existing, err := s.store.FindOne(ctx, core.ByUsername(username))
	if err == nil {
		return existing.Public(), nil
	}
	if !errors.Is(err, core.ErrPrincipalNotFound) {
		return nil, err
	}

	if err := validateSignUp(username, password, username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principal, err := s.store.Create(ctx, core.NewPrincipal{
		Username:     username,
		PasswordHash: hash,
		Nickname:     username,
		Role:         core.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "admin principal created", "principal_id", principal.ID)
	return principal.Public(), nil
}

// dummyPasswordHash is compared against when the username is unknown so
// both failure paths cost one hash comparison.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			s.logger.Warn(context.Background(), "failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// issue mints an access token embedding renewalToken.
func (s *AuthService) issue(principal *core.Principal, renewalToken string, now time.Time) (*core.Session, error) {
	expiresAt := now.Add(s.accessTTL)

	accessToken, err := s.tokenizer.ClaimsToAccessToken(&core.AccessClaims{
		PrincipalID:  principal.ID,
		Role:         principal.Role,
		RenewalToken: renewalToken,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	return &core.Session{
		AccessToken:     accessToken,
		RenewalToken:    renewalToken,
		AccessExpiresAt: expiresAt,
		Principal:       principal.Public(),
	}, nil
}

// clearExpired forces re-authentication after an expired renewal attempt.
// A failed clear is logged; the caller still sees core.ErrTokenExpired.
func (s *AuthService) clearExpired(ctx context.Context, principalID string) {
	if err := s.clearRenewalToken(ctx, principalID); err != nil {
		if !errors.Is(err, core.ErrPrincipalNotFound) {
			s.logger.Error(ctx, "failed to clear expired renewal token", "principal_id", principalID, "error", err)
		}
		return
	}

	s.logger.Info(ctx, "expired renewal token cleared", "principal_id", principalID)
	s.publish(ctx, principalID, ports.ReasonRenewalExpired)
}

func (s *AuthService) clearRenewalToken(ctx context.Context, principalID string) error {
	empty := ""
	_, err := s.store.Update(ctx, principalID, core.PrincipalPatch{RenewalToken: &empty})
	return err
}

// publish is best effort; the store is already updated.
func (s *AuthService) publish(ctx context.Context, principalID, reason string) {
	if err := s.eventPub.PublishSessionEnded(ctx, principalID, reason); err != nil {
		s.logger.Warn(ctx, "failed to publish session event", "principal_id", principalID, "reason", reason, "error", err)
	}
}

func validateSignUp(username, password, nickname string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", core.ErrInvalidInput)
	case password == "":
		return fmt.Errorf("%w: password is required", core.ErrInvalidInput)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", core.ErrInvalidInput, maxPasswordBytes)
	case nickname == "":
		return fmt.Errorf("%w: nickname is required", core.ErrInvalidInput)
	}
	return nil
}
