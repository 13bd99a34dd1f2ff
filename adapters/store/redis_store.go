package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of the CredentialStore interface.
// Each principal is a hash; usernames are reserved with SETNX so creation is
// atomic with respect to uniqueness.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) ports.CredentialStore {
	return &RedisStore{
		client: client,
		prefix: "sentinel:",
	}
}

func (s *RedisStore) principalKey(id string) string {
	return s.prefix + "principal:" + id
}

func (s *RedisStore) usernameKey(username string) string {
	return s.prefix + "username:" + username
}

// FindOne loads the principal matching where
func (s *RedisStore) FindOne(ctx context.Context, where core.Predicate) (*core.Principal, error) {
	id := where.ID
	if id == "" && where.Username != "" {
		var err error
		id, err = s.client.Get(ctx, s.usernameKey(where.Username)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, core.ErrPrincipalNotFound
			}
			return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
		}
	}
	if id == "" {
		return nil, core.ErrPrincipalNotFound
	}

	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !where.Matches(p) {
		return nil, core.ErrPrincipalNotFound
	}

	return p, nil
}

// Create reserves the username and writes the principal hash
func (s *RedisStore) Create(ctx context.Context, fields core.NewPrincipal) (*core.Principal, error) {
	now := time.Now().UTC()
	p := &core.Principal{
		ID:           uuid.New().String(),
		Username:     fields.Username,
		PasswordHash: fields.PasswordHash,
		Nickname:     fields.Nickname,
		Role:         fields.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	reserved, err := s.client.SetNX(ctx, s.usernameKey(p.Username), p.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if !reserved {
		return nil, core.ErrConflict
	}

	if err := s.client.HSet(ctx, s.principalKey(p.ID), toHash(p)).Err(); err != nil {
		// Release the reservation so the username is not locked out.
		s.client.Del(ctx, s.usernameKey(p.Username))
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	return p, nil
}

// Update applies patch to the principal with the given id
func (s *RedisStore) Update(ctx context.Context, id string, patch core.PrincipalPatch) (*core.Principal, error) {
	key := s.principalKey(id)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return nil, core.ErrPrincipalNotFound
	}

	values := map[string]interface{}{
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if patch.RenewalToken != nil {
		values["renewal_token"] = *patch.RenewalToken
	}
	if patch.Role != nil {
		values["role"] = *patch.Role
	}
	if patch.Nickname != nil {
		values["nickname"] = *patch.Nickname
	}

	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}

	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id string) (*core.Principal, error) {
	fields, err := s.client.HGetAll(ctx, s.principalKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, core.ErrPrincipalNotFound
	}
	return fromHash(fields), nil
}

func toHash(p *core.Principal) map[string]interface{} {
	return map[string]interface{}{
		"id":            p.ID,
		"username":      p.Username,
		"password_hash": p.PasswordHash,
		"nickname":      p.Nickname,
		"role":          p.Role,
		"renewal_token": p.RenewalToken,
		"created_at":    p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    p.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func fromHash(fields map[string]string) *core.Principal {
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &core.Principal{
		ID:           fields["id"],
		Username:     fields["username"],
		PasswordHash: fields["password_hash"],
		Nickname:     fields["nickname"],
		Role:         fields["role"],
		RenewalToken: fields["renewal_token"],
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}
