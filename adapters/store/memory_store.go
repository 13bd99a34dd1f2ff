package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/sentinel/core"
	"github.com/layer-3/sentinel/ports"
)

// MemoryStore is an in-memory implementation of the CredentialStore interface
type MemoryStore struct {
	principals map[string]*core.Principal // by id
	usernames  map[string]string          // username -> id
	mu         sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.CredentialStore {
	return &MemoryStore{
		principals: make(map[string]*core.Principal),
		usernames:  make(map[string]string),
	}
}

// FindOne returns a copy of the principal matching where
func (s *MemoryStore) FindOne(ctx context.Context, where core.Predicate) (*core.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidate *core.Principal
	switch {
	case where.ID != "":
		candidate = s.principals[where.ID]
	case where.Username != "":
		candidate = s.principals[s.usernames[where.Username]]
	}

	if !where.Matches(candidate) {
		return nil, core.ErrPrincipalNotFound
	}

	cp := *candidate
	return &cp, nil
}

// Create inserts a principal. Username uniqueness is checked under the lock.
func (s *MemoryStore) Create(ctx context.Context, fields core.NewPrincipal) (*core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[fields.Username]; exists {
		return nil, core.ErrConflict
	}

	now := time.Now()
	p := &core.Principal{
		ID:           uuid.New().String(),
		Username:     fields.Username,
		PasswordHash: fields.PasswordHash,
		Nickname:     fields.Nickname,
		Role:         fields.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.principals[p.ID] = p
	s.usernames[p.Username] = p.ID

	cp := *p
	return &cp, nil
}

// Update applies patch to the principal with the given id
func (s *MemoryStore) Update(ctx context.Context, id string, patch core.PrincipalPatch) (*core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, core.ErrPrincipalNotFound
	}

	if patch.RenewalToken != nil {
		p.RenewalToken = *patch.RenewalToken
	}
	if patch.Role != nil {
		p.Role = *patch.Role
	}
	if patch.Nickname != nil {
		p.Nickname = *patch.Nickname
	}
	p.UpdatedAt = time.Now()

	cp := *p
	return &cp, nil
}
