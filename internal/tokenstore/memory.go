package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/shutterhaus/drivesync/internal/model"
)

// MemoryStore keeps credentials in process memory (DEV_MODE and tests).
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]model.Credential
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: make(map[string]model.Credential), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.RefreshToken == "" {
		if existing, ok := s.creds[cred.UserID]; ok {
			cred.RefreshToken = existing.RefreshToken
		}
	}
	cred.UpdatedAt = s.now().UTC()
	s.creds[cred.UserID] = cred
	return nil
}

func (s *MemoryStore) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.creds[userID]
	if !ok {
		return ErrNotFound
	}
	c.AccessToken = accessToken
	c.ExpiresAt = expiresAt
	c.UpdatedAt = s.now().UTC()
	s.creds[userID] = c
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.creds, userID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
