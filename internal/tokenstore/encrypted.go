package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shutterhaus/drivesync/internal/crypto"
	"github.com/shutterhaus/drivesync/internal/model"
)

// EncryptedStore seals the refresh token before it reaches the inner store.
// Access tokens are short-lived and stay in the clear.
type EncryptedStore struct {
	inner     Store
	encryptor crypto.Encryptor
}

// NewEncryptedStore wraps inner.
func NewEncryptedStore(inner Store, encryptor crypto.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, encryptor: encryptor}
}

func (s *EncryptedStore) Get(ctx context.Context, userID string) (*model.Credential, error) {
	cred, err := s.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return cred, nil
	}

	plain, err := s.encryptor.Decrypt(ctx, cred.RefreshToken, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	cred.RefreshToken = plain
	return cred, nil
}

func (s *EncryptedStore) Upsert(ctx context.Context, cred model.Credential) error {
	if cred.RefreshToken != "" {
		sealed, err := s.encryptor.Encrypt(ctx, cred.RefreshToken, cred.UserID)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		cred.RefreshToken = sealed
	}
	return s.inner.Upsert(ctx, cred)
}

func (s *EncryptedStore) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	return s.inner.UpdateAccessToken(ctx, userID, accessToken, expiresAt)
}

func (s *EncryptedStore) Delete(ctx context.Context, userID string) error {
	return s.inner.Delete(ctx, userID)
}

var _ Store = (*EncryptedStore)(nil)
