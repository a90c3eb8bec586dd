// Package tokenstore persists one Drive OAuth credential per user.
package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/shutterhaus/drivesync/internal/model"
)

// ErrNotFound is returned when the user has no stored credential.
var ErrNotFound = errors.New("credential not found")

// Store is keyed by user id.
type Store interface {
	// Get returns the user's credential or ErrNotFound.
	Get(ctx context.Context, userID string) (*model.Credential, error)

	// Upsert creates or replaces the credential. An empty RefreshToken keeps
	// the one already stored.
	Upsert(ctx context.Context, cred model.Credential) error

	// UpdateAccessToken replaces only the access token and expiry.
	// Returns ErrNotFound when the record is gone.
	UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error

	// Delete removes the credential. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID string) error
}
