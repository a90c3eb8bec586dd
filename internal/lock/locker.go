package lock

import (
	"context"
	"errors"
	"time"

	"github.com/shutterhaus/drivesync/internal/model"
)

const DefaultTTL = 30 * time.Second

var (
	// ErrLocked is returned when another owner holds an unexpired lock.
	ErrLocked = errors.New("lock is held by another owner")
	// ErrNotOwner is returned when extending or releasing a lock the caller does not hold.
	ErrNotOwner = errors.New("lock not found or not owned by caller")
)

// Locker manages advisory locks with a TTL, so a crashed holder never blocks
// others for longer than the TTL.
type Locker interface {
	// AcquireLock takes the lock for owner. It succeeds when the lock is free,
	// expired, or already held by owner.
	AcquireLock(ctx context.Context, key, owner string) (*model.FolderLock, error)

	// Heartbeat extends the TTL of a lock held by owner.
	Heartbeat(ctx context.Context, key, owner string) (*model.FolderLock, error)

	// ReleaseLock removes the lock if owner holds it.
	ReleaseLock(ctx context.Context, key, owner string) error

	// GetLockStatus returns the current unexpired lock, or nil.
	GetLockStatus(ctx context.Context, key string) (*model.FolderLock, error)
}
