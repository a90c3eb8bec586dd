package lock

import (
	"context"
	"sync"
	"time"

	"github.com/shutterhaus/drivesync/internal/model"
)

// MemoryLocker implements Locker in process memory. It only serializes
// requests within one process, which is enough for the local server and tests.
type MemoryLocker struct {
	mu          sync.Mutex
	locks       map[string]model.FolderLock
	ttlDuration time.Duration
	now         func() time.Time
}

// NewMemoryLocker creates a new MemoryLocker with the default TTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:       make(map[string]model.FolderLock),
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func (m *MemoryLocker) expiry() int64 {
	return m.now().Unix() + int64(m.ttlDuration.Seconds())
}

func (m *MemoryLocker) AcquireLock(ctx context.Context, key, owner string) (*model.FolderLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[key]; ok {
		if existing.ExpiresAt >= m.now().Unix() && existing.Owner != owner {
			return nil, ErrLocked
		}
	}

	l := model.FolderLock{Key: key, Owner: owner, ExpiresAt: m.expiry()}
	m.locks[key] = l
	return &l, nil
}

func (m *MemoryLocker) Heartbeat(ctx context.Context, key, owner string) (*model.FolderLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key]
	if !ok || existing.Owner != owner {
		return nil, ErrNotOwner
	}
	existing.ExpiresAt = m.expiry()
	m.locks[key] = existing
	return &existing, nil
}

func (m *MemoryLocker) ReleaseLock(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key]
	if !ok || existing.Owner != owner {
		return ErrNotOwner
	}
	delete(m.locks, key)
	return nil
}

func (m *MemoryLocker) GetLockStatus(ctx context.Context, key string) (*model.FolderLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[key]
	if !ok || existing.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	return &existing, nil
}

var _ Locker = (*MemoryLocker)(nil)
