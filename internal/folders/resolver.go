// Package folders maps an upload's category, client and package onto a
// folder hierarchy in the user's Drive, creating folders on first use.
package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/lock"
	"github.com/shutterhaus/drivesync/internal/logging"
)

const defaultPollInterval = 250 * time.Millisecond

// Path names an upload target below the root folder. ClientName and
// PackageType are optional; PackageType is ignored without a ClientName.
type Path struct {
	Category    string
	ClientName  string
	PackageType string
}

// FindOrCreate returns the first un-trashed folder called name under
// parentID, creating it when none exists. The lookup and the create are two
// separate remote calls, so concurrent callers can both create a folder.
func FindOrCreate(ctx context.Context, d adapter.Drive, name, parentID string) (*adapter.Folder, error) {
	existing, err := d.FindFolder(ctx, name, parentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return d.CreateFolder(ctx, name, parentID)
}

// Resolver turns a Path into a concrete folder.
type Resolver struct {
	root            string
	defaultCategory string

	locker       lock.Locker
	lockWait     time.Duration
	pollInterval time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocker serializes resolutions per user through locker. A caller that
// cannot get the lock within wait proceeds without it.
func WithLocker(locker lock.Locker, wait time.Duration) Option {
	return func(r *Resolver) {
		r.locker = locker
		r.lockWait = wait
	}
}

// WithPollInterval sets how often a waiting caller retries the lock.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		r.pollInterval = d
	}
}

// NewResolver creates a Resolver rooted at a top-level folder called root.
func NewResolver(root, defaultCategory string, opts ...Option) *Resolver {
	r := &Resolver{
		root:            root,
		defaultCategory: defaultCategory,
		pollInterval:    defaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Segments returns the folder names for p, outermost first.
func (r *Resolver) Segments(p Path) []string {
	category := p.Category
	if strings.TrimSpace(category) == "" {
		category = r.defaultCategory
	}

	segments := []string{r.root, category}
	if strings.TrimSpace(p.ClientName) != "" {
		segments = append(segments, p.ClientName)
		if strings.TrimSpace(p.PackageType) != "" {
			segments = append(segments, p.PackageType)
		}
	}
	return segments
}

// Resolve walks p one segment at a time, each a full find-or-create round
// trip under the previous segment, and returns the deepest folder.
func (r *Resolver) Resolve(ctx context.Context, d adapter.Drive, userID string, p Path) (*adapter.Folder, error) {
	logger := logging.FromContext(ctx)
	segments := r.Segments(p)

	key, owner, locked := r.acquire(ctx, userID)
	if locked {
		defer r.release(ctx, key, owner)
	}

	parentID := ""
	var folder *adapter.Folder
	for i, name := range segments {
		f, err := FindOrCreate(ctx, d, name, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve folder %q: %w", strings.Join(segments[:i+1], "/"), err)
		}
		logger.Debug("folder resolved", slog.String("name", name), slog.String("folder_id", f.ID))
		folder = f
		parentID = f.ID

		if locked && i < len(segments)-1 {
			if _, err := r.locker.Heartbeat(ctx, key, owner); err != nil {
				logger.Warn("folder lock heartbeat failed", slog.String("lock_key", key), slog.Any("error", err))
			}
		}
	}
	return folder, nil
}

// acquire polls for the user's folder lock. It never fails the upload:
// on timeout or a lock store error it logs and reports locked=false.
func (r *Resolver) acquire(ctx context.Context, userID string) (key, owner string, locked bool) {
	if r.locker == nil {
		return "", "", false
	}

	logger := logging.FromContext(ctx)
	key = "folders:" + userID
	owner = uuid.NewString()
	deadline := time.Now().Add(r.lockWait)

	for {
		_, err := r.locker.AcquireLock(ctx, key, owner)
		if err == nil {
			return key, owner, true
		}
		if !errors.Is(err, lock.ErrLocked) {
			logger.Warn("folder lock unavailable, resolving without it", slog.String("lock_key", key), slog.Any("error", err))
			return "", "", false
		}
		if !time.Now().Before(deadline) {
			holder := ""
			if l, _ := r.locker.GetLockStatus(ctx, key); l != nil {
				holder = l.Owner
			}
			logger.Warn("timed out waiting for folder lock, resolving without it",
				slog.String("lock_key", key), slog.String("holder", holder), slog.Duration("waited", r.lockWait))
			return "", "", false
		}

		select {
		case <-ctx.Done():
			return "", "", false
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Resolver) release(ctx context.Context, key, owner string) {
	if err := r.locker.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
		logging.FromContext(ctx).Warn("failed to release folder lock", slog.String("lock_key", key), slog.Any("error", err))
	}
}
