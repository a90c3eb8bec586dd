package folders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/adapter/memory"
	"github.com/shutterhaus/drivesync/internal/lock"
)

// countingDrive counts calls and can hold every FindFolder at a barrier.
type countingDrive struct {
	adapter.Drive

	mu      sync.Mutex
	finds   []string
	creates []string

	barrier *sync.WaitGroup
	delay   time.Duration
	findErr error
}

func (c *countingDrive) FindFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	c.mu.Lock()
	c.finds = append(c.finds, name)
	c.mu.Unlock()

	if c.findErr != nil {
		return nil, c.findErr
	}
	f, err := c.Drive.FindFolder(ctx, name, parentID)
	if c.barrier != nil {
		c.barrier.Done()
		c.barrier.Wait()
	}
	time.Sleep(c.delay)
	return f, err
}

func (c *countingDrive) CreateFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	c.mu.Lock()
	c.creates = append(c.creates, name)
	c.mu.Unlock()
	return c.Drive.CreateFolder(ctx, name, parentID)
}

func TestFindOrCreate_Idempotent(t *testing.T) {
	d := &countingDrive{Drive: memory.NewMemoryAdapter()}
	ctx := context.Background()

	first, err := FindOrCreate(ctx, d, "Photography", "")
	require.NoError(t, err)
	second, err := FindOrCreate(ctx, d, "Photography", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"Photography"}, d.creates)
}

func TestFindOrCreate_ReturnsFirstOfDuplicates(t *testing.T) {
	m := memory.NewMemoryAdapter()
	ctx := context.Background()
	a, _ := m.CreateFolder(ctx, "Dup", "")
	_, _ = m.CreateFolder(ctx, "Dup", "")

	got, err := FindOrCreate(ctx, m, "Dup", "")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestFindOrCreate_SearchError(t *testing.T) {
	boom := errors.New("search failed")
	d := &countingDrive{Drive: memory.NewMemoryAdapter(), findErr: boom}

	_, err := FindOrCreate(context.Background(), d, "X", "")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, d.creates)
}

func TestResolver_Segments(t *testing.T) {
	r := NewResolver("Photography", "Uncategorized")

	tests := []struct {
		name string
		path Path
		want []string
	}{
		{"category only", Path{Category: "Homepage"}, []string{"Photography", "Homepage"}},
		{"blank category", Path{Category: "  "}, []string{"Photography", "Uncategorized"}},
		{"client", Path{Category: "Weddings", ClientName: "Smith"}, []string{"Photography", "Weddings", "Smith"}},
		{"client and package", Path{Category: "Weddings", ClientName: "Smith", PackageType: "Gold"}, []string{"Photography", "Weddings", "Smith", "Gold"}},
		{"package without client", Path{Category: "Weddings", PackageType: "Gold"}, []string{"Photography", "Weddings"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Segments(tt.path))
		})
	}
}

func TestResolver_ResolveBuildsHierarchy(t *testing.T) {
	m := memory.NewMemoryAdapter()
	d := &countingDrive{Drive: m}
	r := NewResolver("Photography", "Uncategorized")
	ctx := context.Background()

	leaf, err := r.Resolve(ctx, d, "user1", Path{Category: "Weddings", ClientName: "O'Brien", PackageType: "Gold"})
	require.NoError(t, err)
	assert.Equal(t, "Gold", leaf.Name)
	assert.Equal(t, []string{"Photography", "Weddings", "O'Brien", "Gold"}, d.finds)
	assert.Equal(t, []string{"Photography", "Weddings", "O'Brien", "Gold"}, d.creates)

	// Each folder sits under the previous one.
	root, _ := m.FindFolder(ctx, "Photography", "")
	cat, _ := m.FindFolder(ctx, "Weddings", root.ID)
	client, _ := m.FindFolder(ctx, "O'Brien", cat.ID)
	pkg, _ := m.FindFolder(ctx, "Gold", client.ID)
	require.NotNil(t, pkg)
	assert.Equal(t, leaf.ID, pkg.ID)

	// A second resolution reuses everything.
	again, err := r.Resolve(ctx, d, "user1", Path{Category: "Weddings", ClientName: "O'Brien", PackageType: "Gold"})
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, again.ID)
	assert.Len(t, d.creates, 4)
}

func TestResolver_ResolveCategoryOnly(t *testing.T) {
	d := &countingDrive{Drive: memory.NewMemoryAdapter()}
	r := NewResolver("Photography", "Uncategorized")

	leaf, err := r.Resolve(context.Background(), d, "user1", Path{})
	require.NoError(t, err)
	assert.Equal(t, "Uncategorized", leaf.Name)
	assert.Equal(t, []string{"Photography", "Uncategorized"}, d.finds)
}

func TestResolver_ErrorNamesPath(t *testing.T) {
	boom := &adapter.OperationError{Op: "find folder", Message: "Failed to search folders"}
	d := &countingDrive{Drive: memory.NewMemoryAdapter(), findErr: boom}
	r := NewResolver("Photography", "Uncategorized")

	_, err := r.Resolve(context.Background(), d, "user1", Path{Category: "Homepage"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Photography"`)

	var opErr *adapter.OperationError
	assert.ErrorAs(t, err, &opErr)
}

// Without a lock, two uploads that both search before either creates end up
// with duplicate folders.
func TestResolver_ConcurrentWithoutLockDuplicates(t *testing.T) {
	m := memory.NewMemoryAdapter()
	var barrier sync.WaitGroup
	barrier.Add(2)
	d := &countingDrive{Drive: m, barrier: &barrier}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Only the first FindFolder of each goroutine meets at the barrier.
			_, _ = FindOrCreate(context.Background(), d, "Root", "")
		}()
	}
	wg.Wait()

	folders, err := m.ListFolders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestResolver_ConcurrentWithLockConverges(t *testing.T) {
	m := memory.NewMemoryAdapter()
	d := &countingDrive{Drive: m, delay: 2 * time.Millisecond}
	r := NewResolver("Photography", "Uncategorized",
		WithLocker(lock.NewMemoryLocker(), 5*time.Second),
		WithPollInterval(time.Millisecond))

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := r.Resolve(context.Background(), d, "user1", Path{Category: "Homepage"})
			if err == nil {
				ids[i] = f.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	roots, _ := m.ListFolders(context.Background(), "")
	assert.Len(t, roots, 1)
}

func TestResolver_LockTimeoutProceeds(t *testing.T) {
	locker := lock.NewMemoryLocker()
	_, err := locker.AcquireLock(context.Background(), "folders:user1", "someone-else")
	require.NoError(t, err)

	r := NewResolver("Photography", "Uncategorized",
		WithLocker(locker, 20*time.Millisecond),
		WithPollInterval(5*time.Millisecond))

	leaf, err := r.Resolve(context.Background(), memory.NewMemoryAdapter(), "user1", Path{Category: "Homepage"})
	require.NoError(t, err)
	assert.Equal(t, "Homepage", leaf.Name)

	// The other holder's lock is left alone.
	held, _ := locker.GetLockStatus(context.Background(), "folders:user1")
	require.NotNil(t, held)
	assert.Equal(t, "someone-else", held.Owner)
}

func TestResolver_ReleasesLock(t *testing.T) {
	locker := lock.NewMemoryLocker()
	r := NewResolver("Photography", "Uncategorized", WithLocker(locker, time.Second))

	_, err := r.Resolve(context.Background(), memory.NewMemoryAdapter(), "user1", Path{Category: "Homepage", ClientName: "Smith"})
	require.NoError(t, err)

	held, _ := locker.GetLockStatus(context.Background(), "folders:user1")
	assert.Nil(t, held)
}
