package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shutterhaus/drivesync/internal/adapter"
)

const (
	maxDemoContentSize = 8 * 1024 * 1024 // 8MB
	maxDemoItemCount   = 500
)

type item struct {
	ID       string
	Name     string
	MimeType string
	ParentID string
	Trashed  bool
	Content  []byte
}

// MemoryAdapter implements adapter.Drive on an in-process map. Items keep
// insertion order so "first match" lookups are deterministic.
type MemoryAdapter struct {
	mu    sync.RWMutex
	items map[string]*item
	order []string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{items: make(map[string]*item)}
}

func parentOrRoot(parentID string) string {
	if parentID == "" {
		return adapter.RootFolderID
	}
	return parentID
}

func (m *MemoryAdapter) add(it *item) error {
	if len(m.items) >= maxDemoItemCount {
		return &adapter.OperationError{Op: "create", Message: "Drive item limit reached",
			Err: fmt.Errorf("limit of %d items", maxDemoItemCount)}
	}
	m.items[it.ID] = it
	m.order = append(m.order, it.ID)
	return nil
}

func (m *MemoryAdapter) FindFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parent := parentOrRoot(parentID)
	for _, id := range m.order {
		it := m.items[id]
		if it.MimeType == adapter.FolderMimeType && !it.Trashed && it.ParentID == parent && it.Name == name {
			return &adapter.Folder{ID: it.ID, Name: it.Name}, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) CreateFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := &item{
		ID:       uuid.New().String(),
		Name:     name,
		MimeType: adapter.FolderMimeType,
		ParentID: parentOrRoot(parentID),
	}
	if err := m.add(it); err != nil {
		return nil, err
	}
	return &adapter.Folder{ID: it.ID, Name: it.Name}, nil
}

func (m *MemoryAdapter) UploadFile(ctx context.Context, content io.Reader, fileName, mimeType, folderID string) (*adapter.RemoteFile, error) {
	data, err := io.ReadAll(io.LimitReader(content, maxDemoContentSize+1))
	if err != nil {
		return nil, &adapter.OperationError{Op: "upload file", Message: "Failed to upload file", Err: err}
	}
	if len(data) > maxDemoContentSize {
		return nil, &adapter.OperationError{Op: "upload file", Message: "Failed to upload file",
			Err: fmt.Errorf("content exceeds %d bytes", maxDemoContentSize)}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[folderID]; !ok && folderID != adapter.RootFolderID {
		return nil, &adapter.OperationError{Op: "upload file", Message: "Failed to upload file",
			Err: fmt.Errorf("%w: parent %s", adapter.ErrNotFound, folderID)}
	}

	it := &item{
		ID:       uuid.New().String(),
		Name:     fileName,
		MimeType: mimeType,
		ParentID: folderID,
		Content:  data,
	}
	if err := m.add(it); err != nil {
		return nil, err
	}
	return toRemoteFile(it), nil
}

func (m *MemoryAdapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parent := parentOrRoot(parentID)
	folders := []adapter.Folder{}
	for _, id := range m.order {
		it := m.items[id]
		if it.MimeType != adapter.FolderMimeType || it.Trashed || it.ParentID != parent {
			continue
		}
		folders = append(folders, adapter.Folder{ID: it.ID, Name: it.Name})
		if len(folders) == adapter.PageSize {
			break
		}
	}
	return folders, nil
}

func (m *MemoryAdapter) ListFiles(ctx context.Context, parentID string) ([]adapter.RemoteFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := []adapter.RemoteFile{}
	for _, id := range m.order {
		it := m.items[id]
		if !strings.HasPrefix(it.MimeType, "image/") || it.Trashed {
			continue
		}
		if parentID != "" && it.ParentID != parentID {
			continue
		}
		files = append(files, *toRemoteFile(it))
		if len(files) == adapter.PageSize {
			break
		}
	}
	return files, nil
}

func (m *MemoryAdapter) GetFileContent(ctx context.Context, fileID string) (*adapter.FileContent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[fileID]
	if !ok || it.MimeType == adapter.FolderMimeType {
		return nil, &adapter.OperationError{Op: "get file content", Message: "Failed to get file content",
			Err: fmt.Errorf("%w: %s", adapter.ErrNotFound, fileID)}
	}
	return &adapter.FileContent{
		Body:          io.NopCloser(bytes.NewReader(it.Content)),
		ContentType:   it.MimeType,
		ContentLength: int64(len(it.Content)),
	}, nil
}

// Trash marks an item as trashed. It stays stored but is hidden from searches and listings.
func (m *MemoryAdapter) Trash(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return adapter.ErrNotFound
	}
	it.Trashed = true
	return nil
}

func toRemoteFile(it *item) *adapter.RemoteFile {
	return &adapter.RemoteFile{
		ID:             it.ID,
		Name:           it.Name,
		MimeType:       it.MimeType,
		ThumbnailLink:  "memory://thumbnail/" + it.ID,
		WebContentLink: "memory://content/" + it.ID,
	}
}

// Provider implements adapter.DriveProvider. Every access token maps to the
// same drive, so a token refresh does not lose local dev data.
type Provider struct {
	drive *MemoryAdapter
}

func NewProvider() *Provider {
	return &Provider{drive: NewMemoryAdapter()}
}

func (p *Provider) ForAccessToken(ctx context.Context, accessToken string) (adapter.Drive, error) {
	return p.drive, nil
}

// Drive returns the shared in-memory drive.
func (p *Provider) Drive() *MemoryAdapter {
	return p.drive
}
