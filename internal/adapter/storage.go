package adapter

import (
	"context"
	"io"
)

// FolderMimeType is the Drive mime type that marks a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// RootFolderID is the alias Drive uses for the top of "My Drive".
const RootFolderID = "root"

// PageSize caps every listing. Callers only ever see the first page.
const PageSize = 100

// Folder is a remote folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteFile is a remote (image) file.
type RemoteFile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	ThumbnailLink  string `json:"thumbnailLink,omitempty"`
	WebContentLink string `json:"webContentLink,omitempty"`
}

// FileContent is a raw download. The caller must close Body.
type FileContent struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Drive defines the operations the sync service needs from the remote drive.
// An implementation is bound to one user's live access token.
type Drive interface {
	// FindFolder returns the first un-trashed folder called name under parentID,
	// or nil when there is none. An empty parentID means the drive root.
	FindFolder(ctx context.Context, name, parentID string) (*Folder, error)

	// CreateFolder creates a folder called name under parentID.
	CreateFolder(ctx context.Context, name, parentID string) (*Folder, error)

	// UploadFile uploads content as fileName into folderID.
	UploadFile(ctx context.Context, content io.Reader, fileName, mimeType, folderID string) (*RemoteFile, error)

	// ListFolders lists folders under parentID (root when empty), first page only.
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)

	// ListFiles lists image files, scoped to parentID when given, first page only.
	ListFiles(ctx context.Context, parentID string) ([]RemoteFile, error)

	// GetFileContent downloads the raw bytes of a file.
	GetFileContent(ctx context.Context, fileID string) (*FileContent, error)
}
