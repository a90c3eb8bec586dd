package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderFields = "files(id, name)"
	fileFields   = "files(id, name, mimeType, thumbnailLink, webContentLink)"
)

// escapeQuery escapes a literal for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func parentOrRoot(parentID string) string {
	if parentID == "" {
		return adapter.RootFolderID
	}
	return parentID
}

// folderQuery matches an un-trashed folder by exact name under a parent.
func folderQuery(name, parentID string) string {
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(name), adapter.FolderMimeType, escapeQuery(parentOrRoot(parentID)))
}

// listFoldersQuery matches every un-trashed folder under a parent.
func listFoldersQuery(parentID string) string {
	return fmt.Sprintf("mimeType = '%s' and '%s' in parents and trashed = false",
		adapter.FolderMimeType, escapeQuery(parentOrRoot(parentID)))
}

// listImagesQuery matches un-trashed images, under parentID when one is given.
func listImagesQuery(parentID string) string {
	q := "mimeType contains 'image/' and trashed = false"
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(parentID))
	}
	return q
}

// DriveAdapter implements adapter.Drive for Google Drive.
type DriveAdapter struct {
	service *drive.Service
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client carrying the user's access token.
func NewDriveAdapter(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*DriveAdapter, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv}, nil
}

// FindFolder returns the first matching folder in the service's default order.
func (d *DriveAdapter) FindFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	r, err := d.service.Files.List().
		Q(folderQuery(name, parentID)).
		Fields(folderFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("find folder", "Failed to search folders", err)
	}
	if len(r.Files) == 0 {
		return nil, nil
	}
	return &adapter.Folder{ID: r.Files[0].Id, Name: r.Files[0].Name}, nil
}

// CreateFolder creates a new folder.
func (d *DriveAdapter) CreateFolder(ctx context.Context, name, parentID string) (*adapter.Folder, error) {
	f := &drive.File{
		Name:     name,
		MimeType: adapter.FolderMimeType,
		Parents:  []string{parentOrRoot(parentID)},
	}

	res, err := d.service.Files.Create(f).
		Fields("id, name").
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("create folder", "Failed to create folder", err)
	}
	return &adapter.Folder{ID: res.Id, Name: res.Name}, nil
}

// UploadFile performs a multipart upload of content into folderID.
func (d *DriveAdapter) UploadFile(ctx context.Context, content io.Reader, fileName, mimeType, folderID string) (*adapter.RemoteFile, error) {
	f := &drive.File{
		Name:    fileName,
		Parents: []string{folderID},
	}

	var media []googleapi.MediaOption
	if mimeType != "" {
		media = append(media, googleapi.ContentType(mimeType))
	}

	res, err := d.service.Files.Create(f).
		Media(content, media...).
		Fields("id, name, mimeType, thumbnailLink, webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("upload file", "Failed to upload file", err)
	}
	return toRemoteFile(res), nil
}

// ListFolders lists folders directly under parentID.
func (d *DriveAdapter) ListFolders(ctx context.Context, parentID string) ([]adapter.Folder, error) {
	r, err := d.service.Files.List().
		Q(listFoldersQuery(parentID)).
		Fields(folderFields).
		PageSize(adapter.PageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("list folders", "Failed to list folders", err)
	}

	folders := make([]adapter.Folder, 0, len(r.Files))
	for _, f := range r.Files {
		folders = append(folders, adapter.Folder{ID: f.Id, Name: f.Name})
	}
	return folders, nil
}

// ListFiles lists images, optionally restricted to one folder.
func (d *DriveAdapter) ListFiles(ctx context.Context, parentID string) ([]adapter.RemoteFile, error) {
	r, err := d.service.Files.List().
		Q(listImagesQuery(parentID)).
		Fields(fileFields).
		PageSize(adapter.PageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("list files", "Failed to list files", err)
	}

	files := make([]adapter.RemoteFile, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, *toRemoteFile(f))
	}
	return files, nil
}

// GetFileContent downloads a file. The response body is handed back unread.
func (d *DriveAdapter) GetFileContent(ctx context.Context, fileID string) (*adapter.FileContent, error) {
	resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, opError("get file content", "Failed to get file content", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &adapter.FileContent{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

func toRemoteFile(f *drive.File) *adapter.RemoteFile {
	return &adapter.RemoteFile{
		ID:             f.Id,
		Name:           f.Name,
		MimeType:       f.MimeType,
		ThumbnailLink:  f.ThumbnailLink,
		WebContentLink: f.WebContentLink,
	}
}

func opError(op, message string, err error) error {
	if isNotFound(err) {
		err = fmt.Errorf("%w: %v", adapter.ErrNotFound, err)
	}
	return &adapter.OperationError{Op: op, Message: message, Err: err}
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}
