package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/auth"
	"github.com/shutterhaus/drivesync/internal/folders"
	"github.com/shutterhaus/drivesync/internal/logging"
)

// TokenManager is the part of auth.AuthService the handlers use.
type TokenManager interface {
	AuthURL(redirectURI string) string
	Connect(ctx context.Context, userID, code, redirectURI string) error
	ValidAccessToken(ctx context.Context, userID string) (auth.Grant, error)
	Connected(ctx context.Context, userID string) (bool, error)
	Disconnect(ctx context.Context, userID string) error
}

// DriveHandler implements the Google Drive actions for an authenticated user.
//
// Drive-touching actions return auth.ErrNotConnected when the user has no
// usable credential; any other returned error is unexpected and left to the
// caller to turn into a 500.
type DriveHandler struct {
	tokens         TokenManager
	provider       adapter.DriveProvider
	resolver       *folders.Resolver
	maxUploadBytes int64
}

// NewDriveHandler creates a new DriveHandler.
func NewDriveHandler(tokens TokenManager, provider adapter.DriveProvider, resolver *folders.Resolver, maxUploadBytes int64) *DriveHandler {
	return &DriveHandler{
		tokens:         tokens,
		provider:       provider,
		resolver:       resolver,
		maxUploadBytes: maxUploadBytes,
	}
}

// Handle runs action for userID.
func (h *DriveHandler) Handle(ctx context.Context, action Action, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch action {
	case ActionAuthURL:
		return h.AuthURL(ctx, userID, req)
	case ActionCallback:
		return h.Callback(ctx, userID, req)
	case ActionStatus:
		return h.Status(ctx, userID, req)
	case ActionListFolders:
		return h.ListFolders(ctx, userID, req)
	case ActionListFiles:
		return h.ListFiles(ctx, userID, req)
	case ActionUpload:
		return h.Upload(ctx, userID, req)
	case ActionGetFile:
		return h.GetFile(ctx, userID, req)
	case ActionDisconnect:
		return h.Disconnect(ctx, userID, req)
	}
	return Error(http.StatusBadRequest, "Unknown action"), nil
}

// drive binds a Drive to the user's live access token, refreshing it if needed.
func (h *DriveHandler) drive(ctx context.Context, userID string) (adapter.Drive, error) {
	grant, err := h.tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if grant.Refreshed {
		logging.FromContext(ctx).Info("access token refreshed", slog.Time("expires_at", grant.ExpiresAt))
	}
	return h.provider.ForAccessToken(ctx, grant.AccessToken)
}

// AuthURL returns the Google consent URL for the caller's redirect URI.
func (h *DriveHandler) AuthURL(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	url := h.tokens.AuthURL(req.QueryStringParameters["redirect_uri"])
	return JSON(http.StatusOK, map[string]string{"url": url})
}

// Callback exchanges the authorization code and stores the user's tokens.
func (h *DriveHandler) Callback(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	code := req.QueryStringParameters["code"]
	if code == "" {
		return Error(http.StatusBadRequest, "No code provided"), nil
	}

	err := h.tokens.Connect(ctx, userID, code, req.QueryStringParameters["redirect_uri"])
	switch {
	case errors.Is(err, auth.ErrExchangeFailed):
		logging.FromContext(ctx).Warn("token exchange failed", slog.Any("error", err))
		return Error(http.StatusBadRequest, "Failed to exchange code"), nil
	case err != nil:
		logging.FromContext(ctx).Error("saving tokens failed", slog.Any("error", err))
		return Error(http.StatusInternalServerError, "Failed to save tokens"), nil
	}
	return JSON(http.StatusOK, map[string]bool{"success": true})
}

// Status reports whether the user has a usable Drive connection.
func (h *DriveHandler) Status(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	connected, err := h.tokens.Connected(ctx, userID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return JSON(http.StatusOK, map[string]bool{"connected": connected})
}

// ListFolders lists folders under parent_id, or the drive root.
func (h *DriveHandler) ListFolders(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	d, err := h.drive(ctx, userID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	list, err := d.ListFolders(ctx, req.QueryStringParameters["parent_id"])
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if list == nil {
		list = []adapter.Folder{}
	}
	return JSON(http.StatusOK, map[string]any{"files": list})
}

// ListFiles lists images, scoped to folder_id when given.
func (h *DriveHandler) ListFiles(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	d, err := h.drive(ctx, userID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	list, err := d.ListFiles(ctx, req.QueryStringParameters["folder_id"])
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	if list == nil {
		list = []adapter.RemoteFile{}
	}
	return JSON(http.StatusOK, map[string]any{"files": list})
}

// Upload stores the posted file under Photography/{category}[/{client}[/{package}]].
func (h *DriveHandler) Upload(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	d, err := h.drive(ctx, userID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	form, err := parseUploadForm(req, h.maxUploadBytes)
	switch {
	case errors.Is(err, errTooLarge):
		return Error(http.StatusRequestEntityTooLarge, "File too large"), nil
	case errors.Is(err, errInvalidForm):
		logging.FromContext(ctx).Warn("rejecting upload body", slog.Any("error", err))
		return Error(http.StatusBadRequest, "Invalid multipart body"), nil
	case err != nil:
		return events.APIGatewayProxyResponse{}, err
	}
	if form.File == nil {
		return Error(http.StatusBadRequest, "No file provided"), nil
	}

	path := folders.Path{
		Category:    form.Category,
		ClientName:  form.ClientName,
		PackageType: form.PackageType,
	}
	folder, err := h.resolver.Resolve(ctx, d, userID, path)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	file, err := d.UploadFile(ctx, bytes.NewReader(form.File.Data), form.File.Name, form.File.MimeType, folder.ID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	logging.FromContext(ctx).Info("file uploaded",
		slog.String("file_id", file.ID),
		slog.String("folder_id", folder.ID),
		slog.Int("bytes", len(form.File.Data)),
	)
	return JSON(http.StatusOK, map[string]any{"success": true, "file": file})
}

// GetFile returns the raw bytes of file_id with the remote Content-Type.
// The body is base64-encoded as API Gateway requires for binary payloads.
func (h *DriveHandler) GetFile(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	d, err := h.drive(ctx, userID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	fileID := req.QueryStringParameters["file_id"]
	if fileID == "" {
		return Error(http.StatusBadRequest, "No file ID provided"), nil
	}

	content, err := d.GetFileContent(ctx, fileID)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	defer content.Body.Close()

	data, err := io.ReadAll(content.Body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("failed to read file content: %w", err)
	}

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(data),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type": contentType,
		},
	}, nil
}

// Disconnect forgets the user's Drive credentials. It succeeds when there were none.
func (h *DriveHandler) Disconnect(ctx context.Context, userID string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.tokens.Disconnect(ctx, userID); err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return JSON(http.StatusOK, map[string]bool{"success": true})
}
