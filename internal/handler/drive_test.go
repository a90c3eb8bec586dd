package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/adapter/memory"
	"github.com/shutterhaus/drivesync/internal/auth"
	"github.com/shutterhaus/drivesync/internal/folders"
	"github.com/shutterhaus/drivesync/internal/handler"
)

// fakeTokens is a TokenManager whose answers are set per test.
type fakeTokens struct {
	connected   bool
	validErr    error
	connectErr  error
	validCalls  int
	connectCode string
	disconnects int
}

func (f *fakeTokens) AuthURL(redirectURI string) string {
	return "https://accounts.example.com/auth?redirect_uri=" + redirectURI
}

func (f *fakeTokens) Connect(ctx context.Context, userID, code, redirectURI string) error {
	f.connectCode = code
	return f.connectErr
}

func (f *fakeTokens) ValidAccessToken(ctx context.Context, userID string) (auth.Grant, error) {
	f.validCalls++
	if f.validErr != nil {
		return auth.Grant{}, f.validErr
	}
	if !f.connected {
		return auth.Grant{}, auth.ErrNotConnected
	}
	return auth.Grant{AccessToken: "access-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeTokens) Connected(ctx context.Context, userID string) (bool, error) {
	if f.validErr != nil {
		return false, f.validErr
	}
	return f.connected, nil
}

func (f *fakeTokens) Disconnect(ctx context.Context, userID string) error {
	f.disconnects++
	return nil
}

func newTestHandler(tokens *fakeTokens) (*handler.DriveHandler, *memory.MemoryAdapter) {
	provider := memory.NewProvider()
	resolver := folders.NewResolver("Photography", "Uncategorized")
	return handler.NewDriveHandler(tokens, provider, resolver, 1024*1024), provider.Drive()
}

func makeRequest(query map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		QueryStringParameters: query,
	}
}

type filePart struct {
	name        string
	contentType string
	data        []byte
}

func makeUploadRequest(t *testing.T, fields map[string]string, file *filePart) events.APIGatewayProxyRequest {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, file.name))
		if file.contentType != "" {
			h.Set("Content-Type", file.contentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart failed: %v", err)
		}
		part.Write(file.data)
	}
	w.Close()

	return events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Headers:               map[string]string{"Content-Type": w.FormDataContentType()},
		QueryStringParameters: map[string]string{"action": "upload"},
		Body:                  base64.StdEncoding.EncodeToString(body.Bytes()),
		IsBase64Encoded:       true,
	}
}

func decode(t *testing.T, resp events.APIGatewayProxyResponse) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		t.Fatalf("Response is not JSON: %v (%s)", err, resp.Body)
	}
	return out
}

// folderAt walks names from the drive root.
func folderAt(t *testing.T, d adapter.Drive, names ...string) *adapter.Folder {
	t.Helper()
	parent := ""
	var f *adapter.Folder
	for _, name := range names {
		var err error
		f, err = d.FindFolder(context.Background(), name, parent)
		if err != nil || f == nil {
			t.Fatalf("Folder %q not found under %q: %v", name, parent, err)
		}
		parent = f.ID
	}
	return f
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestAuthURL(t *testing.T) {
	h, _ := newTestHandler(&fakeTokens{})

	resp, err := h.Handle(context.Background(), handler.ActionAuthURL, testUserID,
		makeRequest(map[string]string{"redirect_uri": "https://studio.example.com/admin"}))
	if err != nil {
		t.Fatalf("AuthURL failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := decode(t, resp)["url"]; !strings.Contains(got.(string), "studio.example.com") {
		t.Errorf("Expected redirect URI in url, got %v", got)
	}
}

func TestCallback(t *testing.T) {
	tests := []struct {
		name       string
		query      map[string]string
		connectErr error
		wantStatus int
		wantError  string
	}{
		{"missing code", map[string]string{}, nil, http.StatusBadRequest, "No code provided"},
		{"exchange failure", map[string]string{"code": "bad"}, fmt.Errorf("%w: invalid_grant", auth.ErrExchangeFailed), http.StatusBadRequest, "Failed to exchange code"},
		{"save failure", map[string]string{"code": "ok"}, errors.New("failed to save tokens: timeout"), http.StatusInternalServerError, "Failed to save tokens"},
		{"success", map[string]string{"code": "ok"}, nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := &fakeTokens{connectErr: tt.connectErr}
			h, _ := newTestHandler(tokens)

			resp, err := h.Handle(context.Background(), handler.ActionCallback, testUserID, makeRequest(tt.query))
			if err != nil {
				t.Fatalf("Callback returned error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("Expected %d, got %d (%s)", tt.wantStatus, resp.StatusCode, resp.Body)
			}
			body := decode(t, resp)
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
			if tt.wantError == "" && body["success"] != true {
				t.Errorf("Expected success, got %v", body)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	for _, connected := range []bool{true, false} {
		h, _ := newTestHandler(&fakeTokens{connected: connected})

		resp, err := h.Handle(context.Background(), handler.ActionStatus, testUserID, makeRequest(nil))
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if got := decode(t, resp)["connected"]; got != connected {
			t.Errorf("Expected connected=%v, got %v", connected, got)
		}
	}
}

func TestStatus_RefreshFailurePropagates(t *testing.T) {
	h, _ := newTestHandler(&fakeTokens{validErr: auth.ErrRefreshFailed})

	if _, err := h.Handle(context.Background(), handler.ActionStatus, testUserID, makeRequest(nil)); !errors.Is(err, auth.ErrRefreshFailed) {
		t.Errorf("Expected ErrRefreshFailed, got %v", err)
	}
}

func TestDriveActions_NotConnected(t *testing.T) {
	for _, action := range []handler.Action{handler.ActionListFolders, handler.ActionListFiles, handler.ActionUpload, handler.ActionGetFile} {
		h, _ := newTestHandler(&fakeTokens{connected: false})

		_, err := h.Handle(context.Background(), action, testUserID, makeRequest(map[string]string{"file_id": "x"}))
		if !errors.Is(err, auth.ErrNotConnected) {
			t.Errorf("%s: expected ErrNotConnected, got %v", action, err)
		}
	}
}

func TestListFolders(t *testing.T) {
	h, d := newTestHandler(&fakeTokens{connected: true})
	ctx := context.Background()
	root, _ := d.CreateFolder(ctx, "Photography", "")
	d.CreateFolder(ctx, "Homepage", root.ID)

	resp, err := h.Handle(ctx, handler.ActionListFolders, testUserID, makeRequest(nil))
	if err != nil {
		t.Fatalf("ListFolders failed: %v", err)
	}
	files := decode(t, resp)["files"].([]any)
	if len(files) != 1 || files[0].(map[string]any)["name"] != "Photography" {
		t.Errorf("Expected only the root-level folder, got %v", files)
	}

	resp, _ = h.Handle(ctx, handler.ActionListFolders, testUserID, makeRequest(map[string]string{"parent_id": root.ID}))
	files = decode(t, resp)["files"].([]any)
	if len(files) != 1 || files[0].(map[string]any)["name"] != "Homepage" {
		t.Errorf("Expected Homepage under the root folder, got %v", files)
	}
}

func TestListFiles_EmptyIsArray(t *testing.T) {
	h, _ := newTestHandler(&fakeTokens{connected: true})

	resp, err := h.Handle(context.Background(), handler.ActionListFiles, testUserID, makeRequest(nil))
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if resp.Body != `{"files":[]}` {
		t.Errorf("Expected empty files array, got %s", resp.Body)
	}
}

func TestUpload_PathConstruction(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		path   []string
	}{
		{"category only", map[string]string{"category": "Homepage"}, []string{"Photography", "Homepage"}},
		{"client", map[string]string{"category": "Client Galleries", "client_name": "Doe Wedding"}, []string{"Photography", "Client Galleries", "Doe Wedding"}},
		{"client and package", map[string]string{"category": "Client Galleries", "client_name": "Doe Wedding", "package_type": "Gold Package"}, []string{"Photography", "Client Galleries", "Doe Wedding", "Gold Package"}},
		{"package without client", map[string]string{"category": "Homepage", "package_type": "Gold Package"}, []string{"Photography", "Homepage"}},
		{"no category", map[string]string{}, []string{"Photography", "Uncategorized"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newTestHandler(&fakeTokens{connected: true})
			ctx := context.Background()

			req := makeUploadRequest(t, tt.fields, &filePart{name: "sunset.jpg", contentType: "image/jpeg", data: jpegHeader})
			resp, err := h.Handle(ctx, handler.ActionUpload, testUserID, req)
			if err != nil {
				t.Fatalf("Upload failed: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d (%s)", resp.StatusCode, resp.Body)
			}

			body := decode(t, resp)
			file := body["file"].(map[string]any)
			if body["success"] != true || file["name"] != "sunset.jpg" {
				t.Errorf("Unexpected response %v", body)
			}

			target := folderAt(t, d, tt.path...)
			files, _ := d.ListFiles(ctx, target.ID)
			if len(files) != 1 || files[0].ID != file["id"] {
				t.Errorf("Expected the file under %v, got %+v", tt.path, files)
			}
			if sub, _ := d.ListFolders(ctx, target.ID); len(sub) != 0 {
				t.Errorf("Expected no folders below %v, got %+v", tt.path, sub)
			}
		})
	}
}

func TestUpload_ReusesFolders(t *testing.T) {
	h, d := newTestHandler(&fakeTokens{connected: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := makeUploadRequest(t, map[string]string{"category": "Homepage"}, &filePart{name: fmt.Sprintf("%d.jpg", i), contentType: "image/jpeg", data: jpegHeader})
		if resp, err := h.Handle(ctx, handler.ActionUpload, testUserID, req); err != nil || resp.StatusCode != http.StatusOK {
			t.Fatalf("Upload %d failed: %v %+v", i, err, resp)
		}
	}

	roots, _ := d.ListFolders(ctx, "")
	if len(roots) != 1 {
		t.Fatalf("Expected one root folder, got %+v", roots)
	}
	files, _ := d.ListFiles(ctx, folderAt(t, d, "Photography", "Homepage").ID)
	if len(files) != 2 {
		t.Errorf("Expected both files in one folder, got %+v", files)
	}
}

func TestUpload_SniffsGenericMimeType(t *testing.T) {
	h, _ := newTestHandler(&fakeTokens{connected: true})

	req := makeUploadRequest(t, map[string]string{"category": "Homepage"}, &filePart{name: "raw", contentType: "application/octet-stream", data: jpegHeader})
	resp, err := h.Handle(context.Background(), handler.ActionUpload, testUserID, req)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if got := decode(t, resp)["file"].(map[string]any)["mimeType"]; got != "image/jpeg" {
		t.Errorf("Expected sniffed image/jpeg, got %v", got)
	}
}

func TestUpload_Rejections(t *testing.T) {
	h, d := newTestHandler(&fakeTokens{connected: true})
	ctx := context.Background()

	resp, err := h.Handle(ctx, handler.ActionUpload, testUserID, makeUploadRequest(t, map[string]string{"category": "Homepage"}, nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest || decode(t, resp)["error"] != "No file provided" {
		t.Errorf("Expected 400 No file provided, got %d %s (%v)", resp.StatusCode, resp.Body, err)
	}

	big := makeUploadRequest(t, nil, &filePart{name: "big.jpg", contentType: "image/jpeg", data: bytes.Repeat([]byte{1}, 2*1024*1024)})
	resp, err = h.Handle(ctx, handler.ActionUpload, testUserID, big)
	if err != nil || resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d (%v)", resp.StatusCode, err)
	}

	resp, err = h.Handle(ctx, handler.ActionUpload, testUserID, makeRequest(nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a non-multipart body, got %d (%v)", resp.StatusCode, err)
	}

	if roots, _ := d.ListFolders(ctx, ""); len(roots) != 0 {
		t.Errorf("Rejected uploads must not create folders, got %+v", roots)
	}
}

func TestGetFile(t *testing.T) {
	h, d := newTestHandler(&fakeTokens{connected: true})
	ctx := context.Background()
	f, _ := d.UploadFile(ctx, bytes.NewReader(jpegHeader), "a.jpg", "image/jpeg", adapter.RootFolderID)

	resp, err := h.Handle(ctx, handler.ActionGetFile, testUserID, makeRequest(map[string]string{"file_id": f.ID}))
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	if resp.Headers["Content-Type"] != "image/jpeg" || !resp.IsBase64Encoded {
		t.Errorf("Unexpected headers %v base64=%v", resp.Headers, resp.IsBase64Encoded)
	}
	data, _ := base64.StdEncoding.DecodeString(resp.Body)
	if !bytes.Equal(data, jpegHeader) {
		t.Errorf("Body mismatch: %v", data)
	}
}

func TestGetFile_Errors(t *testing.T) {
	h, _ := newTestHandler(&fakeTokens{connected: true})
	ctx := context.Background()

	resp, err := h.Handle(ctx, handler.ActionGetFile, testUserID, makeRequest(nil))
	if err != nil || resp.StatusCode != http.StatusBadRequest || decode(t, resp)["error"] != "No file ID provided" {
		t.Errorf("Expected 400 No file ID provided, got %d %s", resp.StatusCode, resp.Body)
	}

	_, err = h.Handle(ctx, handler.ActionGetFile, testUserID, makeRequest(map[string]string{"file_id": "missing"}))
	var opErr *adapter.OperationError
	if !errors.As(err, &opErr) || !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected OperationError wrapping ErrNotFound, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	tokens := &fakeTokens{}
	h, _ := newTestHandler(tokens)

	for i := 0; i < 2; i++ {
		resp, err := h.Handle(context.Background(), handler.ActionDisconnect, testUserID, makeRequest(nil))
		if err != nil || resp.StatusCode != http.StatusOK || resp.Body != `{"success":true}` {
			t.Fatalf("Disconnect %d: %d %s (%v)", i, resp.StatusCode, resp.Body, err)
		}
	}
	if tokens.validCalls != 0 {
		t.Errorf("Disconnect must not touch tokens, got %d calls", tokens.validCalls)
	}
}
