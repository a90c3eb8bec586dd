package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

var (
	errTooLarge    = errors.New("request body too large")
	errInvalidForm = errors.New("invalid multipart body")
)

// UploadedFile is the "file" part of an upload form.
type UploadedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// UploadForm is the parsed body of an upload request.
type UploadForm struct {
	File        *UploadedFile
	Category    string
	ClientName  string
	PackageType string
}

// requestBody returns the raw request body, decoding it when API Gateway
// delivered it base64-encoded.
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
	}
	return b, nil
}

func parseUploadForm(req events.APIGatewayProxyRequest, maxBytes int64) (*UploadForm, error) {
	mediaType, params, err := mime.ParseMediaType(Header(req, "Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, fmt.Errorf("%w: content type %q", errInvalidForm, Header(req, "Content-Type"))
	}

	body, err := requestBody(req)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, errTooLarge
	}

	form := &UploadForm{}
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidForm, err)
		}

		switch part.FormName() {
		case "file":
			if part.FileName() == "" && len(data) == 0 {
				continue
			}
			form.File = &UploadedFile{
				Name:     fileName(part),
				MimeType: partMimeType(part, data),
				Data:     data,
			}
		case "category":
			form.Category = strings.TrimSpace(string(data))
		case "client_name":
			form.ClientName = strings.TrimSpace(string(data))
		case "package_type":
			form.PackageType = strings.TrimSpace(string(data))
		}
	}
	return form, nil
}

func fileName(part *multipart.Part) string {
	if name := part.FileName(); name != "" {
		return name
	}
	return "upload"
}

// partMimeType trusts the part's declared type unless it is missing or generic,
// in which case the content is sniffed.
func partMimeType(part *multipart.Part, data []byte) string {
	ct := part.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		return http.DetectContentType(data)
	}
	return ct
}
