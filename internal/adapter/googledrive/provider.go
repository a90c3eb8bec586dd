package googledrive

import (
	"context"
	"fmt"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// Provider implements adapter.DriveProvider for Google Drive.
type Provider struct {
	opts []option.ClientOption
}

// NewProvider creates a new Google Drive provider. Extra client options are
// applied to every Drive service it builds (tests use option.WithEndpoint).
func NewProvider(opts ...option.ClientOption) *Provider {
	return &Provider{opts: opts}
}

// ForAccessToken returns a DriveAdapter that sends accessToken as its bearer credential.
func (p *Provider) ForAccessToken(ctx context.Context, accessToken string) (adapter.Drive, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	storage, err := NewDriveAdapter(ctx, client, p.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return storage, nil
}
