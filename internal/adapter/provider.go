package adapter

import (
	"context"
)

// DriveProvider binds a Drive to an access token.
type DriveProvider interface {
	// ForAccessToken returns a Drive that authenticates with accessToken.
	ForAccessToken(ctx context.Context, accessToken string) (Drive, error)
}
