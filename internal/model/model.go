package model

import "time"

// Credential is the per-user OAuth record for the Drive connection.
// There is at most one per UserID.
type Credential struct {
	UserID       string    `json:"user_id" dynamodbav:"user_id"`
	AccessToken  string    `json:"access_token" dynamodbav:"access_token"`
	RefreshToken string    `json:"refresh_token" dynamodbav:"refresh_token"` // Only set on authorization
	ExpiresAt    time.Time `json:"expires_at" dynamodbav:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// ExpiresWithin reports whether the access token is expired at now+buffer.
func (c *Credential) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(buffer))
}

// FolderLock is an advisory lock on a folder path, expired by DynamoDB TTL.
type FolderLock struct {
	Key       string `json:"lock_key" dynamodbav:"lock_key"`
	Owner     string `json:"owner" dynamodbav:"owner"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}
