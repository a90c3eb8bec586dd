package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"

	"github.com/shutterhaus/drivesync/internal/logging"
	"github.com/shutterhaus/drivesync/internal/model"
	"github.com/shutterhaus/drivesync/internal/tokenstore"
)

// ExpiryBuffer is how far ahead of its expiry an access token is treated as expired.
const ExpiryBuffer = 5 * time.Minute

// DriveScope is the only scope requested: access to files this app created or opened.
const DriveScope = drive.DriveFileScope

var (
	// ErrNotConnected means the user has no usable Drive credential.
	ErrNotConnected = errors.New("not connected to Google Drive")
	// ErrExchangeFailed means the provider rejected the authorization code.
	ErrExchangeFailed = errors.New("failed to exchange code")
	// ErrRefreshFailed means the provider rejected the refresh token.
	ErrRefreshFailed = errors.New("failed to refresh token")
)

// Grant is a live access token for one user.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
	// Refreshed reports whether the token was obtained by a refresh during this call.
	Refreshed bool
}

// AuthService handles the OAuth2 flow and keeps each user's access token fresh.
type AuthService struct {
	oauthConfig *oauth2.Config
	store       tokenstore.Store
	now         func() time.Time
}

// NewAuthService creates a new AuthService.
// The oauthConfig should be constructed by the caller; its RedirectURL is
// replaced per request by the caller-supplied redirect URI.
func NewAuthService(oauthConfig *oauth2.Config, store tokenstore.Store) *AuthService {
	return &AuthService{
		oauthConfig: oauthConfig,
		store:       store,
		now:         time.Now,
	}
}

// configFor returns a copy of the OAuth2 config bound to redirectURI.
func (s *AuthService) configFor(redirectURI string) *oauth2.Config {
	cfg := *s.oauthConfig
	cfg.RedirectURL = redirectURI
	return &cfg
}

// AuthURL returns the consent URL. Offline access and a forced consent prompt
// make the provider issue a refresh token every time.
func (s *AuthService) AuthURL(redirectURI string) string {
	return s.configFor(redirectURI).AuthCodeURL("", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges an authorization code and stores the resulting credential.
func (s *AuthService) Connect(ctx context.Context, userID, code, redirectURI string) error {
	token, err := s.configFor(redirectURI).Exchange(ctx, code)
	if err != nil {
		logging.FromContext(ctx).Error("token exchange failed", slog.String("user_id", userID), slog.String("error", describe(err)))
		return fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	cred := model.Credential{
		UserID:       userID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    s.expiryOf(token),
	}
	if err := s.store.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	logging.FromContext(ctx).Info("drive connected", slog.String("user_id", userID), slog.Bool("has_refresh_token", token.RefreshToken != ""))
	return nil
}

// ValidAccessToken returns an access token valid for at least ExpiryBuffer,
// refreshing it first when needed. A user with no record, or with an expired
// record and no refresh token, gets ErrNotConnected.
func (s *AuthService) ValidAccessToken(ctx context.Context, userID string) (Grant, error) {
	cred, err := s.store.Get(ctx, userID)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return Grant{}, ErrNotConnected
	}
	if err != nil {
		return Grant{}, fmt.Errorf("failed to load credential: %w", err)
	}

	if !cred.ExpiresWithin(s.now(), ExpiryBuffer) {
		return Grant{AccessToken: cred.AccessToken, ExpiresAt: cred.ExpiresAt}, nil
	}

	if cred.RefreshToken == "" {
		logging.FromContext(ctx).Warn("access token expired and no refresh token stored", slog.String("user_id", userID))
		return Grant{}, ErrNotConnected
	}

	refreshed, err := s.Refresh(ctx, cred)
	if err != nil {
		return Grant{}, err
	}
	return Grant{AccessToken: refreshed.AccessToken, ExpiresAt: refreshed.ExpiresAt, Refreshed: true}, nil
}

// Refresh trades the stored refresh token for a new access token and persists
// only the access token and its expiry. It is never retried.
func (s *AuthService) Refresh(ctx context.Context, cred *model.Credential) (*model.Credential, error) {
	logger := logging.FromContext(ctx).With(slog.String("user_id", cred.UserID))
	logger.Info("token expired, refreshing")

	token, err := s.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		logger.Error("token refresh failed", slog.String("error", describe(err)))
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	expiresAt := s.expiryOf(token)
	if err := s.store.UpdateAccessToken(ctx, cred.UserID, token.AccessToken, expiresAt); err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	updated := *cred
	updated.AccessToken = token.AccessToken
	updated.ExpiresAt = expiresAt
	return &updated, nil
}

// Disconnect forgets the user's credential. It does not revoke it at the provider.
func (s *AuthService) Disconnect(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	logging.FromContext(ctx).Info("drive disconnected", slog.String("user_id", userID))
	return nil
}

// Connected reports whether a valid access token can be produced for the user.
// A failed refresh is returned as an error, not as false.
func (s *AuthService) Connected(ctx context.Context, userID string) (bool, error) {
	_, err := s.ValidAccessToken(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// expiryOf returns the absolute expiry of a token. A response without
// expires_in is treated as already expired.
func (s *AuthService) expiryOf(token *oauth2.Token) time.Time {
	if token.Expiry.IsZero() {
		return s.now().UTC()
	}
	return token.Expiry.UTC()
}

// describe includes the provider's response body for token endpoint errors.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return fmt.Sprintf("status %d: %s", re.Response.StatusCode, string(re.Body))
	}
	return err.Error()
}
