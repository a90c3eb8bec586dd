package app

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/adapter/googledrive"
	"github.com/shutterhaus/drivesync/internal/adapter/memory"
	"github.com/shutterhaus/drivesync/internal/auth"
	"github.com/shutterhaus/drivesync/internal/config"
	"github.com/shutterhaus/drivesync/internal/crypto"
	"github.com/shutterhaus/drivesync/internal/folders"
	"github.com/shutterhaus/drivesync/internal/handler"
	"github.com/shutterhaus/drivesync/internal/lock"
	"github.com/shutterhaus/drivesync/internal/secret"
	"github.com/shutterhaus/drivesync/internal/tokenstore"
)

const devSessionSecret = "default-dev-secret"

// NewApp builds the production object graph described by cfg.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	// ---------- Secret Resolver ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		logger.Info("using EnvResolver (DEV_MODE=true)")
	} else {
		resolver = secret.NewCachedResolver(secret.NewChainResolver(
			secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)),
			secret.NewEnvResolver(),
		))
	}

	googleClientSecret, err := resolver.GetSecret(ctx, cfg.GoogleClientSecretParam)
	if err != nil {
		logger.Warn("failed to resolve Google client secret; code exchange will fail", slog.Any("error", err))
	}

	sessionSecret, err := resolver.GetSecret(ctx, cfg.SessionSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("resolve session secret: %w", err)
		}
		logger.Warn("failed to resolve session secret, using dev default", slog.Any("error", err))
		sessionSecret = devSessionSecret
	}

	originSecret := ""
	if !cfg.DevMode {
		originSecret, err = resolver.GetSecret(ctx, cfg.OriginVerifySecretParam)
		if err != nil {
			logger.Warn("origin verification disabled", slog.Any("error", err))
			originSecret = ""
		}
	}

	// ---------- Token Store ----------
	var closers []func()
	var store tokenstore.Store
	switch cfg.TokenStore {
	case config.StoreDynamoDB:
		store = tokenstore.NewDynamoStore(dynamoClient, cfg.DriveTokensTable)
	case config.StorePostgres:
		pool, err := tokenstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		pg := tokenstore.NewPostgresStore(pool, cfg.DriveTokensTable)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		store = pg
	default:
		store = tokenstore.NewMemoryStore()
	}

	var encryptor crypto.Encryptor
	if cfg.DevMode {
		encryptor = crypto.NewMockEncryptor()
	} else {
		encryptor = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}
	store = tokenstore.NewEncryptedStore(store, encryptor)
	logger.Info("token store ready", slog.String("backend", cfg.TokenStore), slog.Bool("kms", !cfg.DevMode))

	// OAuth2 Config. Credentials go in the form body so a failed exchange is a
	// single request with no alternate auth-style retry.
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: googleClientSecret,
		Scopes:       []string{auth.DriveScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   google.Endpoint.AuthURL,
			TokenURL:  google.Endpoint.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	authService := auth.NewAuthService(oauthConfig, store)

	// ---------- Drive ----------
	var provider adapter.DriveProvider
	if cfg.DriveBackend == config.DriveMemory {
		provider = memory.NewProvider()
		logger.Info("using in-memory drive (DRIVE_BACKEND=memory)")
	} else {
		provider = googledrive.NewProvider()
	}

	var folderOpts []folders.Option
	if cfg.FolderLocks {
		var locker lock.Locker
		if cfg.DevMode {
			locker = lock.NewMemoryLocker()
		} else {
			locker = lock.NewLockManager(dynamoClient, cfg.FolderLocksTable)
		}
		folderOpts = append(folderOpts, folders.WithLocker(locker, cfg.FolderLockWait))
		logger.Info("folder locks enabled", slog.Duration("wait", cfg.FolderLockWait))
	}

	app := New(Options{
		Sessions:           handler.NewSessionVerifier(sessionSecret, cfg.SessionAudience),
		Tokens:             authService,
		Provider:           provider,
		Resolver:           folders.NewResolver(cfg.RootFolderName, cfg.DefaultCategory, folderOpts...),
		MaxUploadBytes:     cfg.MaxUploadBytes,
		AllowedOrigin:      cfg.AllowedOrigin,
		OriginVerifySecret: originSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		Logger:             logger,
	})
	app.closers = closers
	return app, nil
}
