package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token store backends.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Drive backends.
const (
	DriveGoogle = "google"
	DriveMemory = "memory"
)

// Config captures the runtime configuration for the drivesync service.
type Config struct {
	DevMode  bool
	Port     int
	LogLevel string

	GoogleClientID          string
	GoogleClientSecretParam string
	SessionSecretParam      string
	SessionAudience         string
	OriginVerifySecretParam string

	TokenStore       string
	DriveTokensTable string
	DatabaseURL      string
	KMSKeyID         string

	DriveBackend string

	FolderLocks      bool
	FolderLocksTable string
	FolderLockWait   time.Duration

	AllowedOrigin      string
	MaxUploadBytes     int64
	RateLimitPerMinute int
	RateLimitBurst     int

	RootFolderName  string
	DefaultCategory string
}

// Load reads configuration from environment variables. DEV_MODE switches the
// storage and drive defaults to their in-memory variants.
func Load() (Config, error) {
	dev := getBool("DEV_MODE", false)

	storeDefault, driveDefault := StoreDynamoDB, DriveGoogle
	if dev {
		storeDefault, driveDefault = StoreMemory, DriveMemory
	}

	cfg := Config{
		DevMode:  dev,
		Port:     getInt("PORT", 8080),
		LogLevel: getString("LOG_LEVEL", "info"),

		GoogleClientID:          getString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecretParam: getString("GOOGLE_CLIENT_SECRET_PARAM", "/drivesync/google-client-secret"),
		SessionSecretParam:      getString("SESSION_SECRET_PARAM", "/drivesync/session-jwt-secret"),
		SessionAudience:         getString("SESSION_AUDIENCE", "authenticated"),
		OriginVerifySecretParam: getString("ORIGIN_VERIFY_SECRET_PARAM", "/drivesync/origin-verify-secret"),

		TokenStore:       strings.ToLower(getString("TOKEN_STORE", storeDefault)),
		DriveTokensTable: getString("DRIVE_TOKENS_TABLE", "google_drive_tokens"),
		DatabaseURL:      getString("DATABASE_URL", ""),
		KMSKeyID:         getString("KMS_KEY_ID", "alias/drivesync-token-key"),

		DriveBackend: strings.ToLower(getString("DRIVE_BACKEND", driveDefault)),

		FolderLocks:      getBool("FOLDER_LOCKS", false),
		FolderLocksTable: getString("FOLDER_LOCKS_TABLE", "DriveFolderLocks"),
		FolderLockWait:   getDuration("FOLDER_LOCK_WAIT", 10*time.Second),

		AllowedOrigin:      getString("ALLOWED_ORIGIN", "*"),
		MaxUploadBytes:     int64(getInt("MAX_UPLOAD_BYTES", 20*1024*1024)),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 20),

		RootFolderName:  getString("ROOT_FOLDER_NAME", "Photography"),
		DefaultCategory: getString("DEFAULT_CATEGORY", "Uncategorized"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	switch c.TokenStore {
	case StoreDynamoDB, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when TOKEN_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore)
	}

	switch c.DriveBackend {
	case DriveGoogle, DriveMemory:
	default:
		return fmt.Errorf("unknown DRIVE_BACKEND %q", c.DriveBackend)
	}

	if c.RootFolderName == "" {
		return fmt.Errorf("ROOT_FOLDER_NAME must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
