package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shutterhaus/drivesync/internal/model"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect initialises a PostgreSQL connection pool using the provided database URL.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// PostgresStore stores credentials in the google_drive_tokens table.
type PostgresStore struct {
	db    DB
	table string
	now   func() time.Time
}

// NewPostgresStore constructs a credential store backed by PostgreSQL.
func NewPostgresStore(db DB, table string) *PostgresStore {
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
		now:   time.Now,
	}
}

// EnsureSchema creates the table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            user_id       TEXT PRIMARY KEY,
            access_token  TEXT NOT NULL,
            refresh_token TEXT NOT NULL DEFAULT '',
            expires_at    TIMESTAMPTZ NOT NULL,
            updated_at    TIMESTAMPTZ NOT NULL
        )
    `, s.table))
	if err != nil {
		return fmt.Errorf("create credential table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*model.Credential, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT user_id, access_token, refresh_token, expires_at, updated_at
        FROM %s
        WHERE user_id = $1
    `, s.table), userID)

	var cred model.Credential
	if err := row.Scan(&cred.UserID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select credential: %w", err)
	}
	cred.ExpiresAt = cred.ExpiresAt.UTC()
	cred.UpdatedAt = cred.UpdatedAt.UTC()
	return &cred, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, cred model.Credential) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %[1]s (user_id, access_token, refresh_token, expires_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id)
        DO UPDATE SET access_token = EXCLUDED.access_token,
                      refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), %[1]s.refresh_token),
                      expires_at = EXCLUDED.expires_at,
                      updated_at = EXCLUDED.updated_at
    `, s.table), cred.UserID, cred.AccessToken, cred.RefreshToken, cred.ExpiresAt.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET access_token = $2, expires_at = $3, updated_at = $4
        WHERE user_id = $1
    `, s.table), userID, accessToken, expiresAt.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("update access token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s
        WHERE user_id = $1
    `, s.table), userID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
