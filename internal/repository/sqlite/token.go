package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/repository"
)

// compile-time check that *DB implements repository.TokenRepository
var _ repository.TokenRepository = (*DB)(nil)

// LoadToken returns the persisted session token.
// Returns apperror.ErrNotFound if no token is stored.
func (db *DB) LoadToken(ctx context.Context) (string, error) {
	var token string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = ?`, repository.TokenKey,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperror.NotFound("token", repository.TokenKey)
		}
		return "", fmt.Errorf("sqlite: loading token: %w", err)
	}
	if token == "" {
		return "", apperror.NotFound("token", repository.TokenKey)
	}
	return token, nil
}

// SaveToken stores token under the fixed key, replacing any previous value.
//
// UPSERT:
// ON CONFLICT(key) DO UPDATE keeps a single row per key no matter how many
// times the user logs in.
func (db *DB) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return apperror.ValidationFailed("token", "token must not be empty")
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		repository.TokenKey, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving token: %w", err)
	}
	return nil
}

// ClearToken deletes the persisted token. Clearing an absent token is not an error.
func (db *DB) ClearToken(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM client_state WHERE key = ?`, repository.TokenKey,
	); err != nil {
		return fmt.Errorf("sqlite: clearing token: %w", err)
	}
	return nil
}
