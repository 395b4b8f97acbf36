package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new account and fills in user.ID (and CreatedAt when
// the caller left it zero).
//
// CHECK THEN INSERT, IN ONE TRANSACTION:
// The UNIQUE constraint on email would reject a duplicate anyway, but the
// driver's constraint error is not something a caller can match on. Looking
// first inside the transaction turns it into a clean apperror.Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User, passwordHash string) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.DefaultRole
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM users WHERE email = ?`, user.Email,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking email %q: %w", user.Email, err)
		}
		if exists > 0 {
			return apperror.Conflict("user", user.Email)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, email, password_hash, role, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			user.Name,
			user.Email,
			passwordHash,
			user.Role,
			user.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting user %q: %w", user.Email, err)
		}
		user.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading new user id: %w", err)
		}
		return nil
	})
}

// GetUserByID returns the account with the given ID.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	u, _, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, apperror.NotFound("user", fmt.Sprint(id))
	}
	if err != nil {
		return model.User{}, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetCredentials looks an account up by email (case-insensitively) and
// returns it with its password hash.
func (db *DB) GetCredentials(ctx context.Context, email string) (model.User, string, error) {
	u, hash, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at, password_hash FROM users WHERE email = ?`, email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, "", apperror.NotFound("user", email)
	}
	if err != nil {
		return model.User{}, "", fmt.Errorf("sqlite: getting credentials for %q: %w", email, err)
	}
	return u, hash, nil
}

// UpdateUser writes the name and role of an existing account.
// Returns apperror.ErrNotFound if no row was updated.
func (db *DB) UpdateUser(ctx context.Context, user model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, role = ? WHERE id = ?`,
		user.Name, user.Role, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("user", fmt.Sprint(user.ID))
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, string, error) {
	var (
		u    model.User
		hash string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &hash)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, hash, err
}
