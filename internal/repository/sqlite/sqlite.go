// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// ONE SCHEMA, TWO USERS:
// The CLI keeps its session token in client_state; the local forum API keeps
// users, questions, answers and votes in the other tables. Both open the same
// kind of DB, usually on different files (or ":memory:").
//
// WHY SQLITE FOR ONE STRING?
// The token has to survive process restarts and be written atomically, even
// when two CLI invocations race. A tiny SQLite file gives that with no
// hand-rolled temp-file-and-rename dance and no file locking code.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code. No C
// compiler is needed, so the client cross-compiles like any other Go binary.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the state database and runs migrations.
//
// dbPath examples:
//   - "~/.campus-client/session.db" → file-based database (persistent)
//   - ":memory:"                    → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// Every ":memory:" connection is a separate, empty database, so the
	// in-memory forum needs exactly one. It also serializes writers. Code
	// running inside inTx must use the tx, never db.conn, or it deadlocks.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets a second CLI invocation read the token while another writes it.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// SQLite ignores REFERENCES clauses unless this is on, per connection.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the client state table and the forum tables.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
func (db *DB) migrate() error {
	// Client: the session token lives here under a fixed key.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS client_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating client_state table: %w", err)
	}

	// Forum: accounts. COLLATE NOCASE makes the UNIQUE email check
	// case-insensitive.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Forum: questions and answers. AUTOINCREMENT keeps IDs monotonic, so a
	// seeded question with an explicit ID pushes later ones past it.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS questions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			title        TEXT NOT NULL,
			body         TEXT NOT NULL,
			user_id      INTEGER NOT NULL REFERENCES users(id),
			vote_total   INTEGER NOT NULL DEFAULT 0,
			answer_count INTEGER NOT NULL DEFAULT 0,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_questions_created_at ON questions(created_at);
		CREATE INDEX IF NOT EXISTS idx_questions_user_id ON questions(user_id);

		CREATE TABLE IF NOT EXISTS answers (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
			body        TEXT NOT NULL,
			user_id     INTEGER NOT NULL REFERENCES users(id),
			vote_total  INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_answers_question_id ON answers(question_id);
	`)
	if err != nil {
		return fmt.Errorf("creating question and answer tables: %w", err)
	}

	// Forum: one row per (target, user). target_id points at a question or an
	// answer depending on kind, so there is no foreign key; deletes clean up
	// explicitly.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			kind      TEXT NOT NULL,
			target_id INTEGER NOT NULL,
			user_id   INTEGER NOT NULL REFERENCES users(id),
			direction INTEGER NOT NULL,
			PRIMARY KEY (kind, target_id, user_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
