package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
)

// compile-time check that *DB implements repository.ForumRepository
var _ repository.ForumRepository = (*DB)(nil)

// selectQuestion reads a question with its author's current name.
const selectQuestion = `
	SELECT q.id, q.title, q.body, q.user_id, u.name, q.created_at, q.vote_total, q.answer_count
	FROM questions q
	JOIN users u ON u.id = q.user_id`

// CreateQuestion inserts q and sets q.ID.
//
// EXPLICIT IDS:
// A positive q.ID is inserted as-is (demo data and tests that need a known
// starting point). AUTOINCREMENT remembers the highest ID ever used, so the
// next question without an ID lands after it.
func (db *DB) CreateQuestion(ctx context.Context, q *model.Question) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	var id any
	if q.ID > 0 {
		id = q.ID
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO questions (id, title, body, user_id, vote_total, answer_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		q.Title,
		q.Body,
		q.AuthorID,
		q.VoteTotal,
		q.AnswerCount,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting question: %w", err)
	}
	q.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new question id: %w", err)
	}
	return nil
}

// GetQuestion returns one question.
// Returns apperror.ErrNotFound if it does not exist.
func (db *DB) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var q model.Question
	err := db.conn.QueryRowContext(ctx, selectQuestion+` WHERE q.id = ?`, id).Scan(
		&q.ID, &q.Title, &q.Body, &q.AuthorID, &q.AuthorName,
		&q.CreatedAt, &q.VoteTotal, &q.AnswerCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Question{}, apperror.NotFound("question", fmt.Sprint(id))
	}
	if err != nil {
		return model.Question{}, fmt.Errorf("sqlite: getting question %d: %w", id, err)
	}
	q.CreatedAt = q.CreatedAt.UTC()
	return q, nil
}

// ListQuestions returns one window of matching questions and the total
// number of matches.
//
// Two queries: COUNT(*) for the envelope, then the window itself with
// LIMIT/OFFSET. They share the WHERE clause and its arguments.
func (db *DB) ListQuestions(ctx context.Context, query repository.QuestionQuery) ([]model.Question, int, error) {
	where, args := questionSearch(query.Search)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM questions q`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting questions: %w", err)
	}

	// LIMIT -1 means no limit in SQLite.
	limit := query.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx,
		selectQuestion+where+` ORDER BY `+questionOrder(query.Sort)+` LIMIT ? OFFSET ?`,
		append(args, limit, max(query.Offset, 0))...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing questions: %w", err)
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return nil, 0, err
	}
	return qs, total, nil
}

// ListQuestionsByAuthor returns every question authorID asked, newest first.
func (db *DB) ListQuestionsByAuthor(ctx context.Context, authorID int64) ([]model.Question, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectQuestion+` WHERE q.user_id = ? ORDER BY `+questionOrder(repository.SortLatest),
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing questions of user %d: %w", authorID, err)
	}
	return scanQuestions(rows)
}

// UpdateQuestion replaces title and body and returns the stored question.
// Returns apperror.ErrNotFound if no row was updated.
func (db *DB) UpdateQuestion(ctx context.Context, id int64, title, body string) (model.Question, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE questions SET title = ?, body = ? WHERE id = ?`, title, body, id,
	)
	if err != nil {
		return model.Question{}, fmt.Errorf("sqlite: updating question %d: %w", id, err)
	}
	if err := requireRow(res, "question", id); err != nil {
		return model.Question{}, err
	}
	return db.GetQuestion(ctx, id)
}

// DeleteQuestion removes a question, its answers and every vote on either.
//
// CASCADE:
// answers.question_id is ON DELETE CASCADE, so deleting the question row
// removes its answers. Votes have no foreign key (target_id points at either
// table), so they go first, while the answer IDs can still be looked up.
func (db *DB) DeleteQuestion(ctx context.Context, id int64) (int, error) {
	var removed int
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM answers WHERE question_id = ?`, id,
		).Scan(&removed); err != nil {
			return fmt.Errorf("sqlite: counting answers of question %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM votes
			 WHERE (kind = ? AND target_id = ?)
			    OR (kind = ? AND target_id IN (SELECT id FROM answers WHERE question_id = ?))`,
			model.TargetQuestion, id, model.TargetAnswer, id,
		); err != nil {
			return fmt.Errorf("sqlite: deleting votes of question %d: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting question %d: %w", id, err)
		}
		return requireRow(res, "question", id)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// scanQuestions drains and closes rows.
func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	// ALWAYS close rows, or the connection is never returned to the pool.
	// With one connection that would block every later query.
	defer rows.Close()

	out := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.Title, &q.Body, &q.AuthorID, &q.AuthorName,
			&q.CreatedAt, &q.VoteTotal, &q.AnswerCount,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning question row: %w", err)
		}
		q.CreatedAt = q.CreatedAt.UTC()
		out = append(out, q)
	}
	// rows.Err reports an error that ended the loop early.
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating question rows: %w", err)
	}
	return out, nil
}

// questionSearch builds the WHERE clause for a case-insensitive substring
// match on title or body. LIKE wildcards in the search text match literally.
func questionSearch(search string) (string, []any) {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return "", nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(needle)
	pattern := "%" + escaped + "%"
	return ` WHERE (lower(q.title) LIKE ? ESCAPE '\' OR lower(q.body) LIKE ? ESCAPE '\')`,
		[]any{pattern, pattern}
}

// questionOrder maps a sort name to an ORDER BY clause. Only these fixed
// strings ever reach the query text. Ties fall back to the ID so pages are
// stable.
func questionOrder(sort string) string {
	switch sort {
	case repository.SortOldest:
		return `q.created_at ASC, q.id ASC`
	case repository.SortVotes:
		return `q.vote_total DESC, q.created_at DESC, q.id DESC`
	default:
		return `q.created_at DESC, q.id DESC`
	}
}

// requireRow turns "no row affected" into a NotFound for resource id.
func requireRow(res sql.Result, resource string, id int64) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(resource, fmt.Sprint(id))
	}
	return nil
}
