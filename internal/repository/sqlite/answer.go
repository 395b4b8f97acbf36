package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
)

const selectAnswer = `
	SELECT a.id, a.question_id, a.body, a.user_id, u.name, a.created_at, a.vote_total
	FROM answers a
	JOIN users u ON u.id = a.user_id`

// CreateAnswer inserts a and bumps the parent question's answer_count.
// Returns apperror.ErrNotFound if the question does not exist.
//
// The count is bumped first: an UPDATE that touches no row is the cheapest
// way to learn the question is gone, before anything is inserted.
func (db *DB) CreateAnswer(ctx context.Context, a *model.Answer) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE questions SET answer_count = answer_count + 1 WHERE id = ?`, a.QuestionID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: counting answer on question %d: %w", a.QuestionID, err)
		}
		if err := requireRow(res, "question", a.QuestionID); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO answers (question_id, body, user_id, vote_total, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			a.QuestionID,
			a.Body,
			a.AuthorID,
			a.VoteTotal,
			a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting answer: %w", err)
		}
		a.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading new answer id: %w", err)
		}
		return nil
	})
}

// GetAnswer returns one answer.
// Returns apperror.ErrNotFound if it does not exist.
func (db *DB) GetAnswer(ctx context.Context, id int64) (model.Answer, error) {
	var a model.Answer
	err := db.conn.QueryRowContext(ctx, selectAnswer+` WHERE a.id = ?`, id).Scan(
		&a.ID, &a.QuestionID, &a.Body, &a.AuthorID, &a.AuthorName, &a.CreatedAt, &a.VoteTotal,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Answer{}, apperror.NotFound("answer", fmt.Sprint(id))
	}
	if err != nil {
		return model.Answer{}, fmt.Errorf("sqlite: getting answer %d: %w", id, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

// ListAnswers returns the answers of a question, oldest first. An unknown
// question simply has none.
func (db *DB) ListAnswers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectAnswer+` WHERE a.question_id = ? ORDER BY a.created_at ASC, a.id ASC`, questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing answers of question %d: %w", questionID, err)
	}
	defer rows.Close()

	out := []model.Answer{}
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(
			&a.ID, &a.QuestionID, &a.Body, &a.AuthorID, &a.AuthorName, &a.CreatedAt, &a.VoteTotal,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning answer row: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating answer rows: %w", err)
	}
	return out, nil
}

// UpdateAnswer replaces an answer's body and returns the stored answer.
func (db *DB) UpdateAnswer(ctx context.Context, id int64, body string) (model.Answer, error) {
	res, err := db.conn.ExecContext(ctx, `UPDATE answers SET body = ? WHERE id = ?`, body, id)
	if err != nil {
		return model.Answer{}, fmt.Errorf("sqlite: updating answer %d: %w", id, err)
	}
	if err := requireRow(res, "answer", id); err != nil {
		return model.Answer{}, err
	}
	return db.GetAnswer(ctx, id)
}

// DeleteAnswer removes an answer and its votes, and decrements the parent
// question's answer_count.
func (db *DB) DeleteAnswer(ctx context.Context, id int64) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var questionID int64
		err := tx.QueryRowContext(ctx, `SELECT question_id FROM answers WHERE id = ?`, id).Scan(&questionID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("answer", fmt.Sprint(id))
		}
		if err != nil {
			return fmt.Errorf("sqlite: looking up answer %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM votes WHERE kind = ? AND target_id = ?`, model.TargetAnswer, id,
		); err != nil {
			return fmt.Errorf("sqlite: deleting votes of answer %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting answer %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE questions SET answer_count = max(answer_count - 1, 0) WHERE id = ?`, questionID,
		); err != nil {
			return fmt.Errorf("sqlite: uncounting answer on question %d: %w", questionID, err)
		}
		return nil
	})
}
