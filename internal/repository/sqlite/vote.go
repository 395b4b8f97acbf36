package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
)

// voteTables maps a target kind to the table holding its vote_total. Only
// these fixed names ever reach the query text.
var voteTables = map[model.TargetKind]string{
	model.TargetQuestion: "questions",
	model.TargetAnswer:   "answers",
}

// ApplyVote reads the user's current vote on the target, lets rule decide
// the new one, and stores it together with the adjusted vote_total.
//
// THE DELTA:
// The total moves by (new vote value) - (old vote value), where "no vote"
// counts as 0. That covers every transition: none→up is +1, up→none is -1,
// down→up is +2.
func (db *DB) ApplyVote(ctx context.Context, userID int64, kind model.TargetKind, targetID int64, rule repository.VoteRule) (int, error) {
	table, ok := voteTables[kind]
	if !ok {
		return 0, fmt.Errorf("sqlite: unknown vote target kind %q", kind)
	}

	var total int
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT vote_total FROM `+table+` WHERE id = ?`, targetID,
		).Scan(&total)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound(string(kind), fmt.Sprint(targetID))
		}
		if err != nil {
			return fmt.Errorf("sqlite: reading %s %d: %w", kind, targetID, err)
		}

		var prev int
		had := true
		err = tx.QueryRowContext(ctx,
			`SELECT direction FROM votes WHERE kind = ? AND target_id = ? AND user_id = ?`,
			kind, targetID, userID,
		).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			had, err = false, nil
		case err != nil:
			return fmt.Errorf("sqlite: reading vote on %s %d: %w", kind, targetID, err)
		}

		next, keep := rule(model.Direction(prev), had)

		delta := -prev
		if keep {
			delta += next.Value()
			_, err = tx.ExecContext(ctx,
				`INSERT INTO votes (kind, target_id, user_id, direction) VALUES (?, ?, ?, ?)
				 ON CONFLICT(kind, target_id, user_id) DO UPDATE SET direction = excluded.direction`,
				kind, targetID, userID, next.Value(),
			)
		} else if had {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM votes WHERE kind = ? AND target_id = ? AND user_id = ?`,
				kind, targetID, userID,
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: storing vote on %s %d: %w", kind, targetID, err)
		}

		if delta != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+table+` SET vote_total = vote_total + ? WHERE id = ?`, delta, targetID,
			); err != nil {
				return fmt.Errorf("sqlite: updating total of %s %d: %w", kind, targetID, err)
			}
		}
		total += delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
