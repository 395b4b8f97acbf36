package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/propagate"
	"github.com/sakif/campus-client/internal/vote"
)

// QuestionDetail holds a single question, fetched fresh on every Load.
// Its copy is independent of any list that shows the same question.
type QuestionDetail struct {
	view
	id     int64
	loaded bool
	q      model.Question
}

// NewQuestionDetail mounts an empty detail view.
func (c *Cache) NewQuestionDetail() *QuestionDetail {
	d := &QuestionDetail{view: view{c: c, kind: propagate.QuestionDetail}}
	d.mount(d)
	return d
}

// Scope implements propagate.View.
func (d *QuestionDetail) Scope() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Load fetches question id from the server. A result for a question the view
// no longer shows is discarded.
func (d *QuestionDetail) Load(ctx context.Context, id int64) (model.Question, error) {
	d.mu.Lock()
	epoch, err := d.beginLocked()
	if err == nil && d.id != id {
		d.id = id
		d.loaded = false
		d.q = model.Question{}
	}
	d.mu.Unlock()
	if err != nil {
		return model.Question{}, fmt.Errorf("cache: loading question %d: %w", id, err)
	}

	q, err := d.c.d.Backend.GetQuestion(ctx, id)

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.currentLocked(epoch) {
		return model.Question{}, fmt.Errorf("cache: loading question %d: %w", id, apperror.ErrUnmounted)
	}
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			d.loaded = false
			d.q = model.Question{}
		}
		return model.Question{}, fmt.Errorf("cache: loading question %d: %w", id, err)
	}
	d.q = q
	d.loaded = true
	return q, nil
}

// Refresh reloads the shown question. It is a no-op before the first Load.
func (d *QuestionDetail) Refresh(ctx context.Context) error {
	d.mu.Lock()
	id, loaded := d.id, d.loaded
	d.mu.Unlock()
	if !loaded {
		return nil
	}
	_, err := d.Load(ctx, id)
	return err
}

// Question returns the view's copy.
func (d *QuestionDetail) Question() (model.Question, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.q, d.loaded
}

// Edit updates the shown question. On success the local copy takes the
// patched fields; nothing is re-fetched, so other views keep their copies
// until propagation refreshes them.
func (d *QuestionDetail) Edit(ctx context.Context, patch model.QuestionPatch) (model.Question, error) {
	cur, err := d.loadedQuestion()
	if err != nil {
		return model.Question{}, fmt.Errorf("cache: editing question: %w", err)
	}
	if patch.Empty() {
		return cur, nil
	}

	full := cur
	patch.Apply(&full)
	if _, err := d.c.d.Backend.EditQuestion(ctx, cur.ID, model.NewQuestion{Title: full.Title, Body: full.Body}); err != nil {
		return model.Question{}, fmt.Errorf("cache: editing question %d: %w", cur.ID, err)
	}

	d.mu.Lock()
	if !d.closed && d.loaded && d.q.ID == cur.ID {
		patch.Apply(&d.q)
		full = d.q
	}
	d.mu.Unlock()

	d.notify(ctx, propagate.QuestionEdited, cur.ID)
	return full, nil
}

// Delete deletes the shown question and empties the view. Navigating away is
// up to the caller.
func (d *QuestionDetail) Delete(ctx context.Context) error {
	cur, err := d.loadedQuestion()
	if err != nil {
		return fmt.Errorf("cache: deleting question: %w", err)
	}
	if err := d.c.d.Backend.DeleteQuestion(ctx, cur.ID); err != nil {
		return fmt.Errorf("cache: deleting question %d: %w", cur.ID, err)
	}

	d.mu.Lock()
	if d.q.ID == cur.ID {
		d.loaded = false
		d.q = model.Question{}
	}
	d.mu.Unlock()

	d.notify(ctx, propagate.QuestionDeleted, cur.ID)
	return nil
}

// Vote votes on the shown question.
func (d *QuestionDetail) Vote(ctx context.Context, dir model.Direction) (vote.Result, error) {
	cur, err := d.loadedQuestion()
	if err != nil {
		return vote.Result{}, fmt.Errorf("cache: voting: %w", err)
	}
	id := cur.ID

	t := target{
		get: func() (int, bool) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.closed || !d.loaded || d.q.ID != id {
				return 0, false
			}
			return d.q.VoteTotal, true
		},
		set: func(n int) bool {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.closed || !d.loaded || d.q.ID != id {
				return false
			}
			d.q.VoteTotal = n
			return true
		},
	}

	v := model.Vote{Kind: model.TargetQuestion, TargetID: id, Direction: dir}
	res, err := d.c.d.Votes.Cast(ctx, v, t, questionPath(id))
	if err != nil {
		return res, fmt.Errorf("cache: %w", err)
	}
	d.notify(ctx, propagate.QuestionVoted, id)
	return res, nil
}

func (d *QuestionDetail) loadedQuestion() (model.Question, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return model.Question{}, apperror.ErrUnmounted
	}
	if !d.loaded {
		return model.Question{}, apperror.ValidationFailed("question", "no question loaded")
	}
	return d.q, nil
}

func questionPath(id int64) string {
	return "/questions/" + strconv.FormatInt(id, 10)
}
