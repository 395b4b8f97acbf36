package cache

import (
	"context"
	"fmt"
	"slices"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/propagate"
	"github.com/sakif/campus-client/internal/vote"
)

// AnswerList holds the answers of one question in chronological order.
// Only the question's detail screen shows answers, so there is no other copy
// to reconcile with.
type AnswerList struct {
	view
	questionID int64
	loaded     bool
	items      []model.Answer
}

// NewAnswerList mounts an empty answer list.
func (c *Cache) NewAnswerList() *AnswerList {
	a := &AnswerList{view: view{c: c, kind: propagate.AnswerList}}
	a.mount(a)
	return a
}

// Scope implements propagate.View.
func (a *AnswerList) Scope() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.questionID
}

// Load fetches the answers of questionID.
func (a *AnswerList) Load(ctx context.Context, questionID int64) ([]model.Answer, error) {
	a.mu.Lock()
	epoch, err := a.beginLocked()
	if err == nil && a.questionID != questionID {
		a.questionID = questionID
		a.loaded = false
		a.items = nil
	}
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("cache: loading answers of %d: %w", questionID, err)
	}

	items, err := a.c.d.Backend.ListAnswers(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("cache: loading answers of %d: %w", questionID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.currentLocked(epoch) {
		return nil, fmt.Errorf("cache: loading answers of %d: %w", questionID, apperror.ErrUnmounted)
	}
	a.items = items
	a.loaded = true
	return slices.Clone(items), nil
}

// Refresh reloads the answers. It is a no-op before the first Load.
func (a *AnswerList) Refresh(ctx context.Context) error {
	a.mu.Lock()
	qid, loaded := a.questionID, a.loaded
	a.mu.Unlock()
	if !loaded {
		return nil
	}
	_, err := a.Load(ctx, qid)
	return err
}

// Items returns a copy of the answers.
func (a *AnswerList) Items() []model.Answer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.items)
}

// Create posts an answer to the loaded question and appends the server's copy.
func (a *AnswerList) Create(ctx context.Context, body string) (model.Answer, error) {
	qid, err := a.loadedQuestion()
	if err != nil {
		return model.Answer{}, fmt.Errorf("cache: posting answer: %w", err)
	}

	ans, err := a.c.d.Backend.PostAnswer(ctx, qid, body)
	if err != nil {
		return model.Answer{}, fmt.Errorf("cache: posting answer to %d: %w", qid, err)
	}

	a.mu.Lock()
	if !a.closed && a.questionID == qid {
		a.items = append(a.items, ans)
	}
	a.mu.Unlock()

	a.notify(ctx, propagate.AnswerCreated, qid)
	return ans, nil
}

// Edit replaces the body of answer id. The local copy takes the new body.
func (a *AnswerList) Edit(ctx context.Context, id int64, body string) (model.Answer, error) {
	qid, err := a.loadedQuestion()
	if err != nil {
		return model.Answer{}, fmt.Errorf("cache: editing answer: %w", err)
	}

	if _, err := a.c.d.Backend.EditAnswer(ctx, id, body); err != nil {
		return model.Answer{}, fmt.Errorf("cache: editing answer %d: %w", id, err)
	}

	var out model.Answer
	a.mu.Lock()
	if i := indexOfAnswer(a.items, id); i >= 0 && !a.closed {
		a.items[i].Body = body
		out = a.items[i]
	}
	a.mu.Unlock()

	a.notify(ctx, propagate.AnswerEdited, qid)
	return out, nil
}

// Delete deletes answer id and drops it from the list.
func (a *AnswerList) Delete(ctx context.Context, id int64) error {
	qid, err := a.loadedQuestion()
	if err != nil {
		return fmt.Errorf("cache: deleting answer: %w", err)
	}
	if err := a.c.d.Backend.DeleteAnswer(ctx, id); err != nil {
		return fmt.Errorf("cache: deleting answer %d: %w", id, err)
	}

	a.mu.Lock()
	if i := indexOfAnswer(a.items, id); i >= 0 && !a.closed {
		a.items = slices.Delete(a.items, i, i+1)
	}
	a.mu.Unlock()

	a.notify(ctx, propagate.AnswerDeleted, qid)
	return nil
}

// Vote votes on answer id.
func (a *AnswerList) Vote(ctx context.Context, id int64, dir model.Direction) (vote.Result, error) {
	qid, err := a.loadedQuestion()
	if err != nil {
		return vote.Result{}, fmt.Errorf("cache: voting: %w", err)
	}

	t := target{
		get: func() (int, bool) {
			a.mu.Lock()
			defer a.mu.Unlock()
			i := indexOfAnswer(a.items, id)
			if a.closed || i < 0 {
				return 0, false
			}
			return a.items[i].VoteTotal, true
		},
		set: func(n int) bool {
			a.mu.Lock()
			defer a.mu.Unlock()
			i := indexOfAnswer(a.items, id)
			if a.closed || i < 0 {
				return false
			}
			a.items[i].VoteTotal = n
			return true
		},
	}

	v := model.Vote{Kind: model.TargetAnswer, TargetID: id, Direction: dir}
	res, err := a.c.d.Votes.Cast(ctx, v, t, questionPath(qid))
	if err != nil {
		return res, fmt.Errorf("cache: %w", err)
	}
	a.notify(ctx, propagate.AnswerVoted, qid)
	return res, nil
}

func (a *AnswerList) loadedQuestion() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, apperror.ErrUnmounted
	}
	if !a.loaded {
		return 0, apperror.ValidationFailed("question", "no question loaded")
	}
	return a.questionID, nil
}
