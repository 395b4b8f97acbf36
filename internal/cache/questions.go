package cache

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/propagate"
	"github.com/sakif/campus-client/internal/vote"
)

// QuestionList is the home view: one page of questions.
type QuestionList struct {
	view
	filter model.ListFilter
	loaded bool
	items  []model.Question
	page   model.PageInfo
}

// NewQuestionList mounts an empty question list.
func (c *Cache) NewQuestionList() *QuestionList {
	l := &QuestionList{view: view{c: c, kind: propagate.QuestionList}}
	l.mount(l)
	return l
}

// Scope implements propagate.View; a list spans all questions.
func (l *QuestionList) Scope() int64 { return 0 }

// List replaces the collection with the server's page for f.
// A malformed page reads as empty (see package api).
func (l *QuestionList) List(ctx context.Context, f model.ListFilter) ([]model.Question, error) {
	if f.Size <= 0 {
		f.Size = l.c.d.PageSize
	}

	l.mu.Lock()
	epoch, err := l.beginLocked()
	if err == nil {
		l.filter = f
	}
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("cache: listing questions: %w", err)
	}

	items, page, err := l.c.d.Backend.ListQuestions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("cache: listing questions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.currentLocked(epoch) {
		return nil, fmt.Errorf("cache: listing questions: %w", apperror.ErrUnmounted)
	}
	l.items = items
	l.page = page
	l.loaded = true
	return slices.Clone(items), nil
}

// Refresh re-runs the last List. It is a no-op before the first List.
func (l *QuestionList) Refresh(ctx context.Context) error {
	l.mu.Lock()
	f, loaded := l.filter, l.loaded
	l.mu.Unlock()
	if !loaded {
		return nil
	}
	_, err := l.List(ctx, f)
	return err
}

// Items returns a copy of the collection.
func (l *QuestionList) Items() []model.Question {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.items)
}

// Get returns the list's copy of question id.
func (l *QuestionList) Get(id int64) (model.Question, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := indexOfQuestion(l.items, id); i >= 0 {
		return l.items[i], true
	}
	return model.Question{}, false
}

// Page returns the pagination envelope of the last List.
func (l *QuestionList) Page() model.PageInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.page
}

// Create asks a question and puts the server's copy first in the list,
// without re-fetching.
func (l *QuestionList) Create(ctx context.Context, nq model.NewQuestion) (model.Question, error) {
	q, err := l.c.d.Backend.AskQuestion(ctx, nq)
	if err != nil {
		return model.Question{}, fmt.Errorf("cache: asking question: %w", err)
	}

	l.mu.Lock()
	if !l.closed {
		l.items = slices.Insert(l.items, 0, q)
	}
	l.mu.Unlock()

	l.notify(ctx, propagate.QuestionCreated, q.ID)
	return q, nil
}

// Delete deletes question id and drops it from the list.
func (l *QuestionList) Delete(ctx context.Context, id int64) error {
	if err := l.c.d.Backend.DeleteQuestion(ctx, id); err != nil {
		return fmt.Errorf("cache: deleting question %d: %w", id, err)
	}

	l.mu.Lock()
	if i := indexOfQuestion(l.items, id); i >= 0 && !l.closed {
		l.items = slices.Delete(l.items, i, i+1)
	}
	l.mu.Unlock()

	l.notify(ctx, propagate.QuestionDeleted, id)
	return nil
}

// Vote votes on question id from this list.
func (l *QuestionList) Vote(ctx context.Context, id int64, dir model.Direction) (vote.Result, error) {
	t := target{
		get: func() (int, bool) {
			l.mu.Lock()
			defer l.mu.Unlock()
			i := indexOfQuestion(l.items, id)
			if l.closed || i < 0 {
				return 0, false
			}
			return l.items[i].VoteTotal, true
		},
		set: func(n int) bool {
			l.mu.Lock()
			defer l.mu.Unlock()
			i := indexOfQuestion(l.items, id)
			if l.closed || i < 0 {
				return false
			}
			l.items[i].VoteTotal = n
			return true
		},
	}

	v := model.Vote{Kind: model.TargetQuestion, TargetID: id, Direction: dir}
	res, err := l.c.d.Votes.Cast(ctx, v, t, l.path())
	if err != nil {
		return res, fmt.Errorf("cache: %w", err)
	}
	l.notify(ctx, propagate.QuestionVoted, id)
	return res, nil
}

// path is the route of this view, used as the sign-in return path.
func (l *QuestionList) path() string {
	l.mu.Lock()
	search := l.filter.Search
	l.mu.Unlock()
	if search == "" {
		return "/"
	}
	return "/?" + url.Values{"search": {search}}.Encode()
}
