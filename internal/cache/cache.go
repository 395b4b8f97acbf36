// Package cache holds the client's per-view entity collections.
//
// VIEWS OWN VALUES:
// A view (QuestionList, QuestionDetail, AnswerList, ProfileQuestions) keeps
// its own copy of what it fetched. Accessors return copies. Two views showing
// question 42 hold two independent model.Question values; editing one does
// not touch the other. Keeping them close is the job of package propagate,
// which re-fetches sibling views after a mutation.
//
// MOUNTED UNTIL CLOSED:
// A view is mounted from creation until Close. Every load bumps the view's
// epoch; a result that comes back after Close, or after a newer load of the
// same view, is discarded with apperror.ErrUnmounted instead of being
// written into state that now means something else.
package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/propagate"
	"github.com/sakif/campus-client/internal/vote"
)

// Backend is the part of the forum API the views call. api.API implements it.
type Backend interface {
	ListQuestions(ctx context.Context, f model.ListFilter) ([]model.Question, model.PageInfo, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	AskQuestion(ctx context.Context, nq model.NewQuestion) (model.Question, error)
	EditQuestion(ctx context.Context, id int64, nq model.NewQuestion) (model.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error

	ListAnswers(ctx context.Context, questionID int64) ([]model.Answer, error)
	PostAnswer(ctx context.Context, questionID int64, body string) (model.Answer, error)
	EditAnswer(ctx context.Context, id int64, body string) (model.Answer, error)
	DeleteAnswer(ctx context.Context, id int64) error

	User(ctx context.Context, id int64) (model.User, error)
	UserQuestions(ctx context.Context, userID int64) ([]model.Question, error)
}

// Voter runs the vote protocol. vote.Protocol implements it.
type Voter interface {
	Cast(ctx context.Context, v model.Vote, target vote.Target, returnTo string) (vote.Result, error)
}

// Deps are the collaborators shared by every view.
type Deps struct {
	Backend Backend
	Votes   Voter
	// Registry receives mutations; nil disables propagation.
	Registry *propagate.Registry
	Logger   *slog.Logger
	// PageSize is used when a list filter names no size.
	PageSize int
}

// Cache creates views bound to one set of collaborators.
type Cache struct {
	d Deps
}

// New creates a Cache.
func New(d Deps) *Cache {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{d: d}
}

// view is the mount/epoch bookkeeping shared by all views. The embedding
// type guards its own fields with mu as well.
type view struct {
	c      *Cache
	kind   propagate.ViewKind
	handle propagate.Handle

	mu     sync.Mutex
	closed bool
	epoch  uint64
}

func (v *view) Kind() propagate.ViewKind { return v.kind }

func (v *view) mount(self propagate.View) {
	if v.c.d.Registry != nil {
		v.handle = v.c.d.Registry.Mount(self)
	}
}

// Close unmounts the view. Results of calls still in flight are discarded.
func (v *view) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.epoch++
	v.mu.Unlock()

	if v.c.d.Registry != nil {
		v.c.d.Registry.Unmount(v.handle)
	}
}

// Closed reports whether Close was called.
func (v *view) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// beginLocked starts a load. Callers hold mu.
func (v *view) beginLocked() (uint64, error) {
	if v.closed {
		return 0, apperror.ErrUnmounted
	}
	v.epoch++
	return v.epoch, nil
}

// currentLocked reports whether a load started at epoch may still apply its
// result. Callers hold mu.
func (v *view) currentLocked(epoch uint64) bool {
	return !v.closed && v.epoch == epoch
}

// notify announces a completed mutation. Refresh failures are logged only:
// the mutation itself succeeded.
func (v *view) notify(ctx context.Context, event propagate.Event, questionID int64) {
	if v.c.d.Registry == nil {
		return
	}
	m := propagate.Mutation{Event: event, QuestionID: questionID}
	if err := v.c.d.Registry.Notify(ctx, v.handle, m); err != nil {
		v.c.d.Logger.Warn("sibling views not refreshed",
			slog.String("event", string(event)),
			slog.Int64("question_id", questionID),
			slog.String("error", err.Error()),
		)
	}
}

// target adapts a pair of closures to vote.Target.
type target struct {
	get func() (int, bool)
	set func(int) bool
}

func (t target) Total() (int, bool)  { return t.get() }
func (t target) SetTotal(n int) bool { return t.set(n) }

func indexOfQuestion(qs []model.Question, id int64) int {
	for i := range qs {
		if qs[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfAnswer(as []model.Answer, id int64) int {
	for i := range as {
		if as[i].ID == id {
			return i
		}
	}
	return -1
}
