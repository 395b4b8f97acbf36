// Package propagate keeps independently fetched views from silently
// diverging after a mutation.
//
// WHY RE-FETCH INSTEAD OF A SHARED STORE?
// Each view (question list, question detail, profile listing, answer list)
// holds its own copy of the entities it shows. Rather than sharing pointers
// between them, a view that completes a mutation announces it here, and every
// OTHER mounted view that displays the affected aggregate re-fetches from the
// server. Staleness is bounded by the next mutation; views that are not
// mounted are not touched and fetch fresh data when they mount.
package propagate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/metrics"
)

// ViewKind names a kind of view.
type ViewKind string

const (
	QuestionList     ViewKind = "question-list"
	QuestionDetail   ViewKind = "question-detail"
	ProfileQuestions ViewKind = "profile-questions"
	AnswerList       ViewKind = "answer-list"
)

// Event names a mutation that completed on the server.
type Event string

const (
	QuestionCreated Event = "question-created"
	QuestionEdited  Event = "question-edited"
	QuestionDeleted Event = "question-deleted"
	QuestionVoted   Event = "question-voted"
	AnswerCreated   Event = "answer-created"
	AnswerEdited    Event = "answer-edited"
	AnswerDeleted   Event = "answer-deleted"
	AnswerVoted     Event = "answer-voted"
)

// affects lists which view kinds display the aggregate an event changes.
// Answer creation and deletion change answerCount, which every question
// view shows.
var affects = map[Event][]ViewKind{
	QuestionCreated: {QuestionList, ProfileQuestions},
	QuestionEdited:  {QuestionList, QuestionDetail, ProfileQuestions},
	QuestionDeleted: {QuestionList, QuestionDetail, ProfileQuestions},
	QuestionVoted:   {QuestionList, QuestionDetail, ProfileQuestions},
	AnswerCreated:   {QuestionList, QuestionDetail, ProfileQuestions, AnswerList},
	AnswerEdited:    {AnswerList},
	AnswerDeleted:   {QuestionList, QuestionDetail, ProfileQuestions, AnswerList},
	AnswerVoted:     {AnswerList},
}

// Mutation describes one completed mutation.
type Mutation struct {
	Event      Event
	QuestionID int64
}

// View is a mounted view that can re-fetch itself.
type View interface {
	Kind() ViewKind
	// Scope is the question the view is about, or 0 for views that span
	// many questions (lists, profiles).
	Scope() int64
	Refresh(ctx context.Context) error
}

// Handle identifies a mounted view.
type Handle uint64

// maxConcurrent bounds the number of refreshes in flight for one mutation.
const maxConcurrent = 4

// Registry tracks mounted views.
type Registry struct {
	mu    sync.Mutex
	next  Handle
	views map[Handle]View

	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger, m metrics.Recorder) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Registry{views: make(map[Handle]View), logger: logger, metrics: m}
}

// Mount registers v and returns its handle.
func (r *Registry) Mount(v View) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.views[r.next] = v
	return r.next
}

// Unmount removes the view. Unknown handles are ignored.
func (r *Registry) Unmount(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, h)
}

// Mounted returns the number of mounted views.
func (r *Registry) Mounted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Notify refreshes every mounted view, other than origin, affected by m.
// It waits for the refreshes and returns their failures joined; views that
// unmounted meanwhile are not failures. The mutation itself already
// succeeded, so callers log the error rather than fail the action.
func (r *Registry) Notify(ctx context.Context, origin Handle, m Mutation) error {
	targets := r.targets(origin, m)
	if len(targets) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, v := range targets {
		g.Go(func() error {
			err := v.Refresh(gctx)
			if errors.Is(err, apperror.ErrUnmounted) {
				err = nil
			}
			r.metrics.RecordRefresh(string(v.Kind()), err)
			if err != nil {
				r.logger.Warn("view refresh failed",
					slog.String("view", string(v.Kind())),
					slog.String("event", string(m.Event)),
					slog.Int64("question_id", m.QuestionID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// refresh failures are collected, not propagated, so one
			// failing view does not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Debug("mutation propagated",
		slog.String("event", string(m.Event)),
		slog.Int("views", len(targets)),
		slog.Int("failed", len(errs)),
	)
	return errors.Join(errs...)
}

func (r *Registry) targets(origin Handle, m Mutation) []View {
	kinds := affects[m.Event]

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []View
	for h, v := range r.views {
		if h == origin || !slices.Contains(kinds, v.Kind()) {
			continue
		}
		if scope := v.Scope(); scope != 0 && scope != m.QuestionID {
			continue
		}
		out = append(out, v)
	}
	return out
}
