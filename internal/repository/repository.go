// Package repository declares the persistence contracts of the client and of
// the local forum API.
//
// CLIENT STATE:
// The session token is ONE string stored under ONE fixed key. It survives
// process restarts and is cleared on logout or eviction. Nothing else about
// the session is persisted; the identity is re-resolved from the server.
//
// FORUM STATE:
// The local forum API (cmd/stubserver) keeps users, questions, answers and
// votes behind the interfaces below. The services own the rules (validation,
// ownership, vote toggling); the repositories own storage and keep the
// aggregates (AnswerCount, VoteTotal) consistent inside one transaction.
package repository

import (
	"context"

	"github.com/sakif/campus-client/internal/model"
)

// TokenKey is the fixed storage key of the persisted session token.
const TokenKey = "session.token"

// TokenRepository persists the session token between runs.
//
// LoadToken returns an error matching apperror.ErrNotFound when nothing is
// stored. ClearToken is idempotent.
type TokenRepository interface {
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// UserRepository stores forum accounts.
//
// Emails are unique; CreateUser returns an apperror.ErrConflict error for a
// taken one. Lookups of unknown users return apperror.ErrNotFound.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User, passwordHash string) error
	GetUserByID(ctx context.Context, id int64) (model.User, error)
	// GetCredentials returns the account and its password hash.
	GetCredentials(ctx context.Context, email string) (model.User, string, error)
	UpdateUser(ctx context.Context, user model.User) error
}

// Question sort orders understood by QuestionRepository.ListQuestions.
const (
	SortLatest = "latest"
	SortOldest = "oldest"
	SortVotes  = "votes"
)

// QuestionQuery selects a window of questions.
//
// Search matches title or body, case-insensitively. Sort is one of the Sort
// constants; anything else means SortLatest.
type QuestionQuery struct {
	Search string
	Sort   string
	Limit  int
	Offset int
}

// QuestionRepository stores questions. AuthorName is resolved from the users
// table on every read.
type QuestionRepository interface {
	// CreateQuestion inserts q and sets its ID. A positive q.ID is kept, and
	// later IDs continue after it.
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	// ListQuestions returns one window of matches plus the number of matches
	// across all windows.
	ListQuestions(ctx context.Context, query QuestionQuery) ([]model.Question, int, error)
	ListQuestionsByAuthor(ctx context.Context, authorID int64) ([]model.Question, error)
	UpdateQuestion(ctx context.Context, id int64, title, body string) (model.Question, error)
	// DeleteQuestion removes the question with its answers and every vote on
	// either. It returns the number of answers removed.
	DeleteQuestion(ctx context.Context, id int64) (int, error)
}

// AnswerRepository stores answers and keeps the parent question's
// AnswerCount in step.
type AnswerRepository interface {
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, id int64) (model.Answer, error)
	// ListAnswers returns the answers of a question, oldest first.
	ListAnswers(ctx context.Context, questionID int64) ([]model.Answer, error)
	UpdateAnswer(ctx context.Context, id int64, body string) (model.Answer, error)
	DeleteAnswer(ctx context.Context, id int64) error
}

// VoteRule decides a user's new vote from their previous one. had is false
// when the user has not voted on the target; keep is false to remove the
// vote.
type VoteRule func(prev model.Direction, had bool) (next model.Direction, keep bool)

// VoteRepository stores one vote per user per target.
type VoteRepository interface {
	// ApplyVote runs rule against the user's current vote, stores the
	// outcome, adjusts the target's VoteTotal by the difference and returns
	// the new total. All of it happens in one transaction.
	ApplyVote(ctx context.Context, userID int64, kind model.TargetKind, targetID int64, rule VoteRule) (int, error)
}

// ForumRepository is everything the forum service persists.
type ForumRepository interface {
	QuestionRepository
	AnswerRepository
	VoteRepository
}
