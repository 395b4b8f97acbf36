package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
)

// Pagination limits for ListQuestions.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	maxTitleLength  = 200
)

// Sort orders accepted by ListQuestions. Anything else means SortLatest.
const (
	SortLatest = repository.SortLatest
	SortOldest = repository.SortOldest
	SortVotes  = repository.SortVotes
)

// UserDirectory resolves author names and roles. *AuthService implements it.
type UserDirectory interface {
	User(ctx context.Context, id int64) (model.User, error)
}

// Page is one page of questions plus its envelope. Number is zero-based.
type Page struct {
	Content       []model.Question
	TotalPages    int
	TotalElements int
	Size          int
	Number        int
}

// ForumService owns the rules for questions, answers and votes: validation,
// ownership and vote toggling.
//
// AGGREGATES:
// VoteTotal and AnswerCount are maintained by the repository in the same
// transaction as the write that changes them, so a read always returns
// consistent numbers. The client treats them as the authority.
type ForumService struct {
	repo   repository.ForumRepository
	users  UserDirectory
	logger *slog.Logger
	now    func() time.Time
}

// NewForumService creates a ForumService over repo.
func NewForumService(repo repository.ForumRepository, users UserDirectory, logger *slog.Logger) *ForumService {
	return &ForumService{
		repo:   repo,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// === Questions ===

// ListQuestions returns a page of questions whose title or body contains
// search (case-insensitive). page and size are clamped to sane values.
func (s *ForumService) ListQuestions(ctx context.Context, search string, page, size int, sort string) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	size = min(size, MaxPageSize)
	page = max(page, 0)

	qs, total, err := s.repo.ListQuestions(ctx, repository.QuestionQuery{
		Search: search,
		Sort:   sort,
		Limit:  size,
		Offset: page * size,
	})
	if err != nil {
		return Page{}, fmt.Errorf("service/forum: listing questions: %w", err)
	}

	return Page{
		Content:       qs,
		TotalPages:    (total + size - 1) / size,
		TotalElements: total,
		Size:          size,
		Number:        page,
	}, nil
}

// Question returns one question.
func (s *ForumService) Question(ctx context.Context, id int64) (model.Question, error) {
	return s.repo.GetQuestion(ctx, id)
}

// UserQuestions returns the questions userID asked, newest first.
func (s *ForumService) UserQuestions(ctx context.Context, userID int64) ([]model.Question, error) {
	if _, err := s.users.User(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListQuestionsByAuthor(ctx, userID)
}

// Ask creates a question authored by userID.
func (s *ForumService) Ask(ctx context.Context, userID int64, nq model.NewQuestion) (model.Question, error) {
	nq, err := cleanQuestion(nq)
	if err != nil {
		return model.Question{}, err
	}
	author, err := s.users.User(ctx, userID)
	if err != nil {
		return model.Question{}, err
	}

	q := model.Question{
		Title:      nq.Title,
		Body:       nq.Body,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateQuestion(ctx, &q); err != nil {
		return model.Question{}, err
	}

	s.logger.Info("question asked", slog.Int64("questionID", q.ID), slog.Int64("userID", userID))
	return q, nil
}

// EditQuestion replaces title and body. Only the author or an admin may.
func (s *ForumService) EditQuestion(ctx context.Context, userID, id int64, nq model.NewQuestion) (model.Question, error) {
	nq, err := cleanQuestion(nq)
	if err != nil {
		return model.Question{}, err
	}
	q, err := s.repo.GetQuestion(ctx, id)
	if err != nil {
		return model.Question{}, err
	}
	if q.AuthorID != userID && !s.isAdmin(ctx, userID) {
		return model.Question{}, apperror.Forbidden("only the author can edit this question")
	}
	return s.repo.UpdateQuestion(ctx, id, nq.Title, nq.Body)
}

// DeleteQuestion removes a question with its answers and every vote on
// either.
func (s *ForumService) DeleteQuestion(ctx context.Context, userID, id int64) error {
	q, err := s.repo.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if q.AuthorID != userID && !s.isAdmin(ctx, userID) {
		return apperror.Forbidden("only the author can delete this question")
	}

	removed, err := s.repo.DeleteQuestion(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("question deleted",
		slog.Int64("questionID", id),
		slog.Int("answers", removed),
	)
	return nil
}

// Seed inserts q as-is, keeping its ID and aggregates. It backs demo data
// and tests that need a known starting state; later IDs continue after the
// highest seeded one.
func (s *ForumService) Seed(ctx context.Context, q model.Question) (model.Question, error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now().UTC()
	}
	if err := s.repo.CreateQuestion(ctx, &q); err != nil {
		return model.Question{}, fmt.Errorf("service/forum: seeding question: %w", err)
	}
	return s.repo.GetQuestion(ctx, q.ID)
}

// === Answers ===

// Answers lists the answers of a question, oldest first.
func (s *ForumService) Answers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	if _, err := s.repo.GetQuestion(ctx, questionID); err != nil {
		return nil, err
	}
	return s.repo.ListAnswers(ctx, questionID)
}

// PostAnswer adds an answer and bumps the question's AnswerCount.
func (s *ForumService) PostAnswer(ctx context.Context, userID, questionID int64, body string) (model.Answer, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Answer{}, apperror.ValidationFailed("body", "body is required")
	}
	author, err := s.users.User(ctx, userID)
	if err != nil {
		return model.Answer{}, err
	}

	a := model.Answer{
		QuestionID: questionID,
		Body:       body,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreateAnswer(ctx, &a); err != nil {
		return model.Answer{}, err
	}
	return a, nil
}

// EditAnswer replaces an answer's body.
func (s *ForumService) EditAnswer(ctx context.Context, userID, id int64, body string) (model.Answer, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Answer{}, apperror.ValidationFailed("body", "body is required")
	}
	a, err := s.repo.GetAnswer(ctx, id)
	if err != nil {
		return model.Answer{}, err
	}
	if a.AuthorID != userID && !s.isAdmin(ctx, userID) {
		return model.Answer{}, apperror.Forbidden("only the author can edit this answer")
	}
	return s.repo.UpdateAnswer(ctx, id, body)
}

// DeleteAnswer removes an answer and its votes.
func (s *ForumService) DeleteAnswer(ctx context.Context, userID, id int64) error {
	a, err := s.repo.GetAnswer(ctx, id)
	if err != nil {
		return err
	}
	if a.AuthorID != userID && !s.isAdmin(ctx, userID) {
		return apperror.Forbidden("only the author can delete this answer")
	}
	return s.repo.DeleteAnswer(ctx, id)
}

// === Votes ===

// Vote records userID's vote and returns the target's new total.
func (s *ForumService) Vote(ctx context.Context, userID int64, v model.Vote) (int, error) {
	if v.Direction != model.Up && v.Direction != model.Down {
		return 0, apperror.ValidationFailed("value", "vote value must be 1 or -1")
	}
	if v.Kind != model.TargetQuestion && v.Kind != model.TargetAnswer {
		return 0, apperror.ValidationFailed("kind", fmt.Sprintf("unknown vote target %q", v.Kind))
	}
	return s.repo.ApplyVote(ctx, userID, v.Kind, v.TargetID, toggle(v.Direction))
}

// toggle is the one-vote-per-user rule:
//
//	no vote     + up   → up    (+1)
//	up          + up   → none  (-1)
//	down        + up   → up    (+2)
func toggle(dir model.Direction) repository.VoteRule {
	return func(prev model.Direction, had bool) (model.Direction, bool) {
		if had && prev == dir {
			return 0, false
		}
		return dir, true
	}
}

// === helpers ===

func (s *ForumService) isAdmin(ctx context.Context, userID int64) bool {
	u, err := s.users.User(ctx, userID)
	return err == nil && u.Role == "admin"
}

func cleanQuestion(nq model.NewQuestion) (model.NewQuestion, error) {
	nq.Title = strings.TrimSpace(nq.Title)
	nq.Body = strings.TrimSpace(nq.Body)
	if nq.Title == "" {
		return nq, apperror.ValidationFailed("title", "title is required")
	}
	if len(nq.Title) > maxTitleLength {
		return nq, apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or fewer", maxTitleLength))
	}
	if nq.Body == "" {
		return nq, apperror.ValidationFailed("body", "body is required")
	}
	return nq, nil
}
