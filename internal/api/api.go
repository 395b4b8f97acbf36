// Package api is the typed surface of the forum REST API.
//
// THE INGESTION BOUNDARY:
// Every payload the server sends is decoded into a wire struct (wire.go) and
// mapped to a model type right here. Mapping fills defaults for missing
// fields, renames the server's field names (userId → AuthorID,
// upvotes → VoteTotal), parses timestamps and sanitizes user-generated text.
// Code past this package never sees raw JSON and never checks whether a
// field was present.
//
// DEFENSIVE LIST NORMALIZATION:
// A question page or profile listing with an unexpected shape is logged and
// read as empty instead of failing the view. The list endpoints take the raw
// body from the transport, so this covers bodies that are not JSON at all
// (a gateway's HTML page, a truncated response). That is the only place an
// error is swallowed; every other failure is returned.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
)

// Sender is the transport contract: transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, method, path string, body any, query url.Values, out any) error
}

// DefaultSort is the list order used when a filter names none.
const DefaultSort = "latest"

// API wraps a Sender with the forum's endpoints.
type API struct {
	send   Sender
	clean  *Sanitizer
	logger *slog.Logger
}

// New creates an API over s.
func New(s Sender, logger *slog.Logger) *API {
	return &API{send: s, clean: NewSanitizer(), logger: logger}
}

// === Auth & users ===

// Login exchanges credentials for a token. It does not touch any session state.
func (a *API) Login(ctx context.Context, email, password string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if password == "" {
		return "", apperror.ValidationFailed("password", "password is required")
	}

	var resp loginResponse
	if err := a.send.Send(ctx, http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, nil, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", apperror.Auth("login response carried no token")
	}
	return resp.Token, nil
}

// Register creates an account. It does not establish a session.
func (a *API) Register(ctx context.Context, name, email, password string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperror.ValidationFailed("name", "name is required")
	case strings.TrimSpace(email) == "":
		return apperror.ValidationFailed("email", "email is required")
	case password == "":
		return apperror.ValidationFailed("password", "password is required")
	}
	return a.send.Send(ctx, http.MethodPost, "/auth/register", registerRequest{Name: name, Email: email, Password: password}, nil, nil)
}

// Me fetches the identity the current token belongs to.
func (a *API) Me(ctx context.Context) (model.User, error) {
	var d userDTO
	if err := a.send.Send(ctx, http.MethodGet, "/users/me", nil, nil, &d); err != nil {
		return model.User{}, err
	}
	return a.clean.user(d), nil
}

// User fetches a public profile.
func (a *API) User(ctx context.Context, id int64) (model.User, error) {
	var d userDTO
	if err := a.send.Send(ctx, http.MethodGet, "/users/"+itoa(id), nil, nil, &d); err != nil {
		return model.User{}, err
	}
	return a.clean.user(d), nil
}

// UpdateProfile changes the current user's name and role.
func (a *API) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (model.User, error) {
	if strings.TrimSpace(upd.Name) == "" {
		return model.User{}, apperror.ValidationFailed("name", "name is required")
	}
	var d userDTO
	if err := a.send.Send(ctx, http.MethodPut, "/users/update", profileRequest(upd), nil, &d); err != nil {
		return model.User{}, err
	}
	return a.clean.user(d), nil
}

// UserQuestions lists the questions a user asked. A malformed payload reads
// as empty.
func (a *API) UserQuestions(ctx context.Context, userID int64) ([]model.Question, error) {
	var raw []byte
	path := "/users/" + itoa(userID) + "/questions"
	if err := a.send.Send(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	return a.normalizeQuestions(path, raw), nil
}

// === Questions ===

// ListQuestions fetches one page of questions.
func (a *API) ListQuestions(ctx context.Context, f model.ListFilter) ([]model.Question, model.PageInfo, error) {
	q := url.Values{}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}
	sort := f.Sort
	if sort == "" {
		sort = DefaultSort
	}
	q.Set("sort", sort)

	var raw []byte
	if err := a.send.Send(ctx, http.MethodGet, "/questions", nil, q, &raw); err != nil {
		return nil, model.PageInfo{}, err
	}

	var page pageDTO
	if err := json.Unmarshal(raw, &page); err != nil {
		a.logger.Warn("unexpected question page shape",
			slog.String("path", "/questions"),
			slog.String("error", err.Error()),
		)
		return []model.Question{}, model.PageInfo{}, nil
	}
	info := model.PageInfo{
		TotalPages:    page.TotalPages,
		TotalElements: page.TotalElements,
		Size:          page.Size,
		Number:        page.Number,
	}
	return a.normalizeQuestions("/questions", page.Content), info, nil
}

// GetQuestion always goes to the server.
func (a *API) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var d questionDTO
	if err := a.send.Send(ctx, http.MethodGet, "/questions/"+itoa(id), nil, nil, &d); err != nil {
		return model.Question{}, err
	}
	return a.clean.question(d), nil
}

// AskQuestion posts a new question and returns the server's copy.
func (a *API) AskQuestion(ctx context.Context, nq model.NewQuestion) (model.Question, error) {
	if err := validateQuestion(nq); err != nil {
		return model.Question{}, err
	}
	var d questionDTO
	if err := a.send.Send(ctx, http.MethodPost, "/questions/ask", questionRequest(nq), nil, &d); err != nil {
		return model.Question{}, err
	}
	return a.clean.question(d), nil
}

// EditQuestion replaces a question's title and body.
func (a *API) EditQuestion(ctx context.Context, id int64, nq model.NewQuestion) (model.Question, error) {
	if err := validateQuestion(nq); err != nil {
		return model.Question{}, err
	}
	var d questionDTO
	if err := a.send.Send(ctx, http.MethodPut, "/questions/"+itoa(id)+"/edit", questionRequest(nq), nil, &d); err != nil {
		return model.Question{}, err
	}
	return a.clean.question(d), nil
}

func (a *API) DeleteQuestion(ctx context.Context, id int64) error {
	return a.send.Send(ctx, http.MethodDelete, "/questions/"+itoa(id), nil, nil, nil)
}

// === Answers ===

// ListAnswers fetches the answers of one question, oldest first.
func (a *API) ListAnswers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	var ds []answerDTO
	if err := a.send.Send(ctx, http.MethodGet, "/answers/question/"+itoa(questionID), nil, nil, &ds); err != nil {
		return nil, err
	}
	out := make([]model.Answer, 0, len(ds))
	for _, d := range ds {
		out = append(out, a.clean.answer(d, questionID))
	}
	return out, nil
}

func (a *API) PostAnswer(ctx context.Context, questionID int64, body string) (model.Answer, error) {
	if strings.TrimSpace(body) == "" {
		return model.Answer{}, apperror.ValidationFailed("body", "answer body is required")
	}
	var d answerDTO
	if err := a.send.Send(ctx, http.MethodPost, "/answers/post", answerRequest{QuestionID: questionID, Body: body}, nil, &d); err != nil {
		return model.Answer{}, err
	}
	return a.clean.answer(d, questionID), nil
}

func (a *API) EditAnswer(ctx context.Context, id int64, body string) (model.Answer, error) {
	if strings.TrimSpace(body) == "" {
		return model.Answer{}, apperror.ValidationFailed("body", "answer body is required")
	}
	var d answerDTO
	if err := a.send.Send(ctx, http.MethodPut, "/answers/"+itoa(id)+"/edit", answerRequest{Body: body}, nil, &d); err != nil {
		return model.Answer{}, err
	}
	return a.clean.answer(d, 0), nil
}

func (a *API) DeleteAnswer(ctx context.Context, id int64) error {
	return a.send.Send(ctx, http.MethodDelete, "/answers/"+itoa(id), nil, nil, nil)
}

// === Votes ===

// Vote casts v and returns the server's new total for the target.
func (a *API) Vote(ctx context.Context, v model.Vote) (int, error) {
	var base string
	switch v.Kind {
	case model.TargetQuestion:
		base = "/questions/"
	case model.TargetAnswer:
		base = "/answers/"
	default:
		return 0, apperror.ValidationFailed("kind", fmt.Sprintf("unknown vote target %q", v.Kind))
	}
	if v.Direction != model.Up && v.Direction != model.Down {
		return 0, apperror.ValidationFailed("direction", "vote direction must be up or down")
	}

	q := url.Values{"value": {strconv.Itoa(v.Direction.Value())}}
	var total int
	if err := a.send.Send(ctx, http.MethodPost, base+itoa(v.TargetID)+"/vote", nil, q, &total); err != nil {
		return 0, err
	}
	return total, nil
}

// === helpers ===

// normalizeQuestions decodes a JSON array of questions. Anything that is not
// an array (including text that is not JSON) reads as empty; elements that
// do not decode are skipped.
func (a *API) normalizeQuestions(path string, raw []byte) []model.Question {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		a.logger.Warn("unexpected question list shape",
			slog.String("path", path),
			slog.Int("bytes", len(raw)),
		)
		return []model.Question{}
	}

	ds := make([]questionDTO, 0, len(items))
	for i, item := range items {
		var d questionDTO
		if err := json.Unmarshal(item, &d); err != nil {
			a.logger.Warn("skipping malformed question",
				slog.String("path", path),
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		ds = append(ds, d)
	}
	return a.clean.questions(ds)
}

func validateQuestion(nq model.NewQuestion) error {
	if strings.TrimSpace(nq.Title) == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if strings.TrimSpace(nq.Body) == "" {
		return apperror.ValidationFailed("body", "body is required")
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
