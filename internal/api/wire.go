package api

import (
	"encoding/json"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sakif/campus-client/internal/model"
)

// The forum API's JSON shapes. Only this file knows them; everything past
// the mapping functions works with model types.

type userDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type questionDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	UserID      int64  `json:"userId"`
	AuthorName  string `json:"authorName"`
	CreatedAt   string `json:"createdAt"`
	Upvotes     int    `json:"upvotes"`
	AnswerCount int    `json:"answerCount"`
}

type answerDTO struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Body       string `json:"body"`
	UserID     int64  `json:"userId"`
	AuthorName string `json:"authorName"`
	CreatedAt  string `json:"createdAt"`
	Upvotes    int    `json:"upvotes"`
}

// pageDTO keeps content raw so a malformed content field can be detected
// instead of failing the whole decode.
type pageDTO struct {
	Content       json.RawMessage `json:"content"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int             `json:"totalElements"`
	Size          int             `json:"size"`
	Number        int             `json:"number"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type questionRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type answerRequest struct {
	QuestionID int64  `json:"questionId,omitempty"`
	Body       string `json:"body"`
}

type profileRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Sanitizer cleans user-generated text as it enters the client.
// Bodies keep safe formatting markup; titles and names become plain text.
type Sanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer using bluemonday's UGC policy for bodies
// and its strict policy for single-line fields.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		rich:  bluemonday.UGCPolicy(),
		plain: bluemonday.StrictPolicy(),
	}
}

// Body sanitizes a question or answer body.
func (s *Sanitizer) Body(v string) string {
	return s.rich.Sanitize(v)
}

// Text strips all markup and returns unescaped plain text.
func (s *Sanitizer) Text(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(v)))
}

// Server timestamps come without a zone ("2025-11-18T21:13:52"); they are
// read as UTC. RFC 3339 is accepted too.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime returns the zero time for an empty or unparseable value.
func parseTime(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (s *Sanitizer) user(d userDTO) model.User {
	role := strings.TrimSpace(d.Role)
	if role == "" {
		role = model.DefaultRole
	}
	return model.User{
		ID:        d.ID,
		Name:      s.Text(d.Name),
		Email:     strings.TrimSpace(d.Email),
		Role:      role,
		CreatedAt: parseTime(d.CreatedAt),
	}
}

func (s *Sanitizer) question(d questionDTO) model.Question {
	return model.Question{
		ID:          d.ID,
		Title:       s.Text(d.Title),
		Body:        s.Body(d.Body),
		AuthorID:    d.UserID,
		AuthorName:  s.Text(d.AuthorName),
		CreatedAt:   parseTime(d.CreatedAt),
		VoteTotal:   d.Upvotes,
		AnswerCount: d.AnswerCount,
	}
}

// answer maps an answer. questionID fills in the foreign key when the
// payload omits it.
func (s *Sanitizer) answer(d answerDTO, questionID int64) model.Answer {
	if d.QuestionID == 0 {
		d.QuestionID = questionID
	}
	return model.Answer{
		ID:         d.ID,
		QuestionID: d.QuestionID,
		Body:       s.Body(d.Body),
		AuthorID:   d.UserID,
		AuthorName: s.Text(d.AuthorName),
		CreatedAt:  parseTime(d.CreatedAt),
		VoteTotal:  d.Upvotes,
	}
}

func (s *Sanitizer) questions(ds []questionDTO) []model.Question {
	out := make([]model.Question, 0, len(ds))
	for _, d := range ds {
		out = append(out, s.question(d))
	}
	return out
}
