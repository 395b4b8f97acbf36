package handler

import (
	"time"

	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/service"
)

// timeLayout matches the forum backend: local wall time, no zone.
const timeLayout = "2006-01-02T15:04:05"

type userJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type questionJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	UserID      int64  `json:"userId"`
	AuthorName  string `json:"authorName"`
	CreatedAt   string `json:"createdAt"`
	Upvotes     int    `json:"upvotes"`
	AnswerCount int    `json:"answerCount"`
}

type answerJSON struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Body       string `json:"body"`
	UserID     int64  `json:"userId"`
	AuthorName string `json:"authorName"`
	CreatedAt  string `json:"createdAt"`
	Upvotes    int    `json:"upvotes"`
}

type pageJSON struct {
	Content       []questionJSON `json:"content"`
	TotalPages    int            `json:"totalPages"`
	TotalElements int            `json:"totalElements"`
	Size          int            `json:"size"`
	Number        int            `json:"number"`
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type questionRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type answerRequest struct {
	QuestionID int64  `json:"questionId"`
	Body       string `json:"body"`
}

type profileRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func toUserJSON(u model.User) userJSON {
	return userJSON{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: formatTime(u.CreatedAt),
	}
}

func toQuestionJSON(q model.Question) questionJSON {
	return questionJSON{
		ID:          q.ID,
		Title:       q.Title,
		Body:        q.Body,
		UserID:      q.AuthorID,
		AuthorName:  q.AuthorName,
		CreatedAt:   formatTime(q.CreatedAt),
		Upvotes:     q.VoteTotal,
		AnswerCount: q.AnswerCount,
	}
}

func toQuestionsJSON(qs []model.Question) []questionJSON {
	out := make([]questionJSON, 0, len(qs))
	for _, q := range qs {
		out = append(out, toQuestionJSON(q))
	}
	return out
}

func toAnswerJSON(a model.Answer) answerJSON {
	return answerJSON{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		Body:       a.Body,
		UserID:     a.AuthorID,
		AuthorName: a.AuthorName,
		CreatedAt:  formatTime(a.CreatedAt),
		Upvotes:    a.VoteTotal,
	}
}

func toPageJSON(p service.Page) pageJSON {
	return pageJSON{
		Content:       toQuestionsJSON(p.Content),
		TotalPages:    p.TotalPages,
		TotalElements: p.TotalElements,
		Size:          p.Size,
		Number:        p.Number,
	}
}
