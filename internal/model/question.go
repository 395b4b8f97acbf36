package model

import "time"

// Question is a forum question as seen by the client.
//
// VoteTotal and AnswerCount are server-authoritative aggregates. A view may
// shadow them temporarily (optimistic vote), but the server value always wins
// when it arrives.
type Question struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	AuthorID    int64     `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	CreatedAt   time.Time `json:"createdAt"`
	VoteTotal   int       `json:"voteTotal"`
	AnswerCount int       `json:"answerCount"`
}

// NewQuestion is the payload for asking a question.
type NewQuestion struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// QuestionPatch describes an edit. Nil fields are left unchanged.
type QuestionPatch struct {
	Title *string
	Body  *string
}

// Apply copies the non-nil patch fields onto q.
func (p QuestionPatch) Apply(q *Question) {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Body != nil {
		q.Body = *p.Body
	}
}

// Empty reports whether the patch changes nothing.
func (p QuestionPatch) Empty() bool {
	return p.Title == nil && p.Body == nil
}

// ListFilter selects a page of questions.
type ListFilter struct {
	Search string
	Page   int
	Size   int
	Sort   string
}

// PageInfo is the pagination envelope that accompanies a question page.
type PageInfo struct {
	TotalPages    int `json:"totalPages"`
	TotalElements int `json:"totalElements"`
	Size          int `json:"size"`
	Number        int `json:"number"`
}
