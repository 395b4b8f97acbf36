package model

import "time"

// Answer belongs to exactly one Question. The QuestionID foreign key is not
// enforced client-side; the server is the authority.
type Answer struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"questionId"`
	Body       string    `json:"body"`
	AuthorID   int64     `json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
	VoteTotal  int       `json:"voteTotal"`
}
