package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sakif/campus-client/internal/model"
)

func ago(t time.Time) string {
	if t.IsZero() {
		return "unknown time"
	}
	return humanize.Time(t)
}

func printUser(w io.Writer, u model.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
	fmt.Fprintf(w, "  id %d · role %s · joined %s\n", u.ID, u.Role, ago(u.CreatedAt))
}

func printQuestionLine(w io.Writer, q model.Question) {
	fmt.Fprintf(w, "#%-5d %+4d  %-50s  %s, %s · %s\n",
		q.ID, q.VoteTotal, truncate(q.Title, 50), q.AuthorName, ago(q.CreatedAt),
		plural(q.AnswerCount, "answer"))
}

func printQuestion(w io.Writer, q model.Question) {
	fmt.Fprintf(w, "#%d  %s\n", q.ID, q.Title)
	fmt.Fprintf(w, "asked by %s %s · %+d votes · %s\n\n", q.AuthorName, ago(q.CreatedAt), q.VoteTotal, plural(q.AnswerCount, "answer"))
	fmt.Fprintln(w, q.Body)
}

func printAnswer(w io.Writer, a model.Answer) {
	fmt.Fprintf(w, "  [%d] %+d  %s, %s\n", a.ID, a.VoteTotal, a.AuthorName, ago(a.CreatedAt))
	for _, line := range strings.Split(a.Body, "\n") {
		fmt.Fprintf(w, "      %s\n", line)
	}
}

func printPage(w io.Writer, p model.PageInfo) {
	if p.TotalPages <= 1 {
		return
	}
	fmt.Fprintf(w, "page %d of %d (%s questions)\n", p.Number+1, p.TotalPages, humanize.Comma(int64(p.TotalElements)))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
