package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/logger"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/transport"
)

// === Test double ===

type call struct {
	method string
	path   string
	body   any
	query  url.Values
}

// fakeSender answers every call with a canned JSON document keyed by
// "METHOD path", and records what it was asked.
type fakeSender struct {
	responses map[string]string
	errs      map[string]error
	calls     []call
}

func newFakeSender() *fakeSender {
	return &fakeSender{responses: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeSender) Send(_ context.Context, method, path string, body any, query url.Values, out any) error {
	f.calls = append(f.calls, call{method, path, body, query})
	key := method + " " + path
	if err, ok := f.errs[key]; ok {
		return err
	}
	resp, ok := f.responses[key]
	if !ok || out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = []byte(resp)
		return nil
	}
	return json.Unmarshal([]byte(resp), out)
}

func newTestAPI(t *testing.T) (*API, *fakeSender) {
	t.Helper()
	s := newFakeSender()
	return New(s, logger.Discard()), s
}

// === Mapping ===

func TestGetQuestion_MapsWireFields(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /questions/7"] = `{
		"id": 7, "title": "How do goroutines work?", "body": "<p>Explain</p>",
		"userId": 9, "authorName": "Aditya", "upvotes": 3, "answerCount": 2,
		"createdAt": "2025-11-18T21:13:52"
	}`

	q, err := a.GetQuestion(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, model.Question{
		ID:          7,
		Title:       "How do goroutines work?",
		Body:        "<p>Explain</p>",
		AuthorID:    9,
		AuthorName:  "Aditya",
		CreatedAt:   time.Date(2025, 11, 18, 21, 13, 52, 0, time.UTC),
		VoteTotal:   3,
		AnswerCount: 2,
	}, q)
}

func TestGetQuestion_MissingFieldsDefault(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /questions/1"] = `{"id": 1, "title": "t"}`

	q, err := a.GetQuestion(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "", q.Body)
	assert.Equal(t, 0, q.VoteTotal)
	assert.Equal(t, 0, q.AnswerCount)
	assert.True(t, q.CreatedAt.IsZero())
}

func TestSanitizer(t *testing.T) {
	s := NewSanitizer()

	assert.Equal(t, "<b>hi</b>", s.Body(`<script>alert(1)</script><b>hi</b>`))
	assert.Equal(t, "How to & why", s.Text(`<i>How</i> to & why`))
	assert.Equal(t, "Bobby", s.Text(` <img src=x onerror=alert(1)>Bobby `))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-11-18T21:13:52", time.Date(2025, 11, 18, 21, 13, 52, 0, time.UTC)},
		{"2025-11-18T21:13:52.123", time.Date(2025, 11, 18, 21, 13, 52, 123000000, time.UTC)},
		{"2025-11-18T21:13:52Z", time.Date(2025, 11, 18, 21, 13, 52, 0, time.UTC)},
		{"2025-11-18", time.Date(2025, 11, 18, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseTime(tt.in)), "parseTime(%q) = %v", tt.in, parseTime(tt.in))
		})
	}
}

func TestMe_RoleDefaultsToUser(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /users/me"] = `{"id": 1, "name": "Ada", "email": "a@b.com", "role": null}`

	u, err := a.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.DefaultRole, u.Role)
	assert.Equal(t, "Ada", u.Name)
}

// === Questions ===

func TestListQuestions_PageEnvelope(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /questions"] = `{
		"content": [{"id": 2, "title": "newer"}, {"id": 1, "title": "older"}],
		"totalPages": 3, "totalElements": 21, "size": 10, "number": 0
	}`

	qs, info, err := a.ListQuestions(context.Background(), model.ListFilter{Search: " go ", Size: 10})
	require.NoError(t, err)

	require.Len(t, qs, 2)
	assert.Equal(t, int64(2), qs[0].ID)
	assert.Equal(t, model.PageInfo{TotalPages: 3, TotalElements: 21, Size: 10, Number: 0}, info)

	q := s.calls[0].query
	assert.Equal(t, "go", q.Get("search"))
	assert.Equal(t, "10", q.Get("size"))
	assert.Equal(t, DefaultSort, q.Get("sort"))
	assert.False(t, q.Has("page"))
}

func TestListQuestions_MalformedDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"content missing", `{"totalPages": 1}`},
		{"content not an array", `{"content": {"id": 1}}`},
		{"content null", `{"content": null}`},
		{"bare array", `[{"id": 1}]`},
		{"scalar", `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, s := newTestAPI(t)
			s.responses["GET /questions"] = tt.body

			qs, _, err := a.ListQuestions(context.Background(), model.ListFilter{})

			require.NoError(t, err)
			assert.NotNil(t, qs)
			assert.Empty(t, qs)
		})
	}
}

func TestListQuestions_SkipsMalformedElements(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /questions"] = `{"content": [{"id": 1, "title": "ok"}, {"id": "x"}, {"id": 3, "title": "ok too"}]}`

	qs, _, err := a.ListQuestions(context.Background(), model.ListFilter{})
	require.NoError(t, err)

	require.Len(t, qs, 2)
	assert.Equal(t, int64(3), qs[1].ID)
}

func TestListQuestions_TransportErrorIsReturned(t *testing.T) {
	a, s := newTestAPI(t)
	s.errs["GET /questions"] = apperror.Network("GET /questions", errors.New("refused"))

	_, _, err := a.ListQuestions(context.Background(), model.ListFilter{})

	assert.True(t, errors.Is(err, apperror.ErrNetwork))
}

func TestAskQuestion_ValidatesBeforeSending(t *testing.T) {
	tests := []struct {
		name  string
		nq    model.NewQuestion
		field string
	}{
		{"missing title", model.NewQuestion{Body: "b"}, "title"},
		{"blank body", model.NewQuestion{Title: "t", Body: "  "}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, s := newTestAPI(t)

			_, err := a.AskQuestion(context.Background(), tt.nq)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.field, appErr.Field)
			assert.Empty(t, s.calls)
		})
	}
}

func TestUserQuestions_MalformedDegradesToEmpty(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /users/4/questions"] = `{"error": "weird"}`

	qs, err := a.UserQuestions(context.Background(), 4)

	require.NoError(t, err)
	assert.Empty(t, qs)
}

// anonymous is the Credentials of a signed-out session.
type anonymous struct{}

func (anonymous) Current() transport.Credential { return transport.Credential{} }
func (anonymous) Evict(context.Context, uint64) {}

// newHTTPAPI runs the API over a real transport against a server that
// answers every request with status 200 and body.
func newHTTPAPI(t *testing.T, body string) *API {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	tr, err := transport.New(transport.Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second}, anonymous{})
	require.NoError(t, err)
	return New(tr, logger.Discard())
}

func TestListEndpoints_UnreadableBodyDegradesToEmpty(t *testing.T) {
	bodies := []struct {
		name string
		body string
	}{
		{"html gateway page", `<html>gateway</html>`},
		{"truncated page", `{"content": [`},
		{"truncated array", `[{"id": 1`},
		{"empty", ``},
		{"plain text", `Service Unavailable`},
	}
	for _, tt := range bodies {
		t.Run(tt.name, func(t *testing.T) {
			a := newHTTPAPI(t, tt.body)
			ctx := context.Background()

			qs, page, err := a.ListQuestions(ctx, model.ListFilter{})
			require.NoError(t, err)
			assert.NotNil(t, qs)
			assert.Empty(t, qs)
			assert.Equal(t, model.PageInfo{}, page)

			qs, err = a.UserQuestions(ctx, 4)
			require.NoError(t, err)
			assert.NotNil(t, qs)
			assert.Empty(t, qs)
		})
	}
}

func TestListQuestions_OverTransport(t *testing.T) {
	a := newHTTPAPI(t, `{"content": [{"id": 42, "title": "t", "upvotes": 6}], "totalPages": 1, "totalElements": 1, "size": 10, "number": 0}`)

	qs, page, err := a.ListQuestions(context.Background(), model.ListFilter{})
	require.NoError(t, err)

	require.Len(t, qs, 1)
	assert.Equal(t, 6, qs[0].VoteTotal)
	assert.Equal(t, 1, page.TotalElements)
}

func TestGetQuestion_UnreadableBodyIsServerError(t *testing.T) {
	a := newHTTPAPI(t, `<html>gateway</html>`)

	_, err := a.GetQuestion(context.Background(), 7)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, errors.Is(err, apperror.ErrServer))
	assert.Equal(t, http.StatusOK, appErr.Status)
}

// === Answers ===

func TestListAnswers_FillsQuestionID(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["GET /answers/question/5"] = `[{"id": 1, "body": "first", "upvotes": 2}]`

	as, err := a.ListAnswers(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, as, 1)
	assert.Equal(t, int64(5), as[0].QuestionID)
	assert.Equal(t, 2, as[0].VoteTotal)
}

func TestPostAnswer_SendsQuestionID(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["POST /answers/post"] = `{"id": 10, "questionId": 5, "body": "hello"}`

	ans, err := a.PostAnswer(context.Background(), 5, "hello")
	require.NoError(t, err)

	assert.Equal(t, int64(10), ans.ID)
	assert.Equal(t, answerRequest{QuestionID: 5, Body: "hello"}, s.calls[0].body)
}

// === Votes ===

func TestVote(t *testing.T) {
	tests := []struct {
		name      string
		vote      model.Vote
		wantPath  string
		wantValue string
	}{
		{"question up", model.Vote{Kind: model.TargetQuestion, TargetID: 42, Direction: model.Up}, "/questions/42/vote", "1"},
		{"answer down", model.Vote{Kind: model.TargetAnswer, TargetID: 3, Direction: model.Down}, "/answers/3/vote", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, s := newTestAPI(t)
			s.responses["POST "+tt.wantPath] = `7`

			total, err := a.Vote(context.Background(), tt.vote)
			require.NoError(t, err)

			assert.Equal(t, 7, total)
			assert.Equal(t, tt.wantPath, s.calls[0].path)
			assert.Equal(t, tt.wantValue, s.calls[0].query.Get("value"))
		})
	}
}

func TestVote_RejectsBadDirection(t *testing.T) {
	a, s := newTestAPI(t)

	_, err := a.Vote(context.Background(), model.Vote{Kind: model.TargetQuestion, TargetID: 1, Direction: 2})

	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Empty(t, s.calls)
}

func TestLogin_EmptyTokenIsAuthError(t *testing.T) {
	a, s := newTestAPI(t)
	s.responses["POST /auth/login"] = `{}`

	_, err := a.Login(context.Background(), "a@b.com", "x")

	assert.True(t, errors.Is(err, apperror.ErrAuth))
}
