package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/auth"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/service"
)

// ForumHandler serves questions, answers and votes.
//
// ROUTES:
//
//	GET    /api/questions?search=&page=&size=&sort=   page envelope
//	GET    /api/questions/{id}
//	POST   /api/questions/ask                         (bearer)
//	PUT    /api/questions/{id}/edit                   (bearer, author)
//	DELETE /api/questions/{id}                        (bearer, author) text body
//	POST   /api/questions/{id}/vote?value=±1          (bearer) → new total
//	GET    /api/users/{id}/questions
//	GET    /api/answers/question/{id}
//	POST   /api/answers/post                          (bearer)
//	PUT    /api/answers/{id}/edit                     (bearer, author)
//	DELETE /api/answers/{id}                          (bearer, author) text body
//	POST   /api/answers/{id}/vote?value=±1            (bearer) → new total
type ForumHandler struct {
	forum  *service.ForumService
	logger *slog.Logger
}

func NewForumHandler(forum *service.ForumService, logger *slog.Logger) *ForumHandler {
	return &ForumHandler{forum: forum, logger: logger}
}

// === Questions ===

func (h *ForumHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.forum.ListQuestions(r.Context(),
		q.Get("search"),
		queryInt(r, "page", 0),
		queryInt(r, "size", service.DefaultPageSize),
		q.Get("sort"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageJSON(page))
}

func (h *ForumHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.forum.Question(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionJSON(q))
}

func (h *ForumHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.forum.Ask(r.Context(), userID, model.NewQuestion(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQuestionJSON(q))
}

func (h *ForumHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.forum.EditQuestion(r.Context(), userID, id, model.NewQuestion(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionJSON(q))
}

func (h *ForumHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.forum.DeleteQuestion(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Question deleted successfully")
}

func (h *ForumHandler) HandleUserQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	qs, err := h.forum.UserQuestions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionsJSON(qs))
}

// === Answers ===

func (h *ForumHandler) HandleAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	as, err := h.forum.Answers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]answerJSON, 0, len(as))
	for _, a := range as {
		out = append(out, toAnswerJSON(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ForumHandler) HandlePostAnswer(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.QuestionID <= 0 {
		writeError(w, apperror.ValidationFailed("questionId", "questionId is required"))
		return
	}
	a, err := h.forum.PostAnswer(r.Context(), userID, req.QuestionID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnswerJSON(a))
}

func (h *ForumHandler) HandleEditAnswer(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.forum.EditAnswer(r.Context(), userID, id, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnswerJSON(a))
}

func (h *ForumHandler) HandleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.forum.DeleteAnswer(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Answer deleted successfully")
}

// === Votes ===

// HandleVote returns a handler for votes on kind. The response body is the
// bare new total, e.g. `7`.
func (h *ForumHandler) HandleVote(kind model.TargetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())
		id, err := idParam(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		dir, err := model.ParseDirection(r.URL.Query().Get("value"))
		if err != nil {
			writeError(w, apperror.ValidationFailed("value", "vote value must be 1 or -1"))
			return
		}

		total, err := h.forum.Vote(r.Context(), userID, model.Vote{Kind: kind, TargetID: id, Direction: dir})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, total)
	}
}
