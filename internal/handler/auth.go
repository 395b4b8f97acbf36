package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/campus-client/internal/auth"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/service"
)

// AuthHandler serves registration, login and the user endpoints.
//
// ROUTES:
//
//	POST /api/auth/register  → 201 + user
//	POST /api/auth/login     → 200 + {"token": "..."}
//	GET  /api/users/me       → current user (bearer required)
//	PUT  /api/users/update   → rename / change role (bearer required)
//	GET  /api/users/{id}     → any user's public profile
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, logger: logger}
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserJSON(u))
}

// HandleLogin exchanges credentials for a bearer token. The token lives in
// the response body; the client decides where to keep it.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// HandleMe returns the user the bearer token belongs to. A valid token whose
// user no longer exists reads as 401 so the client drops its session.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}
	u, err := h.auth.User(r.Context(), userID)
	if err != nil {
		h.logger.Warn("token for unknown user", slog.Int64("userID", userID))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := h.auth.User(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.auth.UpdateProfile(r.Context(), userID, model.ProfileUpdate{Name: req.Name, Role: req.Role})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}
