package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errMissingToken = errors.New("auth: missing bearer token")

// contextKey is unexported so no other package can read or shadow the
// values this package puts into a request context.
type contextKey string

const userIDKey contextKey = "userID"

// unauthorizedBody mirrors the JSON error shape of the handlers.
const unauthorizedBody = `{"error":"unauthorized","message":"valid authentication required"}`

// RequireAuth rejects requests without a valid bearer token with 401 and
// otherwise stores the user ID in the request context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(unauthorizedBody))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth records the user if a valid token is present and lets
// anonymous requests through. Public reads use it.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, or (0, false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id > 0
}

// extractUserID reads "Authorization: Bearer <token>" and validates it.
func extractUserID(r *http.Request, tokens *TokenService) (int64, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return 0, errMissingToken
	}
	return tokens.Validate(strings.TrimSpace(token))
}
