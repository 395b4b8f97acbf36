package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Hour); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", ts.ttl, DefaultTTL)
	}
}

// =========================================================================
// GENERATE / VALIDATE
// =========================================================================

func TestGenerate_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate(7)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if n := strings.Count(token, "."); n != 2 {
		t.Errorf("Generate() token has %d dots, want 2", n)
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Generate(42)
	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Validate() user = %d, want 42", got)
	}
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("a-completely-different-secret", time.Hour)

	expired, _ := ts.GenerateWithDuration(1, -time.Minute)
	valid, _ := ts.Generate(1)
	foreign, _ := other.Generate(1)
	tampered := valid[:len(valid)-2] + "xx"

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"tampered signature", tampered},
		{"wrong secret", foreign},
		{"empty", ""},
		{"garbage", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ts.Validate(tt.token); err == nil {
				t.Errorf("Validate(%q) should fail", tt.name)
			}
		})
	}
}

// =========================================================================
// MIDDLEWARE
// =========================================================================

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate(9)

	var seen int64
	h := RequireAuth(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   int64
	}{
		{"valid bearer", "Bearer " + token, http.StatusOK, 9},
		{"lowercase scheme", "bearer " + token, http.StatusOK, 9},
		{"missing header", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, 0},
		{"bad token", "Bearer nope", http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = 0
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seen != tt.wantUser {
				t.Errorf("user in context = %d, want %d", seen, tt.wantUser)
			}
		})
	}
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	ts := newTestTokenService(t)

	called := false
	h := OptionalAuth(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := UserIDFromContext(r.Context()); ok {
			t.Error("anonymous request should carry no user")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatal("OptionalAuth should call the next handler")
	}
}
