package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/campus-client/internal/apperror"
)

// === Test doubles ===

// fakeCreds is a hand-written Credentials that records evictions.
type fakeCreds struct {
	mu      sync.Mutex
	cred    Credential
	evicted []uint64
}

func (f *fakeCreds) Current() Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred
}

func (f *fakeCreds) Evict(_ context.Context, gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, gen)
}

func (f *fakeCreds) evictions() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.evicted...)
}

// fakeRecorder counts RecordRequest calls by status.
type fakeRecorder struct {
	mu     sync.Mutex
	status []int
	routes []string
}

func (f *fakeRecorder) RecordRequest(_, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, status)
	f.routes = append(f.routes, route)
}
func (f *fakeRecorder) RecordEviction()             {}
func (f *fakeRecorder) RecordVote(string, string)   {}
func (f *fakeRecorder) RecordRefresh(string, error) {}

func newTestClient(t *testing.T, h http.Handler, creds *fakeCreds) (*Client, *fakeRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	rec := &fakeRecorder{}
	c, err := New(Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second, Metrics: rec}, creds)
	require.NoError(t, err)
	return c, rec
}

// === Request augmentation ===

func TestSend_AttachesBearerWhenTokenPresent(t *testing.T) {
	var gotAuth, gotReqID, gotPath string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path
		w.Write([]byte(`{"id":1}`))
	})
	c, _ := newTestClient(t, h, &fakeCreds{cred: Credential{Token: "abc123", Generation: 1}})

	var out struct{ ID int }
	require.NoError(t, c.Send(context.Background(), http.MethodGet, "/users/me", nil, nil, &out))

	assert.Equal(t, "Bearer abc123", gotAuth)
	assert.NotEmpty(t, gotReqID)
	assert.Equal(t, "/api/users/me", gotPath)
	assert.Equal(t, 1, out.ID)
}

func TestSend_AnonymousHasNoAuthorization(t *testing.T) {
	var gotAuth string
	var called bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	})
	c, _ := newTestClient(t, h, &fakeCreds{})

	require.NoError(t, c.Send(context.Background(), http.MethodGet, "/questions", nil, nil, nil))

	assert.True(t, called)
	assert.Empty(t, gotAuth)
}

func TestSend_QueryAndBody(t *testing.T) {
	var gotQuery url.Values
	var gotBody map[string]string
	var gotContentType string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`7`))
	})
	c, _ := newTestClient(t, h, &fakeCreds{cred: Credential{Token: "t", Generation: 1}})

	var total int
	err := c.Send(context.Background(), http.MethodPost, "/questions/42/vote",
		map[string]string{"note": "hi"}, url.Values{"value": {"1"}}, &total)
	require.NoError(t, err)

	assert.Equal(t, 7, total)
	assert.Equal(t, "1", gotQuery.Get("value"))
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "hi", gotBody["note"])
}

// === Response interception ===

func TestSend_401EvictsWithCapturedGeneration(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"token expired"}`, http.StatusUnauthorized)
	})
	creds := &fakeCreds{cred: Credential{Token: "old", Generation: 3}}
	c, _ := newTestClient(t, h, creds)

	err := c.Send(context.Background(), http.MethodGet, "/users/me", nil, nil, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrAuth))
	assert.Equal(t, []uint64{3}, creds.evictions())
}

func TestSend_401WithoutEvictionContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	creds := &fakeCreds{cred: Credential{Token: "old", Generation: 3}}
	c, _ := newTestClient(t, h, creds)

	err := c.Send(WithoutEviction(context.Background()), http.MethodGet, "/users/me", nil, nil, nil)

	assert.True(t, errors.Is(err, apperror.ErrAuth))
	assert.Empty(t, creds.evictions())
}

func TestSend_401AnonymousDoesNotEvict(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	})
	creds := &fakeCreds{}
	c, _ := newTestClient(t, h, creds)

	err := c.Send(context.Background(), http.MethodPost, "/auth/login", map[string]string{}, nil, nil)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Invalid credentials", appErr.Message)
	assert.Empty(t, creds.evictions())
}

func TestSend_ConcurrentUnauthorizedAllReportSameGeneration(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	creds := &fakeCreds{cred: Credential{Token: "old", Generation: 9}}
	c, _ := newTestClient(t, h, creds)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Send(context.Background(), http.MethodGet, "/questions/1", nil, nil, nil)
		}()
	}
	wg.Wait()

	for _, gen := range creds.evictions() {
		assert.Equal(t, uint64(9), gen)
	}
	assert.Len(t, creds.evictions(), 5)
}

// === Error mapping ===

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		want        error
		wantMessage string
	}{
		{"json message", http.StatusNotFound, `{"error":"not_found","message":"question not found with id 9"}`, apperror.ErrNotFound, "question not found with id 9"},
		{"text body", http.StatusForbidden, "You can only delete your own questions", apperror.ErrForbidden, "You can only delete your own questions"},
		{"empty body", http.StatusInternalServerError, "", apperror.ErrServer, "Internal Server Error"},
		{"bad request", http.StatusBadRequest, `{"message":"title is required"}`, apperror.ErrValidation, "title is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c, _ := newTestClient(t, h, &fakeCreds{})

			err := c.Send(context.Background(), http.MethodGet, "/questions/9", nil, nil, nil)

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantMessage, appErr.Message)
		})
	}
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	rec := &fakeRecorder{}
	c, err := New(Options{BaseURL: baseURL, Timeout: time.Second, Metrics: rec}, &fakeCreds{})
	require.NoError(t, err)

	err = c.Send(context.Background(), http.MethodGet, "/questions", nil, nil, nil)

	assert.True(t, errors.Is(err, apperror.ErrNetwork))
	assert.True(t, apperror.Retryable(err))
	assert.Equal(t, []int{0}, rec.status)
}

func TestSend_DecodeFailure(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})
	c, _ := newTestClient(t, h, &fakeCreds{})

	var out map[string]any
	err := c.Send(context.Background(), http.MethodGet, "/questions/1", nil, nil, &out)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, errors.Is(err, apperror.ErrServer))
	assert.False(t, errors.Is(err, apperror.ErrNetwork))
	assert.Equal(t, http.StatusOK, appErr.Status)
}

func TestSend_RawBytesSkipDecoding(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"html", `<html>gateway</html>`},
		{"truncated json", `{"content": [`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			c, _ := newTestClient(t, h, &fakeCreds{})

			var raw []byte
			err := c.Send(context.Background(), http.MethodGet, "/questions", nil, nil, &raw)

			require.NoError(t, err)
			assert.Equal(t, tt.body, string(raw))
		})
	}
}

func TestSend_RecordsMetricsWithRouteTemplate(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`1`))
	})
	c, rec := newTestClient(t, h, &fakeCreds{})

	require.NoError(t, c.Send(context.Background(), http.MethodPost, "/answers/12/vote", nil, nil, nil))

	assert.Equal(t, []int{200}, rec.status)
	assert.Equal(t, []string{"/answers/{id}/vote"}, rec.routes)
}

func TestRouteLabel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/questions", "/questions"},
		{"/questions/42", "/questions/{id}"},
		{"/questions/42/vote", "/questions/{id}/vote"},
		{"/answers/question/7", "/answers/question/{id}"},
		{"/users/me", "/users/me"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.in), tt.in)
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"}, &fakeCreds{})
	assert.Error(t, err)
}

func TestSend_RateLimiterHonoursContext(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{BaseURL: srv.URL, RateLimit: 0.001, RateBurst: 1}, &fakeCreds{})
	require.NoError(t, err)

	// first call consumes the burst
	require.NoError(t, c.Send(context.Background(), http.MethodGet, "/questions", nil, nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Send(ctx, http.MethodGet, "/questions", nil, nil, nil)
	assert.True(t, errors.Is(err, apperror.ErrNetwork))
}
