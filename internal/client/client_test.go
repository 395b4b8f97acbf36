package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/config"
	"github.com/sakif/campus-client/internal/metrics"
	"github.com/sakif/campus-client/internal/middleware"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/server"
	"github.com/sakif/campus-client/internal/session"
	"github.com/sakif/campus-client/internal/vote"
)

// =========================================================================
// FIXTURE
// =========================================================================
//
// Every test runs the real client against the local forum API (SQLite on
// :memory:) over a real HTTP connection. Nothing below the Client is faked
// except the token store, and one test uses the real SQLite store.

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) LoadToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", apperror.NotFound("token", "session.token")
	}
	return m.token, nil
}

func (m *memTokens) SaveToken(_ context.Context, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = tok
	return nil
}

func (m *memTokens) ClearToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

func (m *memTokens) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) SignIn(returnTo string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, returnTo)
}

func (n *recordingNav) calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type fixture struct {
	srv    *server.Server
	ts     *httptest.Server
	cfg    *config.Config
	tokens *memTokens
	nav    *recordingNav
	client *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, err := server.New(server.Config{
		JWTSecret:  "test-secret-at-least-16-chars!!",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.BaseURL = ts.URL + "/api"
	cfg.RateLimit = 0
	cfg.TokenDB = ":memory:"

	f := &fixture{
		srv:    srv,
		ts:     ts,
		cfg:    cfg,
		tokens: &memTokens{},
		nav:    &recordingNav{},
	}
	f.client = f.newClient(t)
	return f
}

func (f *fixture) newClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{
		Config:    f.cfg,
		Navigator: f.nav,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Tokens:    f.tokens,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// account registers a user directly on the server.
// seed inserts q with a fixed ID straight into the server's database.
func (f *fixture) seed(t *testing.T, q model.Question) {
	t.Helper()
	_, err := f.srv.Forum.Seed(context.Background(), q)
	require.NoError(t, err)
}

func (f *fixture) account(t *testing.T, name, email string) model.User {
	t.Helper()
	u, err := f.srv.Auth.Register(context.Background(), name, email, "x")
	require.NoError(t, err)
	return u
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Navigator: &recordingNav{}})
	assert.Error(t, err, "config is required")

	cfg := config.Default()
	cfg.TokenDB = ":memory:"
	_, err = New(Options{Config: cfg})
	assert.Error(t, err, "navigator is required")

	cfg.VoteMode = config.VoteModeOptimistic
	_, err = New(Options{Config: cfg, Navigator: &recordingNav{}})
	assert.Error(t, err, "optimistic without allow is refused")

	cfg.AllowOptimistic = true
	c, err := New(Options{Config: cfg, Navigator: &recordingNav{}})
	require.NoError(t, err)
	assert.Equal(t, vote.OptimisticDelta, c.Votes.Mode())
	require.NoError(t, c.Close())
}

// =========================================================================
// SESSION
// =========================================================================

func TestLoginPersistsAndRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Ada", "a@b.com")

	require.NoError(t, f.client.Bootstrap(ctx))
	assert.Equal(t, session.Anonymous, f.client.Session.State().Status)

	u, err := f.client.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.NotEmpty(t, f.tokens.get())

	// A second process start with the same token store.
	restarted := f.newClient(t)
	require.NoError(t, restarted.Bootstrap(ctx))
	st := restarted.Session.State()
	assert.Equal(t, session.Authenticated, st.Status)
	assert.Equal(t, u.ID, st.User.ID)
}

func TestLogin_BadCredentialsLeaveNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Ada", "a@b.com")
	require.NoError(t, f.client.Bootstrap(ctx))

	_, err := f.client.Session.Login(ctx, "a@b.com", "wrong")
	require.ErrorIs(t, err, apperror.ErrAuth)
	assert.Contains(t, err.Error(), "Invalid credentials")

	assert.Empty(t, f.tokens.get())
	assert.Empty(t, f.nav.calls(), "a failed login is not an eviction")
}

func TestRegisterLogsIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Bootstrap(ctx))

	u, err := f.client.Session.Register(ctx, "Grace", "g@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Grace", u.Name)
	assert.True(t, f.client.Session.IsAuthenticated())
}

func TestBootstrap_ServerDownKeepsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Ada", "a@b.com")
	require.NoError(t, f.client.Bootstrap(ctx))
	_, err := f.client.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	tok := f.tokens.get()

	f.srv.Faults.Set(http.MethodGet, "/api/users/me", middleware.Fault{Status: http.StatusServiceUnavailable})
	restarted := f.newClient(t)
	err = restarted.Bootstrap(ctx)

	require.ErrorIs(t, err, apperror.ErrServer)
	assert.Equal(t, session.Anonymous, restarted.Session.State().Status)
	assert.Equal(t, tok, f.tokens.get(), "a transient failure keeps the token for next time")
}

func TestBootstrap_RejectedTokenCleared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Ada", "a@b.com")
	require.NoError(t, f.client.Bootstrap(ctx))
	_, err := f.client.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)

	f.srv.Faults.Set(http.MethodGet, "/api/users/me", middleware.Fault{Status: http.StatusUnauthorized})
	restarted := f.newClient(t)
	require.NoError(t, restarted.Bootstrap(ctx))

	assert.Equal(t, session.Anonymous, restarted.Session.State().Status)
	assert.Empty(t, f.tokens.get())
	assert.Empty(t, f.nav.calls(), "bootstrap does not navigate")
}

func TestSQLiteTokenStoreSurvivesRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.account(t, "Ada", "a@b.com")
	f.cfg.TokenDB = filepath.Join(t.TempDir(), "state", "session.db")

	open := func() *Client {
		c, err := New(Options{Config: f.cfg, Navigator: f.nav})
		require.NoError(t, err)
		return c
	}

	first := open()
	require.NoError(t, first.Bootstrap(ctx))
	_, err := first.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := open()
	defer second.Close()
	require.NoError(t, second.Bootstrap(ctx))
	assert.True(t, second.Session.IsAuthenticated())
}

// =========================================================================
// VOTES AND PROPAGATION
// =========================================================================

func TestVoteEchoesServerTotalAndRefreshesList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.account(t, "Ada", "a@b.com")
	f.account(t, "Bob", "bob@b.com")
	f.seed(t, model.Question{ID: 42, Title: "Seeded", Body: "b", AuthorID: author.ID, AuthorName: "Ada", VoteTotal: 6})

	require.NoError(t, f.client.Bootstrap(ctx))
	_, err := f.client.Session.Login(ctx, "bob@b.com", "x")
	require.NoError(t, err)

	list := f.client.Views.NewQuestionList()
	defer list.Close()
	_, err = list.List(ctx, model.ListFilter{})
	require.NoError(t, err)

	detail := f.client.Views.NewQuestionDetail()
	defer detail.Close()
	_, err = detail.Load(ctx, 42)
	require.NoError(t, err)

	res, err := detail.Vote(ctx, model.Up)
	require.NoError(t, err)
	assert.Equal(t, vote.Applied, res.Phase)
	assert.Equal(t, 7, res.Total)

	q, _ := detail.Question()
	assert.Equal(t, 7, q.VoteTotal)

	listed, ok := list.Get(42)
	require.True(t, ok)
	assert.Equal(t, 7, listed.VoteTotal, "the list re-fetched after the vote")

	// Voting up again toggles the vote off on this backend; echo mode shows
	// whatever the server says.
	res, err = detail.Vote(ctx, model.Up)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Total)
}

func TestAnonymousVoteRedirectsWithoutCalling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.account(t, "Ada", "a@b.com")
	f.seed(t, model.Question{ID: 42, Title: "Seeded", Body: "b", AuthorID: author.ID, VoteTotal: 6})
	require.NoError(t, f.client.Bootstrap(ctx))

	detail := f.client.Views.NewQuestionDetail()
	defer detail.Close()
	_, err := detail.Load(ctx, 42)
	require.NoError(t, err)

	_, err = detail.Vote(ctx, model.Up)
	require.ErrorIs(t, err, apperror.ErrAuth)
	assert.Equal(t, []string{"/questions/42"}, f.nav.calls())

	stored, _ := f.srv.Forum.Question(ctx, 42)
	assert.Equal(t, 6, stored.VoteTotal)
}

func TestServerSideExpiryEvictsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.account(t, "Ada", "a@b.com")
	f.seed(t, model.Question{ID: 42, Title: "Seeded", Body: "b", AuthorID: author.ID, VoteTotal: 6})
	require.NoError(t, f.client.Bootstrap(ctx))
	_, err := f.client.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)

	detail := f.client.Views.NewQuestionDetail()
	defer detail.Close()
	_, err = detail.Load(ctx, 42)
	require.NoError(t, err)

	// The server stops accepting the token mid-session.
	f.srv.Faults.Set(http.MethodPost, "/api/questions/42/vote", middleware.Fault{Status: http.StatusUnauthorized})
	f.srv.Faults.Set(http.MethodGet, "/api/questions", middleware.Fault{Status: http.StatusUnauthorized})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		detail.Vote(ctx, model.Up)
	}()
	go func() {
		defer wg.Done()
		list := f.client.Views.NewQuestionList()
		defer list.Close()
		list.List(ctx, model.ListFilter{})
	}()
	wg.Wait()

	assert.Equal(t, session.Anonymous, f.client.Session.State().Status)
	assert.Empty(t, f.tokens.get())
	assert.Len(t, f.nav.calls(), 1, "one navigation per session expiry")

	q, _ := detail.Question()
	assert.Equal(t, 6, q.VoteTotal, "a failed echo vote leaves the total alone")
}

func TestMutationsPropagateToProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := f.account(t, "Ada", "a@b.com")
	require.NoError(t, f.client.Bootstrap(ctx))
	_, err := f.client.Session.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)

	profile := f.client.Views.NewProfileQuestions()
	defer profile.Close()
	_, _, err = profile.Load(ctx, me.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.Items())

	list := f.client.Views.NewQuestionList()
	defer list.Close()
	_, err = list.List(ctx, model.ListFilter{})
	require.NoError(t, err)

	created, err := list.Create(ctx, model.NewQuestion{Title: "Where is room 101?", Body: "Lost."})
	require.NoError(t, err)
	assert.Equal(t, created.ID, list.Items()[0].ID)

	require.Len(t, profile.Items(), 1)
	assert.Equal(t, created.ID, profile.Items()[0].ID)

	answers := f.client.Views.NewAnswerList()
	defer answers.Close()
	_, err = answers.Load(ctx, created.ID)
	require.NoError(t, err)
	_, err = answers.Create(ctx, "Second floor.")
	require.NoError(t, err)

	listed, _ := list.Get(created.ID)
	assert.Equal(t, 1, listed.AnswerCount)
}

func TestMetricsCountTraffic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.client.Bootstrap(ctx))

	list := f.client.Views.NewQuestionList()
	defer list.Close()
	_, err := list.List(ctx, model.ListFilter{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf, f.client.Metrics))
	assert.Contains(t, buf.String(), `qaclient_requests_total{method="GET",route="/questions",status="200"} 1`)
}
