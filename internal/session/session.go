// Package session owns the client's authentication state.
//
// ONE OWNED OBJECT, NO GLOBALS:
// A *Store is created once by the composition root and injected wherever the
// session matters. It owns the token, the resolved identity and the
// transport that attaches the token, so there is exactly one place that
// reads or writes any of them.
//
// STATES:
//
//	Bootstrapping → Authenticated   (persisted token resolved via /users/me)
//	Bootstrapping → Anonymous       (no token, expired token, rejected token)
//	Anonymous     → Authenticated   (Login / Register)
//	Authenticated → Anonymous       (Logout, or eviction after a 401)
//
// Status is Authenticated if and only if both a token and a user are held.
// A token without a user exists only while Bootstrapping or inside Login.
//
// GENERATIONS:
// Every change of token bumps a generation counter. The transport reports
// the generation a failing call was sent with, and Evict ignores stale
// generations. That makes eviction idempotent: five concurrent 401s for the
// same token produce one cleared session and one navigation.
//
// PERSISTENCE ORDER:
// Writes to the token repository are serialized by persistMu, and each one
// is made together with the generation check that allows it. An eviction
// that is still clearing the old token therefore finishes before a new
// login saves its token, and never deletes it afterwards.
//
//	lock order: persistMu, then mu
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/campus-client/internal/api"
	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/metrics"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/repository"
	"github.com/sakif/campus-client/internal/transport"
)

// Status is the session's lifecycle state.
type Status int

const (
	Bootstrapping Status = iota
	Authenticated
	Anonymous
)

func (s Status) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Navigator is the routing collaborator. The store only ever sends the user
// to the sign-in view; returnTo is the path to come back to ("" for none).
type Navigator interface {
	SignIn(returnTo string)
}

// State is a copy of the session as seen at one instant.
type State struct {
	Status   Status
	User     model.User // zero unless Authenticated
	HasToken bool
}

// Options configures a Store.
type Options struct {
	Transport transport.Options
	Tokens    repository.TokenRepository
	Navigator Navigator
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// Store is the session store.
type Store struct {
	// persistMu guards the token repository; see PERSISTENCE ORDER.
	persistMu sync.Mutex

	mu     sync.Mutex
	token  string
	expiry time.Time
	gen    uint64
	user   model.User
	status Status

	ready     chan struct{}
	readyOnce sync.Once

	tokens    repository.TokenRepository
	nav       Navigator
	transport *transport.Client
	api       *api.API
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time
}

// New creates a Store in the Bootstrapping state together with the transport
// it owns. Call Bootstrap before rendering anything that needs identity.
func New(opts Options) (*Store, error) {
	if opts.Tokens == nil {
		return nil, errors.New("session: token repository is required")
	}
	if opts.Navigator == nil {
		return nil, errors.New("session: navigator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}

	s := &Store{
		status:  Bootstrapping,
		ready:   make(chan struct{}),
		tokens:  opts.Tokens,
		nav:     opts.Navigator,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
	}

	topts := opts.Transport
	if topts.Logger == nil {
		topts.Logger = opts.Logger
	}
	if topts.Metrics == nil {
		topts.Metrics = opts.Metrics
	}
	t, err := transport.New(topts, s)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.transport = t
	s.api = api.New(t, opts.Logger)
	return s, nil
}

// API returns the typed API bound to this session's transport.
func (s *Store) API() *api.API {
	return s.api
}

// === Lifecycle ===

// Bootstrap resolves a persisted token into an identity.
//
// No persisted token, a token whose exp has passed, or a token the server
// rejects all end in Anonymous with the persisted token cleared. Any other
// failure (server unreachable) also ends in Anonymous but keeps the persisted
// token for the next start, and returns the error.
//
// Bootstrap always completes the loading phase, whatever the outcome.
func (s *Store) Bootstrap(ctx context.Context) error {
	defer s.markReady()

	start := s.Current().Generation
	tok, err := s.tokens.LoadToken(ctx)
	if err != nil {
		s.detach(start)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("session: loading token: %w", err)
	}

	expiry := tokenExpiry(tok)
	if !expiry.IsZero() && !s.now().Before(expiry) {
		s.logger.Info("persisted token expired", slog.Time("expired_at", expiry))
		s.clearIfCurrent(ctx, start)
		return nil
	}

	gen := s.attach(tok, expiry, Bootstrapping)

	user, err := s.api.Me(transport.WithoutEviction(ctx))
	if err != nil {
		if errors.Is(err, apperror.ErrAuth) {
			s.logger.Info("persisted token rejected")
			s.clearIfCurrent(ctx, gen)
			return nil
		}
		s.detach(gen)
		return fmt.Errorf("session: resolving identity: %w", err)
	}

	if !s.resolve(gen, user) {
		return nil
	}
	s.logger.Info("session restored", slog.Int64("user_id", user.ID))
	return nil
}

// Login authenticates with email and password and returns the identity.
//
// A rejected login never persists anything and leaves the current session as
// it was.
func (s *Store) Login(ctx context.Context, email, password string) (model.User, error) {
	tok, err := s.api.Login(transport.WithoutEviction(ctx), email, password)
	if err != nil {
		return model.User{}, fmt.Errorf("session: login: %w", err)
	}

	gen, err := s.persist(ctx, tok)
	if err != nil {
		return model.User{}, fmt.Errorf("session: saving token: %w", err)
	}

	user, err := s.api.Me(transport.WithoutEviction(ctx))
	if err != nil {
		s.clearIfCurrent(ctx, gen)
		s.markReady()
		return model.User{}, fmt.Errorf("session: resolving identity: %w", err)
	}

	if !s.resolve(gen, user) {
		s.markReady()
		return model.User{}, fmt.Errorf("session: login: %w", apperror.Auth("session changed during login"))
	}
	s.markReady()
	s.logger.Info("logged in", slog.Int64("user_id", user.ID))
	return user, nil
}

// Register creates an account and then logs into it with the same
// credentials. Registration by itself establishes no session.
func (s *Store) Register(ctx context.Context, name, email, password string) (model.User, error) {
	if err := s.api.Register(ctx, name, email, password); err != nil {
		return model.User{}, fmt.Errorf("session: register: %w", err)
	}
	return s.Login(ctx, email, password)
}

// Logout clears the session. It never fails and always ends in Anonymous.
func (s *Store) Logout(ctx context.Context) {
	s.persistMu.Lock()
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
	s.clearPersisted(ctx)
	s.persistMu.Unlock()

	s.markReady()
	s.logger.Info("logged out")
}

// Evict implements transport.Credentials. It clears the session if gen is
// still the current generation and navigates to sign-in; otherwise it does
// nothing.
func (s *Store) Evict(ctx context.Context, gen uint64) {
	s.persistMu.Lock()
	s.mu.Lock()
	if gen != s.gen || s.token == "" {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return
	}
	userID := s.user.ID
	s.clearLocked()
	s.mu.Unlock()
	s.clearPersisted(context.WithoutCancel(ctx))
	s.persistMu.Unlock()

	s.metrics.RecordEviction()
	s.logger.Warn("session evicted",
		slog.String("event_id", xid.New().String()),
		slog.Int64("user_id", userID),
		slog.Uint64("generation", gen),
	)
	s.nav.SignIn("")
}

// Current implements transport.Credentials.
func (s *Store) Current() transport.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transport.Credential{Token: s.token, Expiry: s.expiry, Generation: s.gen}
}

// UpdateProfile changes the current user's name and role and replaces the
// held identity with the server's answer.
func (s *Store) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) (model.User, error) {
	s.mu.Lock()
	gen, status := s.gen, s.status
	s.mu.Unlock()
	if status != Authenticated {
		return model.User{}, fmt.Errorf("session: update profile: %w", apperror.Auth("sign in required"))
	}

	user, err := s.api.UpdateProfile(ctx, upd)
	if err != nil {
		return model.User{}, fmt.Errorf("session: update profile: %w", err)
	}

	s.mu.Lock()
	if s.gen == gen && s.status == Authenticated {
		s.user = user
	}
	s.mu.Unlock()
	return user, nil
}

// === Queries ===

// State returns a copy of the current session.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Status: s.status, HasToken: s.token != ""}
	if s.status == Authenticated {
		st.User = s.user
	}
	return st
}

// User returns the identity if the session is authenticated.
func (s *Store) User() (model.User, bool) {
	st := s.State()
	return st.User, st.Status == Authenticated
}

func (s *Store) IsAuthenticated() bool {
	return s.State().Status == Authenticated
}

// Loading reports whether the bootstrap identity fetch is still pending.
func (s *Store) Loading() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

// WaitReady blocks until the loading phase is over or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequireAuth gates a protected view. It waits for bootstrap to finish; if
// the session is then anonymous it sends the user to sign-in with from as
// the return path and returns an auth error.
func (s *Store) RequireAuth(ctx context.Context, from string) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	if s.IsAuthenticated() {
		return nil
	}
	s.nav.SignIn(from)
	return apperror.Auth("sign in required")
}

// === internals ===

// attach installs a new token and returns its generation.
func (s *Store) attach(tok string, expiry time.Time, status Status) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.token = tok
	s.expiry = expiry
	s.user = model.User{}
	s.status = status
	return s.gen
}

// persist saves tok and installs it as the current token in one step with
// respect to other repository writes. It returns the new generation.
func (s *Store) persist(ctx context.Context, tok string) (uint64, error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.tokens.SaveToken(ctx, tok); err != nil {
		return 0, err
	}
	return s.attach(tok, tokenExpiry(tok), Bootstrapping), nil
}

// clearIfCurrent drops the session and the persisted token, but only if gen
// is still the current generation. A token saved by a newer login survives.
func (s *Store) clearIfCurrent(ctx context.Context, gen uint64) bool {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.clearLocked()
	s.mu.Unlock()

	s.clearPersisted(ctx)
	return true
}

// resolve completes an attach with the fetched identity. It reports false if
// the token changed in the meantime (logout or another login).
func (s *Store) resolve(gen uint64, user model.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.user = user
	s.status = Authenticated
	return true
}

// detach drops the token installed with gen, if it is still current.
func (s *Store) detach(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.clearLocked()
	}
}

func (s *Store) clearLocked() {
	s.gen++
	s.token = ""
	s.expiry = time.Time{}
	s.user = model.User{}
	s.status = Anonymous
}

// clearPersisted must be called with persistMu held.
func (s *Store) clearPersisted(ctx context.Context) {
	if err := s.tokens.ClearToken(ctx); err != nil {
		s.logger.Error("failed to clear persisted token", slog.String("error", err.Error()))
	}
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client cannot verify it and only uses it to skip a doomed request. Opaque
// tokens yield the zero time.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
