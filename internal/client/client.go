// Package client assembles the forum client from its parts.
//
// DEPENDENCY GRAPH:
//
//	config.Config
//	    │
//	    ├── sqlite.DB ───────────────┐ (persisted token)
//	    │                            ▼
//	    ├── session.Store ──owns──► transport.Client ──► forum API
//	    │       │ API()
//	    │       ▼
//	    ├── vote.Protocol (caster = API, gate = Store)
//	    │
//	    ├── propagate.Registry
//	    │
//	    └── cache.Cache (backend = API, votes = Protocol, registry)
//
// Every front end (the CLI in cmd/qaclient, tests) builds one Client per
// user session and gets views from Client.Views.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sakif/campus-client/internal/cache"
	"github.com/sakif/campus-client/internal/config"
	"github.com/sakif/campus-client/internal/logger"
	"github.com/sakif/campus-client/internal/metrics"
	"github.com/sakif/campus-client/internal/propagate"
	"github.com/sakif/campus-client/internal/repository"
	sqliteRepo "github.com/sakif/campus-client/internal/repository/sqlite"
	"github.com/sakif/campus-client/internal/session"
	"github.com/sakif/campus-client/internal/transport"
	"github.com/sakif/campus-client/internal/vote"
)

// Options configures New. Only Config and Navigator are required.
type Options struct {
	Config    *config.Config
	Navigator session.Navigator
	Logger    *slog.Logger

	// Tokens overrides the SQLite token store named by Config.TokenDB.
	Tokens repository.TokenRepository
	// Base overrides the HTTP round tripper (tests, proxies).
	Base http.RoundTripper
}

// Client is one user's session with the forum.
type Client struct {
	Session  *session.Store
	Votes    *vote.Protocol
	Registry *propagate.Registry
	Views    *cache.Cache
	// Metrics holds the client's own counters; see metrics.WriteText.
	Metrics *prometheus.Registry

	logger *slog.Logger
	db     *sqliteRepo.DB // nil when Options.Tokens was given
}

// New wires a Client. It does not touch the network; call Bootstrap next.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("client: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	c := &Client{
		Metrics: reg,
		logger:  log,
	}

	tokens := opts.Tokens
	if tokens == nil {
		db, err := openTokenDB(cfg.TokenDB)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		c.db = db
		tokens = db
	}

	store, err := session.New(session.Options{
		Transport: transport.Options{
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
			Base:      opts.Base,
		},
		Tokens:    tokens,
		Navigator: opts.Navigator,
		Logger:    log,
		Metrics:   rec,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.Session = store

	mode, err := vote.ParseMode(cfg.VoteMode)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	votes, err := vote.New(store.API(), store, vote.Options{
		Mode:            mode,
		AllowOptimistic: cfg.AllowOptimistic,
		Logger:          log,
		Metrics:         rec,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.Votes = votes

	c.Registry = propagate.NewRegistry(log, rec)
	c.Views = cache.New(cache.Deps{
		Backend:  store.API(),
		Votes:    votes,
		Registry: c.Registry,
		Logger:   log,
		PageSize: cfg.PageSize,
	})
	return c, nil
}

// Bootstrap resolves the persisted session. See session.Store.Bootstrap.
func (c *Client) Bootstrap(ctx context.Context) error {
	return c.Session.Bootstrap(ctx)
}

// Close releases the token database. Views should be closed by their owners
// first; Close does not wait for in-flight calls.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// openTokenDB creates the parent directory of a file database before
// opening it.
func openTokenDB(path string) (*sqliteRepo.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating token directory: %w", err)
		}
	}
	return sqliteRepo.New(path)
}
