// Package vote implements the vote reconciliation protocol.
//
// PER-ACTION STATE MACHINE:
//
//	Idle ──(anonymous)──────────────→ redirect to sign-in, no call
//	Idle → Pending ──(server total)──→ Applied
//	               └─(error)─────────→ Failed (prior total restored)
//
// While a target is Pending, further votes on it from this session are
// refused with apperror.ErrVotePending, so two deltas are never in flight
// for the same entity. Different targets vote independently.
//
// TWO MODES:
//
//	AuthoritativeEcho (default): the local total is replaced by the total the
//	server returns. Nothing is computed locally.
//
//	OptimisticDelta (degraded): the local total moves by ±1 before the call
//	and is restored on failure. It drifts as soon as the server treats a
//	repeated vote as a toggle or a no-op, because the client cannot tell
//	"accepted, +1" from "accepted, unchanged". It is only sound when the
//	backend guarantees a fixed delta per action and forbids double voting,
//	so it must be enabled explicitly and every drift it observes is logged.
package vote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/metrics"
	"github.com/sakif/campus-client/internal/model"
)

// Mode selects how a vote updates local state.
type Mode int

const (
	AuthoritativeEcho Mode = iota
	OptimisticDelta
)

func (m Mode) String() string {
	if m == OptimisticDelta {
		return "optimistic"
	}
	return "echo"
}

// ParseMode maps the configuration values "echo" and "optimistic".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "echo":
		return AuthoritativeEcho, nil
	case "optimistic":
		return OptimisticDelta, nil
	}
	return 0, fmt.Errorf("vote: unknown mode %q", s)
}

// Phase is where a vote action ended up.
type Phase int

const (
	Idle Phase = iota
	Pending
	Applied
	Failed
)

func (p Phase) String() string {
	return [...]string{"idle", "pending", "applied", "failed"}[p]
}

// Caster sends a vote and returns the server's new total.
type Caster interface {
	Vote(ctx context.Context, v model.Vote) (int, error)
}

// Gate decides whether the user may vote. If not, it redirects to sign-in
// with returnTo and returns an error.
type Gate interface {
	RequireAuth(ctx context.Context, returnTo string) error
}

// Target is one view's copy of the voted entity's total. Both methods report
// false once the view no longer holds the entity (closed, re-targeted or the
// entity removed); the protocol then discards what it was about to apply.
type Target interface {
	Total() (int, bool)
	SetTotal(total int) bool
}

// Result describes a finished vote action.
type Result struct {
	Phase Phase
	// Total is the value the local copy holds afterwards (or would have
	// held, if Discarded).
	Total int
	// Discarded is set when the view went away while the call was in flight.
	Discarded bool
}

// Options configures a Protocol.
type Options struct {
	Mode Mode
	// AllowOptimistic acknowledges that the backend has fixed-delta,
	// no-double-vote semantics. OptimisticDelta is refused without it.
	AllowOptimistic bool
	Logger          *slog.Logger
	Metrics         metrics.Recorder
}

// Protocol runs vote actions for one session.
type Protocol struct {
	mode    Mode
	caster  Caster
	gate    Gate
	logger  *slog.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	pending map[string]struct{}
}

// New creates a Protocol.
func New(caster Caster, gate Gate, opts Options) (*Protocol, error) {
	if opts.Mode == OptimisticDelta && !opts.AllowOptimistic {
		return nil, errors.New("vote: optimistic mode requires AllowOptimistic (backend must guarantee a fixed per-action delta and forbid double voting)")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Mode == OptimisticDelta {
		opts.Logger.Warn("optimistic vote mode enabled: local totals may drift from the server")
	}
	return &Protocol{
		mode:    opts.Mode,
		caster:  caster,
		gate:    gate,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		pending: make(map[string]struct{}),
	}, nil
}

// Mode returns the configured mode.
func (p *Protocol) Mode() Mode {
	return p.mode
}

// Pending reports whether a vote on v's target is in flight. Views use it to
// disable the vote control.
func (p *Protocol) Pending(v model.Vote) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[v.Key()]
	return ok
}

// Cast runs one vote action against target. returnTo is the path of the view
// the vote came from, used for the sign-in redirect.
//
// Errors are returned after any rollback, wrapped so errors.Is matches the
// underlying apperror sentinel.
func (p *Protocol) Cast(ctx context.Context, v model.Vote, target Target, returnTo string) (Result, error) {
	if err := p.gate.RequireAuth(ctx, returnTo); err != nil {
		p.metrics.RecordVote(p.mode.String(), "rejected")
		return Result{Phase: Idle}, fmt.Errorf("vote: %s: %w", v.Key(), err)
	}

	if !p.begin(v) {
		p.metrics.RecordVote(p.mode.String(), "ignored")
		return Result{Phase: Pending}, fmt.Errorf("vote: %s: %w", v.Key(), apperror.ErrVotePending)
	}
	defer p.end(v)

	prior, ok := target.Total()
	if !ok {
		return Result{Phase: Idle, Discarded: true}, fmt.Errorf("vote: %s: %w", v.Key(), apperror.ErrUnmounted)
	}

	local := prior
	if p.mode == OptimisticDelta {
		local = prior + v.Direction.Value()
		target.SetTotal(local)
	}

	total, err := p.caster.Vote(ctx, v)
	if err != nil {
		res := Result{Phase: Failed, Total: prior}
		if p.mode == OptimisticDelta {
			res.Discarded = !target.SetTotal(prior)
		}
		p.metrics.RecordVote(p.mode.String(), "failed")
		p.logger.Warn("vote failed",
			slog.String("target", v.Key()),
			slog.String("direction", v.Direction.String()),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("vote: %s: %w", v.Key(), err)
	}

	res := Result{Phase: Applied}
	switch p.mode {
	case OptimisticDelta:
		// The prediction stands. The echo only exposes a backend that
		// does not keep the fixed-delta promise.
		res.Total = local
		if total != local {
			p.logger.Warn("optimistic vote drift",
				slog.String("target", v.Key()),
				slog.Int("local", local),
				slog.Int("server", total),
			)
		}
	default:
		res.Total = total
		res.Discarded = !target.SetTotal(total)
	}

	p.metrics.RecordVote(p.mode.String(), "applied")
	p.logger.Debug("vote applied",
		slog.String("target", v.Key()),
		slog.Int("total", res.Total),
		slog.Bool("discarded", res.Discarded),
	)
	return res, nil
}

func (p *Protocol) begin(v model.Vote) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.pending[v.Key()]; busy {
		return false
	}
	p.pending[v.Key()] = struct{}{}
	return true
}

func (p *Protocol) end(v model.Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, v.Key())
}
