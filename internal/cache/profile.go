package cache

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/campus-client/internal/apperror"
	"github.com/sakif/campus-client/internal/model"
	"github.com/sakif/campus-client/internal/propagate"
)

// ProfileQuestions is a user's public profile with the questions they asked:
// a third, independent copy of those questions.
type ProfileQuestions struct {
	view
	userID int64
	loaded bool
	user   model.User
	items  []model.Question
}

// NewProfileQuestions mounts an empty profile view.
func (c *Cache) NewProfileQuestions() *ProfileQuestions {
	p := &ProfileQuestions{view: view{c: c, kind: propagate.ProfileQuestions}}
	p.mount(p)
	return p
}

// Scope implements propagate.View; a profile spans many questions.
func (p *ProfileQuestions) Scope() int64 { return 0 }

// Load fetches the profile and the question listing of userID concurrently.
func (p *ProfileQuestions) Load(ctx context.Context, userID int64) (model.User, []model.Question, error) {
	p.mu.Lock()
	epoch, err := p.beginLocked()
	if err == nil && p.userID != userID {
		p.userID = userID
		p.loaded = false
		p.user = model.User{}
		p.items = nil
	}
	p.mu.Unlock()
	if err != nil {
		return model.User{}, nil, fmt.Errorf("cache: loading profile %d: %w", userID, err)
	}

	var (
		user  model.User
		items []model.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = p.c.d.Backend.User(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = p.c.d.Backend.UserQuestions(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.User{}, nil, fmt.Errorf("cache: loading profile %d: %w", userID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(epoch) {
		return model.User{}, nil, fmt.Errorf("cache: loading profile %d: %w", userID, apperror.ErrUnmounted)
	}
	p.user = user
	p.items = items
	p.loaded = true
	return user, slices.Clone(items), nil
}

// Refresh reloads the profile. It is a no-op before the first Load.
func (p *ProfileQuestions) Refresh(ctx context.Context) error {
	p.mu.Lock()
	uid, loaded := p.userID, p.loaded
	p.mu.Unlock()
	if !loaded {
		return nil
	}
	_, _, err := p.Load(ctx, uid)
	return err
}

// User returns the profile's identity.
func (p *ProfileQuestions) User() (model.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user, p.loaded
}

// Items returns a copy of the user's questions.
func (p *ProfileQuestions) Items() []model.Question {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}
