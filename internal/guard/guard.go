// Package guard gates protected surfaces on a renewable credential. A
// failed renewal purges persisted client state and sends the user to the
// login surface, once.
package guard

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/powerboard/tui/internal/auth"
	"github.com/rs/zerolog/log"
)

// State is the guard's verdict on the current session.
type State int

const (
	Pending State = iota
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Navigator performs the hard redirect to the login surface.
type Navigator interface {
	Navigate(target string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string) error

func (f NavigatorFunc) Navigate(target string) error { return f(target) }

// Loader exposes the credential provider's loading phase.
type Loader interface {
	Loading() bool
	Loaded() <-chan struct{}
}

// Guard is the Pending -> {Valid, Invalid} state machine.
type Guard struct {
	token    auth.TokenFunc
	purge    func() error
	nav      Navigator
	loginURL string

	mu         sync.Mutex
	state      State
	checking   bool
	redirected bool
	onChange   func(State)
}

// New creates a guard. purge clears every persisted client scope.
func New(token auth.TokenFunc, purge func() error, nav Navigator, loginURL string) *Guard {
	return &Guard{
		token:    token,
		purge:    purge,
		nav:      nav,
		loginURL: loginURL,
	}
}

// OnChange registers an observer for state transitions.
func (g *Guard) OnChange(fn func(State)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// State returns the current verdict.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allowed reports whether protected content may be shown. Nothing is
// allowed before the first successful check.
func (g *Guard) Allowed() bool {
	return g.State() == Valid
}

// Check verifies the credential is renewable. Calls made while a check is
// in flight, or after the session was declared invalid, return the
// current state without renewing.
func (g *Guard) Check(ctx context.Context) State {
	return g.check(ctx, true)
}

// check renews once. A failure with terminal=false leaves the guard
// Pending; it is used while the provider is still loading.
func (g *Guard) check(ctx context.Context, terminal bool) State {
	g.mu.Lock()
	if g.checking || g.state == Invalid {
		s := g.state
		g.mu.Unlock()
		return s
	}
	g.checking = true
	g.mu.Unlock()

	_, err := g.token(ctx)

	g.mu.Lock()
	g.checking = false
	if err == nil {
		g.state = Valid
		fn := g.onChange
		g.mu.Unlock()
		notify(fn, Valid)
		return Valid
	}
	if !terminal {
		s := g.state
		g.mu.Unlock()
		log.Debug().Err(err).Msg("credential not ready while loading")
		return s
	}
	g.state = Invalid
	first := !g.redirected
	g.redirected = true
	fn := g.onChange
	g.mu.Unlock()

	log.Warn().Err(err).Msg("session invalid, logging out")
	if first {
		g.logout()
	}
	notify(fn, Invalid)
	return Invalid
}

// Run performs the mount check and, if the provider was still loading at
// mount time, one more check when loading finishes. A failure during
// loading is not terminal. It returns the final state.
func (g *Guard) Run(ctx context.Context, loader Loader) State {
	if loader == nil || !loader.Loading() {
		return g.Check(ctx)
	}
	g.check(ctx, false)
	select {
	case <-ctx.Done():
		return g.State()
	case <-loader.Loaded():
	}
	return g.Check(ctx)
}

func (g *Guard) logout() {
	if g.purge != nil {
		if err := g.purge(); err != nil {
			log.Error().Err(err).Msg("purge client state")
		}
	}
	target := LoginURL(g.loginURL)
	if err := g.nav.Navigate(target); err != nil {
		log.Error().Err(err).Str("url", target).Msg("redirect to login")
	}
}

func notify(fn func(State), s State) {
	if fn != nil {
		fn(s)
	}
}

// LoginURL builds the login surface address with a return path pointing
// back at the login page of the same origin.
func LoginURL(login string) string {
	u, err := url.Parse(login)
	if err != nil || u.Host == "" {
		return login
	}
	returnTo := u.Scheme + "://" + u.Host + "/login"
	q := u.Query()
	q.Set("returnTo", returnTo)
	u.RawQuery = q.Encode()
	return strings.TrimSuffix(u.String(), "?")
}
