// Package guard gates protected views on the client. It mirrors the edge
// gate's policy for user experience only; the edge gate remains the
// enforcement point.
package guard

import (
	"sync"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/session"
)

const (
	DefaultSignInPath    = "/login"
	DefaultLandingPath   = "/dashboard"
	DefaultCallbackParam = "callbackUrl"
)

type State int

const (
	Loading State = iota
	Authorized
	Unauthorized
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authorized:
		return "authorized"
	default:
		return "unauthorized"
	}
}

// Outcome is one evaluation. Redirect is set only when State is Unauthorized.
type Outcome struct {
	State    State
	Redirect string
}

// Source is what the guard needs from the session.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
}

type Options struct {
	// Path is the location of the protected view, used as the post-login
	// callback and to detect the admin namespace.
	Path         string
	RequireAuth  bool
	AllowedRoles []domain.Role

	SignInPath    string
	LandingPath   string
	CallbackParam string
	// Unauthorized users of a view under these prefixes always go to
	// LandingPath.
	AdminNamespace access.Namespace
	// UnauthorizedPath overrides LandingPath for views outside AdminNamespace.
	UnauthorizedPath string
}

type Guard struct {
	src  Source
	nav  session.Navigator
	opts Options

	mu      sync.Mutex
	current Outcome
	cancel  func()
}

func New(src Source, nav session.Navigator, opts Options) *Guard {
	if opts.SignInPath == "" {
		opts.SignInPath = DefaultSignInPath
	}
	if opts.LandingPath == "" {
		opts.LandingPath = DefaultLandingPath
	}
	if opts.CallbackParam == "" {
		opts.CallbackParam = DefaultCallbackParam
	}
	if opts.AdminNamespace == nil {
		opts.AdminNamespace = access.NewNamespace("/admin")
	}
	if nav == nil {
		nav = session.NavigatorFunc(func(string) {})
	}
	return &Guard{src: src, nav: nav, opts: opts, current: Outcome{State: Loading}}
}

// Evaluate is pure: it only inspects snap.
func (g *Guard) Evaluate(snap session.Snapshot) Outcome {
	if snap.State != session.Ready {
		return Outcome{State: Loading}
	}

	principal := snap.Principal()
	if principal == nil && !g.opts.RequireAuth && len(g.opts.AllowedRoles) == 0 {
		return Outcome{State: Authorized}
	}

	switch access.DecideAccess(principal, g.opts.AllowedRoles) {
	case access.Allow:
		return Outcome{State: Authorized}
	case access.RedirectSignIn:
		return Outcome{State: Unauthorized, Redirect: access.ReturnURL(g.opts.SignInPath, g.opts.CallbackParam, g.opts.Path)}
	default:
		return Outcome{State: Unauthorized, Redirect: g.forbiddenTarget()}
	}
}

func (g *Guard) forbiddenTarget() string {
	if g.opts.AdminNamespace.Match(g.opts.Path) || g.opts.UnauthorizedPath == "" {
		return g.opts.LandingPath
	}
	return g.opts.UnauthorizedPath
}

// Attach evaluates now and after every session change, navigating whenever
// the outcome turns into a new redirect. It returns a detach function.
func (g *Guard) Attach() func() {
	cancel := g.src.Subscribe(g.update)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	g.update(g.src.Snapshot())
	return g.Detach
}

func (g *Guard) Detach() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *Guard) update(snap session.Snapshot) {
	next := g.Evaluate(snap)

	g.mu.Lock()
	prev := g.current
	g.current = next
	g.mu.Unlock()

	if next.State == Unauthorized && next != prev {
		g.nav.Navigate(next.Redirect)
	}
}

// Current returns the latest outcome seen by Attach, or evaluates directly
// when the guard is not attached.
func (g *Guard) Current() Outcome {
	g.mu.Lock()
	attached := g.cancel != nil
	current := g.current
	g.mu.Unlock()
	if attached {
		return current
	}
	return g.Evaluate(g.src.Snapshot())
}

// Render returns content when authorized, placeholder while loading, and
// nothing otherwise.
func (g *Guard) Render(content func() string, placeholder string) string {
	switch g.Current().State {
	case Authorized:
		return content()
	case Loading:
		return placeholder
	default:
		return ""
	}
}
