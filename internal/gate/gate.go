// Package gate enforces access to the administrative namespace before any
// page is rendered. It is the security boundary; the client route guard only
// mirrors its decisions.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/token"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"

	DefaultCookieName    = "token"
	DefaultSignInPath    = "/login"
	DefaultReturnParam   = "redirect"
	DefaultForbiddenPath = "/forbidden"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Decoder verifies a raw token.
type Decoder interface {
	Decode(raw string) (*token.Claims, error)
}

// Recorder receives every refused request.
type Recorder interface {
	Record(ctx context.Context, event *domain.AccessEvent)
}

type RecorderFunc func(ctx context.Context, event *domain.AccessEvent)

func (f RecorderFunc) Record(ctx context.Context, event *domain.AccessEvent) { f(ctx, event) }

// Recorders fans an event out in order. nil entries are skipped.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, event *domain.AccessEvent) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, event)
		}
	}
}

type Options struct {
	Namespace     access.Namespace
	RequiredRoles []domain.Role
	CookieName    string
	SignInPath    string
	ReturnParam   string
	ForbiddenPath string
	AllowList     *AllowList
	// SecureCookie marks the expiring cookie written on invalid tokens.
	SecureCookie bool
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(g *Gate) {
		if rec != nil {
			g.recorder = rec
		}
	}
}

// WithRateLimit throttles each client address within the namespace.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gate) {
		if perSecond > 0 {
			g.limiter = newIPLimiter(perSecond, burst)
		}
	}
}

type Gate struct {
	decoder  Decoder
	opts     Options
	logger   *slog.Logger
	recorder Recorder
	limiter  *ipLimiter
	now      func() time.Time
}

func New(decoder Decoder, opts Options, options ...Option) (*Gate, error) {
	if decoder == nil {
		return nil, errors.New("token decoder is required")
	}
	if len(opts.Namespace) == 0 {
		return nil, errors.New("at least one restricted prefix is required")
	}
	if len(opts.RequiredRoles) == 0 {
		opts.RequiredRoles = []domain.Role{domain.RoleAdmin}
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.SignInPath == "" {
		opts.SignInPath = DefaultSignInPath
	}
	if opts.ReturnParam == "" {
		opts.ReturnParam = DefaultReturnParam
	}
	if opts.ForbiddenPath == "" {
		opts.ForbiddenPath = DefaultForbiddenPath
	}

	g := &Gate{
		decoder:  decoder,
		opts:     opts,
		logger:   slog.Default(),
		recorder: RecorderFunc(func(context.Context, *domain.AccessEvent) {}),
		now:      time.Now,
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

// Handler wraps next. Non-canonical paths are redirected first; canonical
// requests outside the namespace pass through untouched.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only canonical paths go further, so the prefix test below and the
		// upstream see the same path.
		if canonical := access.CleanPath(r.URL.Path); canonical != r.URL.Path {
			redirectCanonical(w, r, canonical)
			return
		}

		if !g.opts.Namespace.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)

		// forwarding headers are client-controlled, so buckets use the peer
		if g.limiter != nil && !g.limiter.allow(remoteHost(r)) {
			g.deny(r, domain.ReasonRateLimited, ip, nil)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		raw := g.extractToken(r)
		if raw == "" {
			g.deny(r, domain.ReasonMissingToken, ip, nil)
			g.redirectSignIn(w, r)
			return
		}

		claims, err := g.decoder.Decode(raw)
		if err != nil {
			g.logger.Info("token verification failed", "ip", ip, "path", r.URL.Path, "error", err)
			g.deny(r, domain.ReasonInvalidToken, ip, nil)
			g.expireCookie(w)
			g.redirectSignIn(w, r)
			return
		}

		principal := claims.Principal()
		switch access.DecideAccess(principal, g.opts.RequiredRoles) {
		case access.Allow:
		case access.RedirectForbidden:
			g.logger.Warn("insufficient role for restricted path", "ip", ip, "email", principal.Email, "role", principal.Role, "path", r.URL.Path)
			g.deny(r, domain.ReasonForbiddenRole, ip, principal)
			g.redirectForbidden(w, r)
			return
		default:
			g.deny(r, domain.ReasonInvalidToken, ip, nil)
			g.redirectSignIn(w, r)
			return
		}

		if !g.opts.AllowList.Contains(ip) {
			g.logger.Warn("address not in admin allow-list", "ip", ip, "email", principal.Email, "path", r.URL.Path)
			g.deny(r, domain.ReasonForbiddenNetwork, ip, principal)
			g.redirectForbidden(w, r)
			return
		}

		r.Header.Set(HeaderUserID, principal.Subject)
		r.Header.Set(HeaderUserEmail, principal.Email)
		r.Header.Set(HeaderUserRole, principal.Role.String())

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

func redirectCanonical(w http.ResponseWriter, r *http.Request, canonical string) {
	target := (&url.URL{Path: canonical, RawQuery: r.URL.RawQuery}).String()
	http.Redirect(w, r, target, http.StatusPermanentRedirect)
}

func (g *Gate) extractToken(r *http.Request) string {
	if c, err := r.Cookie(g.opts.CookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	if tok, ok := bearerToken(r.Header.Get(authHeader)); ok {
		return tok
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearer):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

func (g *Gate) redirectSignIn(w http.ResponseWriter, r *http.Request) {
	target := access.ReturnURL(g.opts.SignInPath, g.opts.ReturnParam, r.URL.Path)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (g *Gate) redirectForbidden(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, g.opts.ForbiddenPath, http.StatusTemporaryRedirect)
}

func (g *Gate) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.opts.SecureCookie,
	})
}

func (g *Gate) deny(r *http.Request, reason domain.AccessReason, ip string, p *access.Principal) {
	event := &domain.AccessEvent{
		ID:         uuid.NewString(),
		Reason:     reason,
		Path:       r.URL.Path,
		IP:         ip,
		OccurredAt: g.now().UTC(),
	}
	if p != nil {
		event.Subject = p.Subject
		event.Email = p.Email
		event.Role = p.Role.String()
	}
	g.recorder.Record(r.Context(), event)
}

type principalContextKey struct{}

func ContextWithPrincipal(ctx context.Context, p *access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the identity the gate verified for this request.
func PrincipalFromContext(ctx context.Context) (*access.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*access.Principal)
	return p, ok && p != nil
}
