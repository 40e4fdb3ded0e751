// Package session holds the client's authentication state: who is signed in,
// how that survives a restart, and the imperative authorization checks built
// on top of it.
//
// Authentication calls are not serialized. Two overlapping Login calls both
// reach the remote API and the last one to succeed wins; callers that allow
// double submission should disable the trigger while a call is pending.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/NelsonFranklinWere/emil/backend/internal/access"
	"github.com/NelsonFranklinWere/emil/backend/internal/apiclient"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/store"
)

const (
	DefaultTokenKey   = "token"
	DefaultUserKey    = "user"
	DefaultSignInPath = "/login"
)

type LoadingState int

const (
	Initializing LoadingState = iota
	Ready
)

func (s LoadingState) String() string {
	if s == Ready {
		return "ready"
	}
	return "initializing"
}

// Authenticator is the subset of the remote API the session depends on.
type Authenticator interface {
	Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, profile apiclient.Profile) (*apiclient.AuthResponse, error)
	RegisterCompany(ctx context.Context, profile apiclient.CompanyProfile) (*apiclient.AuthResponse, error)
	AuthenticateWithFederatedProvider(ctx context.Context, payload apiclient.FederatedPayload) (*apiclient.AuthResponse, error)
}

type Navigator interface {
	Navigate(target string)
}

type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) { f(target) }

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Result is what every authentication flow returns. Error is a message fit
// for display.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	User  *domain.Identity
	Token string
	State LoadingState
}

func (s Snapshot) IsAuthenticated() bool {
	return s.User != nil
}

// Principal returns nil when nobody is signed in.
func (s Snapshot) Principal() *access.Principal {
	if s.User == nil {
		return nil
	}
	return &access.Principal{Subject: s.User.ID, Email: s.User.Email, Role: s.User.Role}
}

type Option func(*Service)

func WithNavigator(nav Navigator) Option {
	return func(s *Service) {
		if nav != nil {
			s.nav = nav
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultRole assigns role to accounts whose authentication response
// omits one. Without it such responses fail.
func WithDefaultRole(role domain.Role) Option {
	return func(s *Service) {
		s.defaultRole = role
	}
}

func WithSignInPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.signInPath = path
		}
	}
}

func WithKeys(tokenKey, userKey string) Option {
	return func(s *Service) {
		if tokenKey != "" {
			s.tokenKey = tokenKey
		}
		if userKey != "" {
			s.userKey = userKey
		}
	}
}

type Service struct {
	api       Authenticator
	store     store.Store
	nav       Navigator
	logger    *slog.Logger
	validator *inputValidator

	defaultRole domain.Role
	signInPath  string
	tokenKey    string
	userKey     string

	mu        sync.RWMutex
	user      *domain.Identity
	token     string
	state     LoadingState
	listeners map[int]func(Snapshot)
	nextID    int
}

func New(api Authenticator, st store.Store, opts ...Option) (*Service, error) {
	v, err := newInputValidator()
	if err != nil {
		return nil, err
	}
	s := &Service{
		api:        api,
		store:      st,
		nav:        noopNavigator{},
		logger:     slog.Default(),
		validator:  v,
		signInPath: DefaultSignInPath,
		tokenKey:   DefaultTokenKey,
		userKey:    DefaultUserKey,
		state:      Initializing,
		listeners:  make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize restores a persisted session. It never fails: unreadable or
// half-written state is cleared and the session starts signed out. The
// restored token is trusted locally until the remote API rejects it.
func (s *Service) Initialize(ctx context.Context) {
	user, token := s.restore(ctx)

	s.mu.Lock()
	s.user = user
	s.token = token
	s.state = Ready
	s.mu.Unlock()

	s.notify()
}

func (s *Service) restore(ctx context.Context) (*domain.Identity, string) {
	values, err := s.store.Load(ctx, s.tokenKey, s.userKey)
	if err != nil {
		s.logger.Warn("unreadable persisted session, starting signed out", "error", err)
		s.clearPersisted(ctx)
		return nil, ""
	}

	token, hasToken := values[s.tokenKey]
	rawUser, hasUser := values[s.userKey]
	if !hasToken && !hasUser {
		return nil, ""
	}
	if !hasToken || !hasUser || token == "" {
		s.logger.Warn("incomplete persisted session, clearing", "hasToken", hasToken, "hasUser", hasUser)
		s.clearPersisted(ctx)
		return nil, ""
	}

	user := &domain.Identity{}
	err = json.Unmarshal([]byte(rawUser), user)
	if err == nil && user.Role == "" {
		err = errMissingRole
	}
	if err != nil {
		s.logger.Warn("corrupt persisted identity, clearing", "error", err)
		s.clearPersisted(ctx)
		return nil, ""
	}
	return user, token
}

func (s *Service) clearPersisted(ctx context.Context) {
	if err := s.store.Remove(ctx, s.tokenKey, s.userKey); err != nil {
		s.logger.Error("failed to clear persisted session", "error", err)
	}
}

func (s *Service) Login(ctx context.Context, creds apiclient.Credentials) Result {
	if err := s.validator.check(creds); err != nil {
		return failure(err)
	}
	resp, err := s.api.Login(ctx, creds)
	return s.complete(ctx, flowLogin, resp, err, identityHint{Email: creds.Email})
}

func (s *Service) Register(ctx context.Context, profile apiclient.Profile) Result {
	if err := s.validator.check(profile); err != nil {
		return failure(err)
	}
	resp, err := s.api.Register(ctx, profile)
	return s.complete(ctx, flowRegister, resp, err, identityHint{
		Email:       profile.Email,
		DisplayName: joinName(profile.FirstName, profile.LastName),
	})
}

func (s *Service) RegisterCompany(ctx context.Context, profile apiclient.CompanyProfile) Result {
	if err := s.validator.check(profile); err != nil {
		return failure(err)
	}
	resp, err := s.api.RegisterCompany(ctx, profile)
	return s.complete(ctx, flowRegisterCompany, resp, err, identityHint{
		Email:            profile.Email,
		DisplayName:      profile.ContactName,
		OrganizationName: profile.CompanyName,
	})
}

func (s *Service) AuthenticateWithFederatedProvider(ctx context.Context, payload apiclient.FederatedPayload) Result {
	if err := s.validator.check(payload); err != nil {
		return failure(err)
	}
	resp, err := s.api.AuthenticateWithFederatedProvider(ctx, payload)
	return s.complete(ctx, flowFederated, resp, err, identityHint{
		Email:       payload.Email,
		DisplayName: payload.Name,
		AvatarURL:   payload.Picture,
	})
}

// complete turns the outcome of any remote flow into a Result, persisting
// the session only when everything succeeded.
func (s *Service) complete(ctx context.Context, f flow, resp *apiclient.AuthResponse, callErr error, hint identityHint) Result {
	if callErr != nil {
		s.logger.Info("authentication failed", "flow", f.name, "error", callErr)
		return Result{Error: f.message(callErr)}
	}

	user, err := s.buildIdentity(resp, hint)
	if err != nil {
		s.logger.Warn("unusable authentication response", "flow", f.name, "error", err)
		return Result{Error: f.message(err)}
	}

	if err := s.persist(ctx, user, resp.Token); err != nil {
		s.logger.Error("failed to persist session", "flow", f.name, "error", err)
		return Result{Error: "Could not save your session. Please try again."}
	}

	s.mu.Lock()
	s.user = user
	s.token = resp.Token
	s.state = Ready
	s.mu.Unlock()

	s.notify()
	return Result{Success: true}
}

// persist writes the pair. On failure neither storage nor memory changes.
func (s *Service) persist(ctx context.Context, user *domain.Identity, token string) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, map[string]string{
		s.tokenKey: token,
		s.userKey:  string(encoded),
	}); err != nil {
		// Save is all-or-nothing, so the previous pair is still intact and
		// still matches the in-memory session.
		return err
	}
	return nil
}

// Logout is safe to call when already signed out.
func (s *Service) Logout(ctx context.Context) {
	s.clearPersisted(ctx)

	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	s.notify()
	s.nav.Navigate(s.signInPath)
}

// RequireAuthentication navigates to redirectTarget and reports false when
// nobody is signed in.
func (s *Service) RequireAuthentication(redirectTarget string) bool {
	return s.require(nil, redirectTarget)
}

// RequireRole additionally fails when the signed-in role is not in allowed.
func (s *Service) RequireRole(allowed []domain.Role, redirectTarget string) bool {
	if len(allowed) == 0 {
		// an empty set would admit everyone
		s.nav.Navigate(redirectTarget)
		return false
	}
	return s.require(allowed, redirectTarget)
}

func (s *Service) require(allowed []domain.Role, redirectTarget string) bool {
	if access.DecideAccess(s.Snapshot().Principal(), allowed) != access.Allow {
		s.nav.Navigate(redirectTarget)
		return false
	}
	return true
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	snap := Snapshot{Token: s.token, State: s.state}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Service) User() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.Identity{}, false
	}
	return *s.user, true
}

func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Service) State() LoadingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Service) HasRole(role domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == role
}

func (s *Service) IsAdmin() bool     { return s.HasRole(domain.RoleAdmin) }
func (s *Service) IsHRManager() bool { return s.HasRole(domain.RoleHRManager) }
func (s *Service) IsRecruiter() bool { return s.HasRole(domain.RoleRecruiter) }
func (s *Service) IsAnalyst() bool   { return s.HasRole(domain.RoleAnalyst) }

// Subscribe registers fn to run after every state change and returns a
// function that removes it.
func (s *Service) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
