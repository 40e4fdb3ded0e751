package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NelsonFranklinWere/emil/backend/internal/apiclient"
	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
	"github.com/NelsonFranklinWere/emil/backend/internal/store"
)

type fakeAPI struct {
	resp  *apiclient.AuthResponse
	err   error
	calls []string
}

func (f *fakeAPI) Login(ctx context.Context, creds apiclient.Credentials) (*apiclient.AuthResponse, error) {
	f.calls = append(f.calls, "login")
	return f.resp, f.err
}

func (f *fakeAPI) Register(ctx context.Context, profile apiclient.Profile) (*apiclient.AuthResponse, error) {
	f.calls = append(f.calls, "register")
	return f.resp, f.err
}

func (f *fakeAPI) RegisterCompany(ctx context.Context, profile apiclient.CompanyProfile) (*apiclient.AuthResponse, error) {
	f.calls = append(f.calls, "register_company")
	return f.resp, f.err
}

func (f *fakeAPI) AuthenticateWithFederatedProvider(ctx context.Context, payload apiclient.FederatedPayload) (*apiclient.AuthResponse, error) {
	f.calls = append(f.calls, "federated")
	return f.resp, f.err
}

type recordingNavigator struct {
	targets []string
}

func (n *recordingNavigator) Navigate(target string) {
	n.targets = append(n.targets, target)
}

// failingStore refuses writes and optionally reads.
type failingStore struct {
	*store.MemoryStore
	failLoad bool
	failSave bool
}

func (s *failingStore) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	if s.failLoad {
		return nil, errors.New("disk unavailable")
	}
	return s.MemoryStore.Load(ctx, keys...)
}

func (s *failingStore) Save(ctx context.Context, entries map[string]string) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(ctx, entries)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestService(t *testing.T, api Authenticator, st store.Store, opts ...Option) (*Service, *recordingNavigator) {
	t.Helper()
	nav := &recordingNavigator{}
	opts = append([]Option{WithNavigator(nav), WithLogger(quietLogger)}, opts...)
	s, err := New(api, st, opts...)
	require.NoError(t, err)
	return s, nav
}

func adminResponse() *apiclient.AuthResponse {
	return &apiclient.AuthResponse{
		Token: "T",
		User:  &apiclient.User{ID: "1", Email: "a@x.com", Role: "ADMIN"},
	}
}

func TestLoginSuccessPersistsSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, _ := newTestService(t, &fakeAPI{resp: adminResponse()}, st)
	s.Initialize(ctx)

	res := s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "good"})
	assert.Equal(t, Result{Success: true}, res)
	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.IsAdmin())
	assert.False(t, s.IsHRManager())
	assert.Equal(t, "T", s.Token())

	persisted, err := st.Load(ctx, DefaultTokenKey, DefaultUserKey)
	require.NoError(t, err)
	assert.Equal(t, "T", persisted[DefaultTokenKey])

	var user domain.Identity
	require.NoError(t, json.Unmarshal([]byte(persisted[DefaultUserKey]), &user))
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.Equal(t, "1", user.ID)
	assert.Equal(t, "a@x.com", user.DisplayName)
}

func TestLoginFailureLeavesStorageUntouched(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	api := &fakeAPI{err: &apiclient.Error{Status: 401, Message: "Invalid credentials", Data: map[string]any{"message": "Invalid credentials"}}}
	s, _ := newTestService(t, api, st)
	s.Initialize(ctx)

	res := s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "bad"})
	assert.Equal(t, Result{Success: false, Error: "Invalid credentials"}, res)
	assert.False(t, s.IsAuthenticated())

	persisted, err := st.Load(ctx, DefaultTokenKey, DefaultUserKey)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestLoginFailureModes(t *testing.T) {
	cases := []struct {
		name string
		api  *fakeAPI
		want string
	}{
		{"network", &fakeAPI{err: &apiclient.Error{Message: "connection refused"}}, flowLogin.fallback},
		{"plain error", &fakeAPI{err: errors.New("boom")}, flowLogin.fallback},
		{"no token", &fakeAPI{resp: &apiclient.AuthResponse{User: &apiclient.User{Role: "ADMIN"}}}, flowLogin.fallback},
		{"nil response", &fakeAPI{}, flowLogin.fallback},
		{"missing role", &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "1"}}}, "Your account has no valid role assigned. Please contact support."},
		{"unknown role", &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "1", Role: "ROOT"}}}, "Your account has no valid role assigned. Please contact support."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore()
			s, _ := newTestService(t, tc.api, st)
			s.Initialize(ctx)

			res := s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "pw"})
			assert.False(t, res.Success)
			assert.Equal(t, tc.want, res.Error)
			assert.False(t, s.IsAuthenticated())

			persisted, _ := st.Load(ctx, DefaultTokenKey, DefaultUserKey)
			assert.Empty(t, persisted)
		})
	}
}

func TestLoginValidatesBeforeCallingAPI(t *testing.T) {
	api := &fakeAPI{resp: adminResponse()}
	s, _ := newTestService(t, api, store.NewMemoryStore())

	res := s.Login(context.Background(), apiclient.Credentials{Email: "", Password: "pw"})
	assert.False(t, res.Success)
	assert.Equal(t, "email is a required field", res.Error)

	res = s.Login(context.Background(), apiclient.Credentials{Email: "not-an-email", Password: "pw"})
	assert.False(t, res.Success)
	assert.Equal(t, "email must be a valid email address", res.Error)

	assert.Empty(t, api.calls)
}

func TestDefaultRoleOption(t *testing.T) {
	api := &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "9", Email: "h@x.com"}}}
	s, _ := newTestService(t, api, store.NewMemoryStore(), WithDefaultRole(domain.RoleHRManager))

	res := s.Login(context.Background(), apiclient.Credentials{Email: "h@x.com", Password: "pw"})
	require.True(t, res.Success, res.Error)
	assert.True(t, s.IsHRManager())
}

func TestRegisterFlowsBuildIdentityFromForm(t *testing.T) {
	ctx := context.Background()

	api := &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "5", Role: "RECRUITER"}}}
	s, _ := newTestService(t, api, store.NewMemoryStore())
	res := s.Register(ctx, apiclient.Profile{FirstName: "Ada", LastName: "Lovelace", Email: "ada@x.com", Password: "password1"})
	require.True(t, res.Success, res.Error)
	u, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", u.DisplayName)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.True(t, s.IsRecruiter())

	api = &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "6", Role: "HR_MANAGER", Email: "hr@acme.com"}}}
	s, _ = newTestService(t, api, store.NewMemoryStore())
	res = s.RegisterCompany(ctx, apiclient.CompanyProfile{CompanyName: "Acme", ContactName: "Grace", Email: "hr@acme.com", Password: "password1"})
	require.True(t, res.Success, res.Error)
	u, _ = s.User()
	assert.Equal(t, "Acme", u.OrganizationName)
	assert.Equal(t, "Grace", u.DisplayName)

	api = &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "7", Role: "ANALYST", EmailVerified: true}}}
	s, _ = newTestService(t, api, store.NewMemoryStore())
	res = s.AuthenticateWithFederatedProvider(ctx, apiclient.FederatedPayload{Provider: "google", IDToken: "id", Email: "an@x.com", Name: "Ana", Picture: "https://img/a.png"})
	require.True(t, res.Success, res.Error)
	u, _ = s.User()
	assert.Equal(t, "https://img/a.png", u.AvatarURL)
	assert.True(t, u.EmailVerified)
	assert.True(t, s.IsAnalyst())
	assert.Equal(t, []string{"federated"}, api.calls)
}

func TestRegisterValidation(t *testing.T) {
	api := &fakeAPI{resp: adminResponse()}
	s, _ := newTestService(t, api, store.NewMemoryStore())

	res := s.Register(context.Background(), apiclient.Profile{FirstName: "A", LastName: "B", Email: "a@x.com", Password: "short"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "password")

	res = s.RegisterCompany(context.Background(), apiclient.CompanyProfile{ContactName: "B", Email: "a@x.com", Password: "password1"})
	assert.Equal(t, "companyName is a required field", res.Error)

	assert.Empty(t, api.calls)
}

func TestPersistFailureLeavesSessionSignedOut(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), failSave: true}
	s, _ := newTestService(t, &fakeAPI{resp: adminResponse()}, st)

	res := s.Login(context.Background(), apiclient.Credentials{Email: "a@x.com", Password: "good"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.False(t, s.IsAuthenticated())
}

func TestFailedReloginKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{MemoryStore: store.NewMemoryStore()}
	api := &fakeAPI{resp: adminResponse()}
	s, _ := newTestService(t, api, st)
	require.True(t, s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "good"}).Success)

	st.failSave = true
	api.resp = &apiclient.AuthResponse{
		Token: "T2",
		User:  &apiclient.User{ID: "2", Email: "b@x.com", Role: "RECRUITER"},
	}
	res := s.Login(ctx, apiclient.Credentials{Email: "b@x.com", Password: "good"})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	assert.True(t, s.IsAdmin())
	assert.Equal(t, "T", s.Token())
	persisted, err := st.MemoryStore.Load(ctx, DefaultTokenKey, DefaultUserKey)
	require.NoError(t, err)
	assert.Equal(t, "T", persisted[DefaultTokenKey])
	assert.Contains(t, persisted[DefaultUserKey], `"ADMIN"`)

	restored, _ := newTestService(t, &fakeAPI{}, st)
	restored.Initialize(ctx)
	assert.True(t, restored.IsAdmin())
}

func TestInitializeRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	first, _ := newTestService(t, &fakeAPI{resp: adminResponse()}, st)
	first.Initialize(ctx)
	require.True(t, first.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "good"}).Success)

	second, _ := newTestService(t, &fakeAPI{}, st)
	assert.Equal(t, Initializing, second.State())
	assert.False(t, second.IsAuthenticated())

	second.Initialize(ctx)
	assert.Equal(t, Ready, second.State())
	assert.True(t, second.IsAuthenticated())
	assert.True(t, second.IsAdmin())
	assert.Equal(t, "T", second.Token())
}

func TestInitializeClearsCorruptIdentity(t *testing.T) {
	ctx := context.Background()
	cases := map[string]map[string]string{
		"unparsable json": {DefaultTokenKey: "T", DefaultUserKey: "{not json"},
		"unknown role":    {DefaultTokenKey: "T", DefaultUserKey: `{"id":"1","role":"ROOT"}`},
		"missing role":    {DefaultTokenKey: "T", DefaultUserKey: `{"id":"1"}`},
		"token only":      {DefaultTokenKey: "T"},
		"identity only":   {DefaultUserKey: `{"id":"1","role":"ADMIN"}`},
		"empty token":     {DefaultTokenKey: "", DefaultUserKey: `{"id":"1","role":"ADMIN"}`},
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore()
			require.NoError(t, st.Save(ctx, seed))

			s, _ := newTestService(t, &fakeAPI{}, st)
			assert.NotPanics(t, func() { s.Initialize(ctx) })
			assert.Equal(t, Ready, s.State())
			assert.False(t, s.IsAuthenticated())

			left, err := st.Load(ctx, DefaultTokenKey, DefaultUserKey)
			require.NoError(t, err)
			assert.Empty(t, left)
		})
	}
}

func TestInitializeSurvivesUnreadableStore(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), failLoad: true}
	s, _ := newTestService(t, &fakeAPI{}, st)

	s.Initialize(context.Background())
	assert.Equal(t, Ready, s.State())
	assert.False(t, s.IsAuthenticated())
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	s, nav := newTestService(t, &fakeAPI{resp: adminResponse()}, st, WithSignInPath("/signin"))
	s.Initialize(ctx)
	require.True(t, s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "good"}).Success)

	s.Logout(ctx)
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Token())

	assert.NotPanics(t, func() { s.Logout(ctx) })
	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, []string{"/signin", "/signin"}, nav.targets)

	persisted, err := st.Load(ctx, DefaultTokenKey, DefaultUserKey)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestRequireAuthenticationAndRole(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{resp: &apiclient.AuthResponse{Token: "T", User: &apiclient.User{ID: "2", Role: "HR_MANAGER"}}}
	s, nav := newTestService(t, api, store.NewMemoryStore())
	s.Initialize(ctx)

	assert.False(t, s.RequireAuthentication("/login"))
	assert.False(t, s.RequireRole([]domain.Role{domain.RoleAdmin}, "/login"))
	assert.Equal(t, []string{"/login", "/login"}, nav.targets)

	require.True(t, s.Login(ctx, apiclient.Credentials{Email: "h@x.com", Password: "pw"}).Success)
	nav.targets = nil

	assert.True(t, s.RequireAuthentication("/login"))
	assert.True(t, s.RequireRole([]domain.Role{domain.RoleHRManager, domain.RoleAdmin}, "/dashboard"))
	assert.False(t, s.RequireRole([]domain.Role{domain.RoleAdmin}, "/dashboard"))
	assert.False(t, s.RequireRole(nil, "/dashboard"))
	assert.Equal(t, []string{"/dashboard", "/dashboard"}, nav.targets)
}

func TestSubscribeSeesEveryChange(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, &fakeAPI{resp: adminResponse()}, store.NewMemoryStore())

	var seen []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })

	s.Initialize(ctx)
	s.Login(ctx, apiclient.Credentials{Email: "a@x.com", Password: "good"})
	s.Logout(ctx)
	unsubscribe()
	s.Initialize(ctx)

	require.Len(t, seen, 3)
	assert.Equal(t, Ready, seen[0].State)
	assert.False(t, seen[0].IsAuthenticated())
	assert.True(t, seen[1].IsAuthenticated())
	assert.Equal(t, domain.RoleAdmin, seen[1].Principal().Role)
	assert.Nil(t, seen[2].Principal())
}
