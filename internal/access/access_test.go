package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

func TestDecideAccess(t *testing.T) {
	admin := &Principal{Subject: "1", Email: "a@x.com", Role: domain.RoleAdmin}
	hr := &Principal{Subject: "2", Email: "h@x.com", Role: domain.RoleHRManager}

	cases := []struct {
		name     string
		p        *Principal
		required []domain.Role
		want     Decision
	}{
		{"anonymous", nil, nil, RedirectSignIn},
		{"anonymous with roles", nil, []domain.Role{domain.RoleAdmin}, RedirectSignIn},
		{"any authenticated", hr, nil, Allow},
		{"member", admin, []domain.Role{domain.RoleAdmin}, Allow},
		{"member of several", hr, []domain.Role{domain.RoleAdmin, domain.RoleHRManager}, Allow},
		{"not a member", hr, []domain.Role{domain.RoleAdmin}, RedirectForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DecideAccess(tc.p, tc.required))
		})
	}
}

func TestNamespaceMatch(t *testing.T) {
	ns := NewNamespace("/admin", "api/admin/", " ")

	assert.Equal(t, Namespace{"/admin", "/api/admin"}, ns)
	assert.True(t, ns.Match("/admin"))
	assert.True(t, ns.Match("/admin/users"))
	assert.True(t, ns.Match("/api/admin/jobs/7"))
	assert.False(t, ns.Match("/administrator"))
	assert.False(t, ns.Match("/dashboard"))
	assert.False(t, ns.Match("/"))
}

func TestNamespaceMatchCanonicalizes(t *testing.T) {
	ns := NewNamespace("/admin")
	for _, p := range []string{"//admin/users", "/./admin/users", "/x/../admin/users", "/admin//users", "/../admin"} {
		assert.True(t, ns.Match(p), p)
	}
	assert.False(t, ns.Match("/admin/../dashboard"))
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":                  "/",
		"/":                 "/",
		"admin":             "/admin",
		"//admin/users":     "/admin/users",
		"/./admin/users":    "/admin/users",
		"/x/../admin/users": "/admin/users",
		"/admin/":           "/admin/",
		"/admin//":          "/admin/",
		"/..":               "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanPath(in), in)
	}
}

func TestReturnURL(t *testing.T) {
	assert.Equal(t, "/login?redirect=/admin/users", ReturnURL("/login", "redirect", "/admin/users"))
	assert.Equal(t, "/login?x=1&redirect=/admin/a%26b", ReturnURL("/login?x=1", "redirect", "/admin/a&b"))
	assert.Equal(t, "/login", ReturnURL("/login", "redirect", ""))
}
