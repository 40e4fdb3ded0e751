// Package access holds the authorization policy shared by the edge gate and
// the client route guard, so both reach the same decision for the same input.
package access

import (
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/NelsonFranklinWere/emil/backend/internal/domain"
)

type Decision int

const (
	Allow Decision = iota
	RedirectSignIn
	RedirectForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectSignIn:
		return "redirect_sign_in"
	case RedirectForbidden:
		return "redirect_forbidden"
	default:
		return "unknown"
	}
}

// Principal is a verified identity.
type Principal struct {
	Subject string
	Email   string
	Role    domain.Role
}

// DecideAccess is the single authorization rule. A nil principal is
// unauthenticated; an empty required set admits any authenticated principal.
func DecideAccess(p *Principal, required []domain.Role) Decision {
	if p == nil {
		return RedirectSignIn
	}
	if len(required) > 0 && !slices.Contains(required, p.Role) {
		return RedirectForbidden
	}
	return Allow
}

// Namespace is a set of URL path prefixes.
type Namespace []string

func NewNamespace(prefixes ...string) Namespace {
	ns := make(Namespace, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		if len(p) > 1 {
			p = strings.TrimRight(p, "/")
		}
		ns = append(ns, p)
	}
	return ns
}

// Match reports whether p, once canonical, is a prefix itself or lies below
// one. "/administrator" does not match "/admin".
func (ns Namespace) Match(p string) bool {
	p = CleanPath(p)
	for _, prefix := range ns {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

// CleanPath resolves dot segments and repeated slashes. The result is rooted
// and keeps a trailing slash: CleanPath("//x/../admin/") == "/admin/".
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// ReturnURL appends param=returnPath to target, keeping slashes readable:
// ReturnURL("/login", "redirect", "/admin/users") == "/login?redirect=/admin/users".
func ReturnURL(target, param, returnPath string) string {
	if returnPath == "" {
		return target
	}
	value := strings.ReplaceAll(url.QueryEscape(returnPath), "%2F", "/")
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + param + "=" + value
}
