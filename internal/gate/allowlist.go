package gate

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AllowAll disables the network restriction.
const AllowAll = "*"

// AllowList is a set of addresses and CIDR ranges. A nil list admits every
// address.
type AllowList struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// ParseAllowList reads a comma-separated list. An empty value or the "*"
// sentinel yields a nil list.
func ParseAllowList(raw string) (*AllowList, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == AllowAll {
		return nil, nil
	}

	al := &AllowList{addrs: make(map[netip.Addr]struct{})}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == AllowAll {
			return nil, nil
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allow-list range %q: %w", entry, err)
			}
			al.prefixes = append(al.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list address %q: %w", entry, err)
		}
		al.addrs[addr.Unmap()] = struct{}{}
	}
	if len(al.addrs) == 0 && len(al.prefixes) == 0 {
		return nil, nil
	}
	return al, nil
}

func (al *AllowList) Contains(ip string) bool {
	if al == nil {
		return true
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := al.addrs[addr]; ok {
		return true
	}
	for _, p := range al.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return remoteHost(r)
}

// remoteHost is the address of the connected peer.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
