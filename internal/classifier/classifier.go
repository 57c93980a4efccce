// Package classifier turns an inbound HTTP request into a
// domain.ClassifiedRequest per spec.md §4.H: host lookup, malformed-URL
// rejection, IP blacklist/whitelist, path blacklist, and browser
// detection.
package classifier

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/site"
)

// browserTokens are User-Agent substrings that mark a client as a
// browser, per spec.md §4.H step 7.
var browserTokens = []string{"Mozilla", "Chrome", "Safari", "Firefox", "Edge", "Opera"}

// Classifier applies the classification steps against the site registry.
type Classifier struct {
	registry *site.Registry
}

// New returns a Classifier backed by reg.
func New(reg *site.Registry) *Classifier {
	return &Classifier{registry: reg}
}

// Classify implements spec.md §4.H's ordered rejection steps, returning
// the matched Runtime (nil if rejected before lookup succeeded).
func (c *Classifier) Classify(r *http.Request) (*site.Runtime, domain.ClassifiedRequest) {
	realIP := ExtractRealIP(r)

	host := hostOnly(r.Host)
	if host == "" {
		return nil, domain.ClassifiedRequest{Result: domain.ResultMissingHost, RealIP: realIP}
	}

	rt, ok := c.registry.LookupHost(strings.ToLower(host))
	if !ok {
		return nil, domain.ClassifiedRequest{Result: domain.ResultUnknownSite, RealIP: realIP}
	}

	if _, err := url.ParseRequestURI(r.URL.RequestURI()); err != nil {
		return rt, domain.ClassifiedRequest{Site: rt.Site, Result: domain.ResultInvalidURL, RealIP: realIP}
	}

	isBrowser := IsBrowser(r)
	cr := domain.ClassifiedRequest{Site: rt.Site, IsBrowser: isBrowser, RealIP: realIP}

	ip := net.ParseIP(realIP)
	if ip != nil && matchesAny(ip, rt.Site.IPBlacklist) {
		cr.Result = domain.ResultIgnored
		return rt, cr
	}
	if len(rt.Site.IPWhitelist) > 0 && (ip == nil || !matchesAny(ip, rt.Site.IPWhitelist)) {
		cr.Result = domain.ResultIgnored
		return rt, cr
	}
	if matchesAnyGlob(r.URL.Path, rt.Site.PathBlacklist) {
		cr.Result = domain.ResultIgnored
		return rt, cr
	}

	return rt, cr
}

// IsBrowser applies spec.md §4.H step 7's heuristic.
func IsBrowser(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return true
	}
	ua := r.Header.Get("User-Agent")
	for _, token := range browserTokens {
		if strings.Contains(ua, token) {
			return true
		}
	}
	return false
}

// ExtractRealIP prefers X-Real-IP, then the leftmost X-Forwarded-For
// entry, then the TCP peer address, per spec.md §4.H's input definition.
func ExtractRealIP(r *http.Request) string {
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func hostOnly(hostHeader string) string {
	if hostHeader == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostHeader); err == nil {
		return host
	}
	return hostHeader
}

// matchesAny reports whether ip equals or falls within any entry of
// cidrs, each either a bare address ("a.b.c.d") or a prefix
// ("a.b.c.d/n"), per spec.md §4.H's CIDR-matching rule.
func matchesAny(ip net.IP, entries []string) bool {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if candidate := net.ParseIP(entry); candidate != nil && candidate.Equal(ip) {
				return true
			}
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil && network.Contains(ip) {
			return true
		}
	}
	return false
}
