package classifier

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/site"
)

func newRegistry(t *testing.T, s *domain.Site) *site.Registry {
	t.Helper()
	reg := site.NewRegistry()
	if err := reg.Add(site.NewRuntime(s)); err != nil {
		t.Fatal(err)
	}
	return reg
}

func request(method, target, host, realIP string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.Host = host
	r.RemoteAddr = realIP + ":12345"
	return r
}

func TestClassify_MissingHost(t *testing.T) {
	reg := site.NewRegistry()
	c := New(reg)
	r := request("GET", "/", "", "1.2.3.4")
	_, cr := c.Classify(r)
	if cr.Result != domain.ResultMissingHost {
		t.Fatalf("expected MissingHost, got %v", cr.Result)
	}
}

func TestClassify_UnknownSite(t *testing.T) {
	reg := site.NewRegistry()
	c := New(reg)
	r := request("GET", "/", "nope.example.com", "1.2.3.4")
	_, cr := c.Classify(r)
	if cr.Result != domain.ResultUnknownSite {
		t.Fatalf("expected UnknownSite, got %v", cr.Result)
	}
}

func TestClassify_IPBlacklist(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}, IPBlacklist: []string{"10.0.0.0/8"}})
	c := New(reg)
	r := request("GET", "/", "a.example.com", "10.1.2.3")
	_, cr := c.Classify(r)
	if cr.Result != domain.ResultIgnored {
		t.Fatalf("expected Ignored, got %v", cr.Result)
	}
}

func TestClassify_IPWhitelistRejectsUnlisted(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}, IPWhitelist: []string{"192.168.1.1"}})
	c := New(reg)
	r := request("GET", "/", "a.example.com", "1.2.3.4")
	_, cr := c.Classify(r)
	if cr.Result != domain.ResultIgnored {
		t.Fatalf("expected Ignored, got %v", cr.Result)
	}
}

func TestClassify_IPWhitelistAllowsListed(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}, IPWhitelist: []string{"192.168.1.0/24"}})
	c := New(reg)
	r := request("GET", "/", "a.example.com", "192.168.1.50")
	_, cr := c.Classify(r)
	if cr.Result == domain.ResultIgnored {
		t.Fatalf("expected whitelisted IP to pass classification")
	}
}

func TestClassify_PathBlacklist(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}, PathBlacklist: []string{"/admin/*"}})
	c := New(reg)
	r := request("GET", "/admin/secret", "a.example.com", "1.2.3.4")
	_, cr := c.Classify(r)
	if cr.Result != domain.ResultIgnored {
		t.Fatalf("expected Ignored, got %v", cr.Result)
	}
}

func TestClassify_BrowserDetection(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}})
	c := New(reg)

	r := request("GET", "/", "a.example.com", "1.2.3.4")
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0")
	_, cr := c.Classify(r)
	if !cr.IsBrowser {
		t.Fatalf("expected browser User-Agent to be detected")
	}

	r2 := request("GET", "/", "a.example.com", "1.2.3.4")
	r2.Header.Set("User-Agent", "curl/8.0")
	_, cr2 := c.Classify(r2)
	if cr2.IsBrowser {
		t.Fatalf("expected curl User-Agent to not be detected as a browser")
	}
}

func TestClassify_BrowserDetectionViaAcceptHeader(t *testing.T) {
	reg := newRegistry(t, &domain.Site{Name: "a", Hosts: []string{"a.example.com"}})
	c := New(reg)
	r := request("GET", "/", "a.example.com", "1.2.3.4")
	r.Header.Set("User-Agent", "curl/8.0")
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	_, cr := c.Classify(r)
	if !cr.IsBrowser {
		t.Fatalf("expected Accept: text/html to mark the request as a browser")
	}
}

func TestExtractRealIP_PrefersXRealIP(t *testing.T) {
	r := request("GET", "/", "a.example.com", "9.9.9.9")
	r.Header.Set("X-Real-IP", "1.1.1.1")
	r.Header.Set("X-Forwarded-For", "2.2.2.2, 3.3.3.3")
	if got := ExtractRealIP(r); got != "1.1.1.1" {
		t.Fatalf("expected X-Real-IP to win, got %s", got)
	}
}

func TestExtractRealIP_FallsBackToLeftmostForwardedFor(t *testing.T) {
	r := request("GET", "/", "a.example.com", "9.9.9.9")
	r.Header.Set("X-Forwarded-For", "2.2.2.2, 3.3.3.3")
	if got := ExtractRealIP(r); got != "2.2.2.2" {
		t.Fatalf("expected leftmost X-Forwarded-For entry, got %s", got)
	}
}

func TestExtractRealIP_FallsBackToRemoteAddr(t *testing.T) {
	r := request("GET", "/", "a.example.com", "9.9.9.9")
	if got := ExtractRealIP(r); got != "9.9.9.9" {
		t.Fatalf("expected RemoteAddr fallback, got %s", got)
	}
}

func TestMatchesGlob(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/admin/x", "/admin/*", true},
		{"/admin", "/admin/*", false},
		{"/foo/bar.css", "*.css", true},
		{"/foo/bar.js", "*.css", false},
		{"/anything", "*", true},
		{"/exact", "/exact", true},
		{"/exact2", "/exact", false},
		{"/api/v1/admin", "/api/*/admin", true},
		{"/api/v1/users", "/api/*/admin", false},
	}
	for _, tc := range cases {
		if got := matchesGlob(tc.path, tc.pattern); got != tc.want {
			t.Errorf("matchesGlob(%q, %q) = %v, want %v", tc.path, tc.pattern, got, tc.want)
		}
	}
}
