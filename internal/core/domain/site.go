// Package domain holds the types shared across hibernaut's components:
// the immutable Site configuration, the runtime state machine's vocabulary,
// and the small set of sentinel errors components agree on.
package domain

import "time"

// ProxyMode controls when the Front Proxy will wait for / trigger a site
// wake versus responding immediately.
type ProxyMode string

const (
	ProxyModeAlways     ProxyMode = "always"
	ProxyModeWhenReady  ProxyMode = "when_ready"
	ProxyModeNever      ProxyMode = "never"
)

// Site is the immutable, load-time configuration of one managed backend.
// Nothing here is mutated after config load; mutable per-site state lives
// in site.Runtime (package site).
type Site struct {
	Name    string
	Hosts   []string // lower-cased, non-empty
	Port    int

	AccessLogPath   string
	AccessLogFilter string

	ServiceUnitName string

	ProxyAvailablePath   string
	ProxyEnabledPath     string
	HibernatorConfigPath string

	KeepAlive time.Duration

	ProxyMode        ProxyMode
	BrowserProxyMode ProxyMode

	ProxyTimeout       time.Duration
	ProxyCheckInterval time.Duration

	StartTimeout       time.Duration
	StartCheckInterval time.Duration

	PathBlacklist []string
	IPBlacklist   []string
	IPWhitelist   []string

	ETASampleSize int
	ETAPercentile float64

	LandingFolder string
}

// EffectiveProxyMode returns the mode that governs a request from the
// given class of client, per spec.md §4.I step 2.
func (s *Site) EffectiveProxyMode(isBrowser bool) ProxyMode {
	if isBrowser {
		return s.BrowserProxyMode
	}
	return s.ProxyMode
}

// HasHost reports whether host (already lower-cased by the caller) is one
// of this site's hostnames.
func (s *Site) HasHost(host string) bool {
	for _, h := range s.Hosts {
		if h == host {
			return true
		}
	}
	return false
}
