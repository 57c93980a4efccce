// Package site implements the per-site state machine and wake
// coordinator of spec.md §4.F/§4.G: DOWN/STARTING/UP transitions, a
// single-flight starter shared by concurrent waiters via a generation-
// scoped broadcast channel, and the ETA estimate derived from recent
// start durations.
package site

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

// Runtime is the mutable state attached to one configured Site. The Site
// itself is immutable config; everything that changes while the program
// runs lives here, guarded by mu.
type Runtime struct {
	Site *domain.Site

	mu           sync.Mutex
	state        domain.SiteState
	stateSince   time.Time
	lastActivity time.Time
	generation   uint64
	signal       chan struct{}
	lastErr      error
	startSamples []time.Duration

	inFlight atomic.Int64
}

// NewRuntime returns a Runtime for site in StateUnknown, as it is before
// boot-time reconciliation runs.
func NewRuntime(s *domain.Site) *Runtime {
	return &Runtime{
		Site:  s,
		state: domain.StateUnknown,
	}
}

// State returns the current state and the time it was entered.
func (r *Runtime) State() (domain.SiteState, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.stateSince
}

// LastActivity returns the site's last recorded activity: set when
// EnsureUp finds the site UP or a starter brings it UP, when Reconcile
// finds it UP, and advanced by TouchActivity.
func (r *Runtime) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// TouchActivity advances last_activity to t if t is more recent, per
// spec.md §4.J's "last_activity = max(last_activity, ...)" rule. It never
// moves the clock backwards, so a stale or out-of-order log read can't
// reset an otherwise-fresh activity timestamp.
func (r *Runtime) TouchActivity(t time.Time) {
	r.mu.Lock()
	if t.After(r.lastActivity) {
		r.lastActivity = t
	}
	r.mu.Unlock()
}

// BeginProxy marks one proxied request as in flight. Call the returned
// func when the request completes. The hibernation loop refuses to tear
// a site down while any request is in flight, per spec.md §4.F's
// UP->DOWN guard.
func (r *Runtime) BeginProxy() func() {
	r.inFlight.Add(1)
	return func() { r.inFlight.Add(-1) }
}

// InFlight reports the number of proxied requests currently in flight.
func (r *Runtime) InFlight() int64 {
	return r.inFlight.Load()
}

// setState transitions the runtime while already holding mu.
func (r *Runtime) setState(s domain.SiteState, now time.Time) {
	r.state = s
	r.stateSince = now
}

// recordStartSample appends d to the bounded ring of recent start
// durations used for ETA estimation, per spec.md §4.G.
func (r *Runtime) recordStartSample(d time.Duration) {
	limit := r.Site.ETASampleSize
	if limit <= 0 {
		limit = 20
	}
	r.startSamples = append(r.startSamples, d)
	if len(r.startSamples) > limit {
		r.startSamples = r.startSamples[len(r.startSamples)-limit:]
	}
}

// ETA returns the estimated remaining start duration given elapsed time
// since the current (or most recent) start attempt began, per spec.md
// §4.G: the p-th percentile of recent start samples (linear
// interpolation between neighbors), minus elapsed. ok is false when
// fewer than two samples exist.
func (r *Runtime) ETA(elapsed time.Duration) (eta time.Duration, ok bool) {
	r.mu.Lock()
	samples := append([]time.Duration(nil), r.startSamples...)
	pct := r.Site.ETAPercentile
	r.mu.Unlock()

	p, ok := percentile(samples, pct)
	if !ok {
		return 0, false
	}
	remaining := p - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// percentile returns the p-th percentile (0..100) of samples using
// linear interpolation between the two bracketing order statistics.
func percentile(samples []time.Duration, p float64) (time.Duration, bool) {
	if len(samples) < 2 {
		return 0, false
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1], true
	}
	frac := rank - float64(lo)
	interpolated := float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
	return time.Duration(interpolated), true
}
