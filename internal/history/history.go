// Package history implements the append-only request and state-
// transition streams of spec.md §4.K, plus the metrics/histogram
// queries the dashboard reads them through. Writers never block on
// readers: every record is also fanned out on an eventbus.EventBus so a
// live dashboard stream can subscribe without touching the stored ring.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/pkg/eventbus"
)

// DefaultCapacity bounds how many records of each stream are retained in
// memory; older entries are evicted oldest-first once full.
const DefaultCapacity = 10_000

// histogramBucketBounds are the five start-duration buckets of spec.md
// §4.K: [0,1s), [1,5s), [5,10s), [10,30s), [30s,inf).
var histogramBucketBounds = [4]time.Duration{
	time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
}

var _ ports.HistorySink = (*Sink)(nil)

// Appender persists history records to the opaque external store named
// in spec.md §1 ("Out of scope... the persistent store implementation").
// The in-memory ring is always kept regardless of whether an Appender is
// wired, so a missing or failing Appender never affects dashboard reads.
type Appender interface {
	AppendRequest(rec ports.RequestRecord)
	AppendStateChange(rec ports.StateRecord)
}

// Sink stores both history streams bounded in memory and fans each
// record out to subscribers via its own EventBus.
type Sink struct {
	capacity int
	appender Appender

	mu       sync.Mutex
	nextID   uint64
	requests []ports.RequestRecord
	states   []ports.StateRecord

	requestBus *eventbus.EventBus[ports.RequestRecord]
	stateBus   *eventbus.EventBus[ports.StateRecord]
}

// Option configures a Sink.
type Option func(*Sink)

// WithAppender wires an external persistence appender; every recorded
// entry is forwarded to it after being stored in the in-memory ring.
func WithAppender(a Appender) Option {
	return func(s *Sink) { s.appender = a }
}

// New returns a Sink bounded to capacity records per stream (<=0 uses
// DefaultCapacity).
func New(capacity int, opts ...Option) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Sink{
		capacity:   capacity,
		requestBus: eventbus.New[ports.RequestRecord](),
		stateBus:   eventbus.New[ports.StateRecord](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shutdown releases the underlying event buses' worker pools.
func (s *Sink) Shutdown() {
	s.requestBus.Shutdown()
	s.stateBus.Shutdown()
}

// SubscribeRequests streams newly recorded requests until ctx is done.
func (s *Sink) SubscribeRequests(ctx context.Context) (<-chan ports.RequestRecord, func()) {
	return s.requestBus.Subscribe(ctx)
}

// SubscribeStates streams newly recorded state transitions until ctx is
// done.
func (s *Sink) SubscribeStates(ctx context.Context) (<-chan ports.StateRecord, func()) {
	return s.stateBus.Subscribe(ctx)
}

// RecordRequest appends rec (assigning it the next monotonic id) and
// publishes it to subscribers.
func (s *Sink) RecordRequest(rec ports.RequestRecord) {
	s.mu.Lock()
	s.nextID++
	rec.ID = s.nextID
	s.requests = append(s.requests, rec)
	if len(s.requests) > s.capacity {
		s.requests = s.requests[len(s.requests)-s.capacity:]
	}
	s.mu.Unlock()

	s.requestBus.PublishAsync(rec)
	if s.appender != nil {
		s.appender.AppendRequest(rec)
	}
}

// RecordStateChange appends rec and publishes it to subscribers.
func (s *Sink) RecordStateChange(rec ports.StateRecord) {
	s.mu.Lock()
	s.states = append(s.states, rec)
	if len(s.states) > s.capacity {
		s.states = s.states[len(s.states)-s.capacity:]
	}
	s.mu.Unlock()

	s.stateBus.PublishAsync(rec)
	if s.appender != nil {
		s.appender.AppendStateChange(rec)
	}
}

// HistoryRange returns request records newest-first, optionally bounded
// by before/after (zero means unbounded on that side), limited to limit
// entries (<=0 means no limit beyond the stored capacity).
func (s *Sink) HistoryRange(before, after time.Time, limit int) []ports.RequestRecord {
	s.mu.Lock()
	snapshot := append([]ports.RequestRecord(nil), s.requests...)
	s.mu.Unlock()

	out := make([]ports.RequestRecord, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		rec := snapshot[i]
		if !before.IsZero() && !rec.Timestamp.Before(before) {
			continue
		}
		if !after.IsZero() && !rec.Timestamp.After(after) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// StateHistoryRange returns state-transition records newest-first,
// optionally filtered by site and bounded by before/after.
func (s *Sink) StateHistoryRange(site string, before, after time.Time) []ports.StateRecord {
	s.mu.Lock()
	snapshot := append([]ports.StateRecord(nil), s.states...)
	s.mu.Unlock()

	out := make([]ports.StateRecord, 0, len(snapshot))
	for i := len(snapshot) - 1; i >= 0; i-- {
		rec := snapshot[i]
		if site != "" && rec.Site != site {
			continue
		}
		if !before.IsZero() && !rec.Timestamp.Before(before) {
			continue
		}
		if !after.IsZero() && !rec.Timestamp.After(after) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Metrics is the dashboard's window summary for one site, per spec.md
// §4.K.
type Metrics struct {
	UptimePct       float64
	Hibernations    int
	StartHistogram  [5]int
	ETAMillis       *int64
}

// Metrics computes window-bounded stats for site over the trailing
// windowSecs seconds.
func (s *Sink) Metrics(site string, windowSecs int64, now time.Time) Metrics {
	since := now.Add(-time.Duration(windowSecs) * time.Second)

	s.mu.Lock()
	states := append([]ports.StateRecord(nil), s.states...)
	s.mu.Unlock()

	var m Metrics
	var upDuration time.Duration
	var lastState domain.SiteState
	lastTransition := since
	var startingAt time.Time

	for _, rec := range states {
		if rec.Site != site {
			continue
		}
		if rec.Timestamp.Before(since) {
			lastState = rec.State
			if rec.State == domain.StateStarting {
				startingAt = rec.Timestamp
			}
			continue
		}

		if lastState == domain.StateUp {
			upDuration += rec.Timestamp.Sub(lastTransition)
		}
		if rec.State == domain.StateDown && lastState == domain.StateUp {
			m.Hibernations++
		}
		if rec.State == domain.StateUp && !startingAt.IsZero() {
			m.StartHistogram[histogramBucket(rec.Timestamp.Sub(startingAt))]++
		}
		if rec.State == domain.StateStarting {
			startingAt = rec.Timestamp
		}

		lastState = rec.State
		lastTransition = rec.Timestamp
	}
	if lastState == domain.StateUp {
		upDuration += now.Sub(lastTransition)
	}
	windowDuration := now.Sub(since)
	if windowDuration > 0 {
		m.UptimePct = 100 * float64(upDuration) / float64(windowDuration)
	}
	return m
}

// histogramBucket maps a start duration to one of the five buckets of
// spec.md §4.K.
func histogramBucket(d time.Duration) int {
	for i, bound := range histogramBucketBounds {
		if d < bound {
			return i
		}
	}
	return len(histogramBucketBounds)
}

// Percentile returns the p-th percentile (linear interpolation) of a
// sorted-in-place copy of samples, reused by callers computing an ETA
// summary outside the site package's own Runtime.ETA.
func Percentile(samples []time.Duration, p float64) (time.Duration, bool) {
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
	return time.Duration(float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])), true
}
