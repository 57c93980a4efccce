// Package hibernation runs the periodic idle check of spec.md §4.J: for
// every site currently UP, fold in the access log's latest activity and
// hand off to the site coordinator's UP->DOWN rule.
package hibernation

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/site"
)

// DefaultCheckInterval matches spec.md §4.J's "≈1 s" cadence.
const DefaultCheckInterval = time.Second

// Coordinator is the subset of site.Coordinator the loop needs, so tests
// can substitute a fake without standing up a real one.
type Coordinator interface {
	CheckHibernation(ctx context.Context, rt *site.Runtime) error
}

// Loop is the single periodic worker described in spec.md §4.J.
type Loop struct {
	registry      *site.Registry
	coordinator   Coordinator
	tailer        ports.LogTailer
	checkInterval time.Duration
	log           *slog.Logger
}

// New returns a Loop. log may be nil; checkInterval <= 0 uses
// DefaultCheckInterval.
func New(reg *site.Registry, coord Coordinator, tailer ports.LogTailer, checkInterval time.Duration, log *slog.Logger) *Loop {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loop{registry: reg, coordinator: coord, tailer: tailer, checkInterval: checkInterval, log: log}
}

// Run blocks, ticking every checkInterval, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one pass over every registered site, independent of the
// others: one site's log-tail error never blocks another's check.
func (l *Loop) tick(ctx context.Context) {
	for _, rt := range l.registry.All() {
		state, _ := rt.State()
		if state != domain.StateUp {
			continue
		}
		l.refreshActivity(rt)
		if err := l.coordinator.CheckHibernation(ctx, rt); err != nil {
			l.log.Warn("hibernation: check failed", "site", rt.Site.Name, "error", err)
		}
	}
}

// refreshActivity folds the access log's latest matching timestamp into
// last_activity. A LogIOError or LogParseError never advances or resets
// the clock, per spec.md §4.J.
func (l *Loop) refreshActivity(rt *site.Runtime) {
	if l.tailer == nil || rt.Site.AccessLogPath == "" {
		return
	}
	ts, found, err := l.tailer.MostRecentActivity(rt.Site.AccessLogPath, rt.Site.AccessLogFilter)
	if err != nil {
		l.log.Debug("hibernation: log tail error treated as no activity", "site", rt.Site.Name, "error", err)
		return
	}
	if !found {
		return
	}
	rt.TouchActivity(ts)
}
