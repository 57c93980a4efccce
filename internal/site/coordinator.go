package site

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibernaut/hibernaut/internal/clock"
	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

// Coordinator drives the DOWN/STARTING/UP transitions of spec.md §4.F
// and the single-flight wake protocol of §4.G. It is the one place that
// calls out to the service manager, the proxy switcher and the prober.
type Coordinator struct {
	services ports.ServiceController
	switcher ports.ProxySwitcher
	prober   ports.Prober
	history  ports.HistorySink
	clock    clock.Clock
	log      *slog.Logger
}

// NewCoordinator wires the Coordinator's collaborators. log may be nil.
func NewCoordinator(services ports.ServiceController, switcher ports.ProxySwitcher, prober ports.Prober, history ports.HistorySink, c clock.Clock, log *slog.Logger) *Coordinator {
	if c == nil {
		c = clock.Default
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{services: services, switcher: switcher, prober: prober, history: history, clock: c, log: log}
}

// EnsureUp implements spec.md §4.G's public contract. It returns Ready
// immediately if the site is already UP, joins the in-flight starter's
// waiter list if STARTING, or begins a new starter if DOWN — waiting in
// all three cases no longer than deadline.
func (c *Coordinator) EnsureUp(ctx context.Context, rt *Runtime, deadline time.Time) (WakeResult, error) {
	rt.mu.Lock()

	switch rt.state {
	case domain.StateUp:
		rt.lastActivity = c.clock.Now()
		rt.mu.Unlock()
		return Ready, nil

	case domain.StateStarting:
		ch := rt.signal
		rt.mu.Unlock()
		return c.wait(ctx, rt, ch, deadline)

	default: // StateDown or StateUnknown
		now := c.clock.Now()
		ch := make(chan struct{})
		rt.signal = ch
		rt.generation++
		gen := rt.generation
		rt.setState(domain.StateStarting, now)
		rt.mu.Unlock()

		c.recordTransition(rt, domain.StateStarting, now)
		go c.runStarter(rt, gen, ch, now)

		return c.wait(ctx, rt, ch, deadline)
	}
}

// wait blocks on ch (closed by the owning starter) until it fires, ctx
// is cancelled, or deadline passes.
func (c *Coordinator) wait(ctx context.Context, rt *Runtime, ch chan struct{}, deadline time.Time) (WakeResult, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-ch:
		rt.mu.Lock()
		state := rt.state
		err := rt.lastErr
		rt.mu.Unlock()
		if state == domain.StateUp {
			return Ready, nil
		}
		return Failed, err

	case <-timer.C:
		return NotReady, nil

	case <-ctx.Done():
		return NotReady, ctx.Err()
	}
}

// runStarter performs the DOWN->STARTING->{UP,DOWN} sequence for
// generation gen. It is not bound to the initiating caller's context:
// spec.md §4.G is explicit that "the starter itself is not cancelled" by
// a caller's deadline, so it runs to the site's own start_timeout.
func (c *Coordinator) runStarter(rt *Runtime, gen uint64, ch chan struct{}, startedAt time.Time) {
	ctx := context.Background()

	if err := c.switcher.RouteToHibernator(ctx, rt.Site); err != nil {
		c.failStarter(rt, gen, ch, err)
		return
	}
	if err := c.services.Start(ctx, rt.Site.ServiceUnitName); err != nil {
		c.failStarter(rt, gen, ch, err)
		return
	}

	probeDeadline := startedAt.Add(rt.Site.StartTimeout)
	if err := c.prober.WaitReady(ctx, rt.Site.Port, probeDeadline, rt.Site.StartCheckInterval); err != nil {
		c.failStarter(rt, gen, ch, err)
		return
	}

	if err := c.switcher.RouteToBackend(ctx, rt.Site); err != nil {
		c.failStarter(rt, gen, ch, err)
		return
	}

	c.succeedStarter(rt, gen, ch, startedAt)
}

func (c *Coordinator) failStarter(rt *Runtime, gen uint64, ch chan struct{}, cause error) {
	now := c.clock.Now()

	rt.mu.Lock()
	if rt.generation != gen {
		rt.mu.Unlock()
		return
	}
	rt.setState(domain.StateDown, now)
	rt.lastErr = cause
	rt.mu.Unlock()

	c.log.Warn("site: start failed", "site", rt.Site.Name, "error", cause)
	// best effort: a site that failed to come up should not be left
	// routed at the backend config it never reached.
	_ = c.switcher.RouteToHibernator(context.Background(), rt.Site)
	c.recordTransition(rt, domain.StateDown, now)
	close(ch)
}

func (c *Coordinator) succeedStarter(rt *Runtime, gen uint64, ch chan struct{}, startedAt time.Time) {
	now := c.clock.Now()

	rt.mu.Lock()
	if rt.generation != gen {
		rt.mu.Unlock()
		return
	}
	rt.setState(domain.StateUp, now)
	rt.lastActivity = now
	rt.lastErr = nil
	rt.recordStartSample(now.Sub(startedAt))
	rt.mu.Unlock()

	c.log.Info("site: started", "site", rt.Site.Name, "elapsed", now.Sub(startedAt))
	c.recordTransition(rt, domain.StateUp, now)
	close(ch)
}

// CheckHibernation applies the UP->DOWN rule of spec.md §4.F: idle for
// at least keep_alive with nothing in flight. It is the hibernation
// loop's only entry point into the coordinator.
func (c *Coordinator) CheckHibernation(ctx context.Context, rt *Runtime) error {
	rt.mu.Lock()
	if rt.state != domain.StateUp {
		rt.mu.Unlock()
		return nil
	}
	idleFor := c.clock.Now().Sub(rt.lastActivity)
	shouldSleep := idleFor >= rt.Site.KeepAlive && rt.InFlight() == 0
	rt.mu.Unlock()

	if !shouldSleep {
		return nil
	}

	if err := c.switcher.RouteToHibernator(ctx, rt.Site); err != nil {
		return err
	}
	if err := c.services.Stop(ctx, rt.Site.ServiceUnitName); err != nil {
		return err
	}

	now := c.clock.Now()
	rt.mu.Lock()
	rt.setState(domain.StateDown, now)
	rt.mu.Unlock()

	c.log.Info("site: hibernated", "site", rt.Site.Name, "idle_for", idleFor)
	c.recordTransition(rt, domain.StateDown, now)
	return nil
}

// Reconcile probes rt's port once and sets its boot-time state per
// spec.md §4.F's reconciliation rule, so a crash restart never assumes a
// stale STARTING/UP from before the crash.
func (c *Coordinator) Reconcile(ctx context.Context, rt *Runtime) error {
	now := c.clock.Now()
	err := c.prober.WaitReady(ctx, rt.Site.Port, now, 0)

	state := domain.StateDown
	if err == nil {
		state = domain.StateUp
	}

	rt.mu.Lock()
	rt.setState(state, now)
	if state == domain.StateUp {
		rt.lastActivity = now
	}
	rt.mu.Unlock()

	if state == domain.StateDown {
		if err := c.switcher.RouteToHibernator(ctx, rt.Site); err != nil {
			return err
		}
	}

	c.log.Info("site: reconciled", "site", rt.Site.Name, "state", state)
	c.recordTransition(rt, state, now)
	return nil
}

func (c *Coordinator) recordTransition(rt *Runtime, state domain.SiteState, when time.Time) {
	if c.history == nil {
		return
	}
	c.history.RecordStateChange(ports.StateRecord{
		Site:      rt.Site.Name,
		State:     state,
		Timestamp: when,
	})
}
