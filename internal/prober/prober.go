// Package prober polls a TCP port until it accepts a connection or a
// deadline passes, per spec.md §4.E: the readiness signal used by the
// wake coordinator to decide when a starting site has become reachable.
package prober

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

var _ ports.Prober = (*TCPProber)(nil)

// TCPProber dials loopback:port on a fixed interval until it connects,
// the context is cancelled, or the deadline passes.
type TCPProber struct {
	dialer ports.Dialer
	log    *slog.Logger
}

// New returns a TCPProber using a real net.Dialer. log may be nil.
func New(log *slog.Logger) *TCPProber {
	if log == nil {
		log = slog.Default()
	}
	return &TCPProber{
		dialer: &net.Dialer{Timeout: 2 * time.Second},
		log:    log,
	}
}

// NewWithDialer lets tests substitute a fake Dialer.
func NewWithDialer(d ports.Dialer, log *slog.Logger) *TCPProber {
	if log == nil {
		log = slog.Default()
	}
	return &TCPProber{dialer: d, log: log}
}

// WaitReady blocks until 127.0.0.1:port accepts a connection, ctx is
// cancelled, or deadline passes, whichever comes first. A successful
// connection is closed immediately; the prober only asks "can a TCP
// handshake complete", it never speaks the upstream's protocol.
func (p *TCPProber) WaitReady(ctx context.Context, port int, deadline time.Time, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	attempt := 0
	for {
		attempt++
		if p.tryConnect(ctx, addr) {
			p.log.Debug("prober: port ready", "addr", addr, "attempts", attempt)
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &domain.ProxyConfigError{Op: "probe", Err: domain.ErrTCPProbeTimedOut}
		}

		wait := interval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *TCPProber) tryConnect(ctx context.Context, addr string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
