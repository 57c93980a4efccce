// Package ports declares the interfaces hibernaut's components consume
// from each other, so every component can be faked with an in-memory
// double in tests instead of driving a real socket or subprocess.
package ports

import (
	"context"
	"net"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

// ServiceController is the external service manager collaborator of
// spec.md §4.C / §6.
type ServiceController interface {
	Start(ctx context.Context, unit string) error
	Stop(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) bool
}

// ProxySwitcher is the reverse-proxy config switcher of spec.md §4.D.
type ProxySwitcher interface {
	RouteToBackend(ctx context.Context, site *domain.Site) error
	RouteToHibernator(ctx context.Context, site *domain.Site) error
}

// Prober is the TCP readiness prober of spec.md §4.E.
type Prober interface {
	WaitReady(ctx context.Context, port int, deadline time.Time, interval time.Duration) error
}

// Dialer lets the prober be tested without a real socket.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// LogTailer is the access-log tailer of spec.md §4.B.
type LogTailer interface {
	MostRecentActivity(path, filter string) (time.Time, bool, error)
}

// HistorySink is the history sink of spec.md §4.K.
type HistorySink interface {
	RecordRequest(rec RequestRecord)
	RecordStateChange(rec StateRecord)
}

// RequestRecord is one entry of the request history stream.
type RequestRecord struct {
	ID        uint64
	TraceID   string // correlates this record with front-proxy log lines
	Timestamp time.Time
	Method    string
	URL       string
	Host      string
	RealIP    string
	Headers   map[string][]string
	Site      string // empty if unmatched
	Result    domain.ConnectionResult
	IsBrowser bool
}

// StateRecord is one entry of the state-transition history stream.
type StateRecord struct {
	Site      string
	State     domain.SiteState
	Timestamp time.Time
}
