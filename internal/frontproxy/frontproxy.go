// Package frontproxy implements the intercepting HTTP/1.1 server of
// spec.md §4.I: classify every request, consult the site state machine
// and wake coordinator, and either proxy to the backend or serve the
// hibernation landing page.
package frontproxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hibernaut/hibernaut/internal/classifier"
	"github.com/hibernaut/hibernaut/internal/clock"
	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
	"github.com/hibernaut/hibernaut/internal/site"
	"github.com/hibernaut/hibernaut/internal/util"
	"github.com/hibernaut/hibernaut/pkg/pool"
)

// requestIDHeader carries the trace ID both upstream (so the backend's own
// logs can be correlated) and back into the history record.
const requestIDHeader = "X-Hibernaut-Request-Id"

// hopByHopHeaders must not be forwarded to the upstream, per spec.md
// §4.I step 4.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "TE", "Trailers", "Transfer-Encoding", "Upgrade",
}

// Coordinator is the subset of site.Coordinator the front proxy needs.
type Coordinator interface {
	EnsureUp(ctx context.Context, rt *site.Runtime, deadline time.Time) (site.WakeResult, error)
}

// Server is the hibernator-port HTTP handler.
type Server struct {
	classifier  *classifier.Classifier
	coordinator Coordinator
	history     ports.HistorySink
	clock       clock.Clock
	transport   http.RoundTripper
	bufferPool  *pool.Pool[*[]byte]
	log         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the default system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithTransport overrides the default http.Transport, e.g. for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Server) { s.transport = rt }
}

// New returns a Server. log may be nil.
func New(cl *classifier.Classifier, coord Coordinator, history ports.HistorySink, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	bufPool := pool.NewLitePool(func() *[]byte {
		buf := make([]byte, 32*1024)
		return &buf
	})
	s := &Server{
		classifier: cl,
		coordinator: coord,
		history:    history,
		clock:      clock.Default,
		transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
		bufferPool: bufPool,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP implements spec.md §4.I's request-handling steps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(requestIDHeader) == "" {
		r.Header.Set(requestIDHeader, util.GenerateRequestID())
	}

	rt, cr := s.classifier.Classify(r)

	switch cr.Result {
	case domain.ResultMissingHost:
		s.reject(w, r, cr, http.StatusNotFound)
		return
	case domain.ResultUnknownSite:
		s.reject(w, r, cr, http.StatusNotFound)
		return
	case domain.ResultInvalidURL:
		s.reject(w, r, cr, http.StatusBadRequest)
		return
	case domain.ResultIgnored:
		s.reject(w, r, cr, http.StatusServiceUnavailable)
		return
	}

	mode := rt.Site.EffectiveProxyMode(cr.IsBrowser)
	switch mode {
	case domain.ProxyModeNever:
		cr.Result = domain.ResultUnproxied
		s.respondAndRecord(w, r, cr, http.StatusServiceUnavailable, nil)

	case domain.ProxyModeAlways:
		s.handleAlways(w, r, rt, cr)

	case domain.ProxyModeWhenReady:
		s.handleWhenReady(w, r, rt, cr)

	default:
		cr.Result = domain.ResultUnproxied
		s.respondAndRecord(w, r, cr, http.StatusServiceUnavailable, nil)
	}
}

func (s *Server) handleAlways(w http.ResponseWriter, r *http.Request, rt *site.Runtime, cr domain.ClassifiedRequest) {
	deadline := s.clock.Now().Add(rt.Site.ProxyTimeout)
	result, err := s.coordinator.EnsureUp(r.Context(), rt, deadline)

	switch result {
	case site.Ready:
		s.proxy(w, r, rt, cr)
	case site.NotReady:
		if cr.IsBrowser {
			s.serveLanding(w, r, rt, cr)
			return
		}
		cr.Result = domain.ResultProxyTimeout
		s.respondAndRecord(w, r, cr, http.StatusGatewayTimeout, nil)
		return
	case site.Failed:
		s.log.Warn("frontproxy: wake failed", "site", rt.Site.Name, "error", err)
		cr.Result = domain.ResultProxyFailed
		s.respondAndRecord(w, r, cr, http.StatusBadGateway, nil)
	}
}

func (s *Server) handleWhenReady(w http.ResponseWriter, r *http.Request, rt *site.Runtime, cr domain.ClassifiedRequest) {
	state, _ := rt.State()
	if state == domain.StateUp {
		s.proxy(w, r, rt, cr)
		return
	}

	// trigger a wake in the background; this request does not wait on it.
	go func() {
		ctx := context.Background()
		deadline := s.clock.Now().Add(rt.Site.StartTimeout)
		if _, err := s.coordinator.EnsureUp(ctx, rt, deadline); err != nil {
			s.log.Debug("frontproxy: background wake ended", "site", rt.Site.Name, "error", err)
		}
	}()

	if cr.IsBrowser {
		s.serveLanding(w, r, rt, cr)
		return
	}
	cr.Result = domain.ResultUnproxied
	s.respondAndRecord(w, r, cr, http.StatusServiceUnavailable, nil)
}

// proxy forwards r to 127.0.0.1:rt.Site.Port, per spec.md §4.I step 4.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, rt *site.Runtime, cr domain.ClassifiedRequest) {
	done := rt.BeginProxy()
	defer done()

	outReq, err := s.buildUpstreamRequest(r, rt, cr.RealIP)
	if err != nil {
		cr.Result = domain.ResultProxyFailed
		s.respondAndRecord(w, r, cr, http.StatusBadGateway, nil)
		return
	}

	resp, err := s.transport.RoundTrip(outReq)
	if err != nil {
		cr.Result = domain.ResultProxyFailed
		s.respondAndRecord(w, r, cr, http.StatusBadGateway, nil)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	buf := s.bufferPool.Get()
	defer s.bufferPool.Put(buf)
	if _, err := io.CopyBuffer(w, resp.Body, *buf); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("frontproxy: response streaming ended early", "site", rt.Site.Name, "error", err)
	}

	rt.TouchActivity(s.clock.Now())
	cr.Result = domain.ResultProxySuccess
	s.record(r, cr)
}

func (s *Server) buildUpstreamRequest(r *http.Request, rt *site.Runtime, realIP string) (*http.Request, error) {
	upstreamURL := *r.URL
	upstreamURL.Scheme = "http"
	upstreamURL.Host = net.JoinHostPort("127.0.0.1", strconv.Itoa(rt.Site.Port))

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		return nil, err
	}
	outReq.Header = make(http.Header, len(r.Header))
	for key, values := range r.Header {
		if isHopByHop(key) {
			continue
		}
		outReq.Header[key] = values
	}
	outReq.Host = r.Host

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		outReq.Header.Set("X-Forwarded-For", xff+", "+realIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", realIP)
	}

	return outReq, nil
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, cr domain.ClassifiedRequest, status int) {
	s.respondAndRecord(w, r, cr, status, nil)
}

func (s *Server) respondAndRecord(w http.ResponseWriter, r *http.Request, cr domain.ClassifiedRequest, status int, body []byte) {
	if body != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(status)
	if body != nil {
		_, _ = w.Write(body)
	}
	s.record(r, cr)
}

func (s *Server) record(r *http.Request, cr domain.ClassifiedRequest) {
	if s.history == nil {
		return
	}
	siteName := ""
	if cr.Site != nil {
		siteName = cr.Site.Name
	}
	s.history.RecordRequest(ports.RequestRecord{
		TraceID:   r.Header.Get(requestIDHeader),
		Timestamp: s.clock.Now(),
		Method:    r.Method,
		URL:       r.URL.String(),
		Host:      r.Host,
		RealIP:    cr.RealIP,
		Headers:   r.Header,
		Site:      siteName,
		Result:    cr.Result,
		IsBrowser: cr.IsBrowser,
	})
}

// serveLanding renders the waiting page per spec.md §4.I step 5.
func (s *Server) serveLanding(w http.ResponseWriter, r *http.Request, rt *site.Runtime, cr domain.ClassifiedRequest) {
	html, err := s.renderLanding(rt)
	if err != nil {
		s.log.Error("frontproxy: landing page render failed", "site", rt.Site.Name, "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		cr.Result = domain.ResultUnproxied
		s.record(r, cr)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(html)

	cr.Result = domain.ResultUnproxied
	s.record(r, cr)
}

func (s *Server) renderLanding(rt *site.Runtime) ([]byte, error) {
	path := filepath.Join(rt.Site.LandingFolder, "index.html")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	_, stateSince := rt.State()
	elapsed := s.clock.Now().Sub(stateSince)
	etaMs := "0"
	if eta, ok := rt.ETA(elapsed); ok {
		etaMs = strconv.FormatInt(eta.Milliseconds(), 10)
	}

	replacer := strings.NewReplacer(
		"DONE_MS", strconv.FormatInt(elapsed.Milliseconds(), 10),
		"DURATION_MS", etaMs,
		"KEEP_ALIVE", strconv.FormatInt(int64(rt.Site.KeepAlive.Seconds()), 10),
	)
	return []byte(replacer.Replace(string(raw))), nil
}
