package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hibernaut/hibernaut/internal/site"
)

// maxHistoryRecords bounds a single history/state-history response, per
// spec.md §6.
const maxHistoryRecords = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type siteSummary struct {
	Name         string    `json:"name"`
	Hosts        []string  `json:"hosts"`
	State        string    `json:"state"`
	StateSince   time.Time `json:"state_since"`
	LastActivity time.Time `json:"last_activity"`
	InFlight     int64     `json:"in_flight"`
}

// handleServices implements GET /hibernator-api/services.
func (a *Application) handleServices(w http.ResponseWriter, r *http.Request) {
	runtimes := a.registry.All()
	out := make([]siteSummary, 0, len(runtimes))
	for _, rt := range runtimes {
		state, since := rt.State()
		out = append(out, siteSummary{
			Name:         rt.Site.Name,
			Hosts:        rt.Site.Hosts,
			State:        state.String(),
			StateSince:   since,
			LastActivity: rt.LastActivity(),
			InFlight:     rt.InFlight(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleServiceConfig implements GET /hibernator-api/services/{name}/config.
func (a *Application) handleServiceConfig(w http.ResponseWriter, r *http.Request) {
	rt, ok := a.lookupNamedSite(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.Site)
}

type metricsResponse struct {
	UptimePct      float64 `json:"uptime_pct"`
	Hibernations   int     `json:"hibernations"`
	StartHistogram [5]int  `json:"start_histogram"`
	ETAMillis      *int64  `json:"eta_millis,omitempty"`
	State          string  `json:"state"`
}

// handleServiceMetrics implements
// GET /hibernator-api/services/{name}/metrics?seconds=.
func (a *Application) handleServiceMetrics(w http.ResponseWriter, r *http.Request) {
	rt, ok := a.lookupNamedSite(w, r)
	if !ok {
		return
	}

	windowSecs := int64(3600)
	if raw := r.URL.Query().Get("seconds"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			windowSecs = parsed
		}
	}

	now := a.clock.Now()
	m := a.history.Metrics(rt.Site.Name, windowSecs, now)

	resp := metricsResponse{
		UptimePct:      m.UptimePct,
		Hibernations:   m.Hibernations,
		StartHistogram: m.StartHistogram,
		State:          mustState(rt),
	}
	_, stateSince := rt.State()
	if eta, ok := rt.ETA(now.Sub(stateSince)); ok {
		ms := eta.Milliseconds()
		resp.ETAMillis = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

func mustState(rt *site.Runtime) string {
	state, _ := rt.State()
	return state.String()
}

// handleHistory implements GET /hibernator-api/history?before=&after=.
func (a *Application) handleHistory(w http.ResponseWriter, r *http.Request) {
	before, after := parseRangeQuery(r)
	records := a.history.HistoryRange(before, after, maxHistoryRecords)
	writeJSON(w, http.StatusOK, records)
}

// handleStateHistory implements
// GET /hibernator-api/state-history?service=&before=&after=.
func (a *Application) handleStateHistory(w http.ResponseWriter, r *http.Request) {
	before, after := parseRangeQuery(r)
	siteName := r.URL.Query().Get("service")
	records := a.history.StateHistoryRange(siteName, before, after)
	if len(records) > maxHistoryRecords {
		records = records[:maxHistoryRecords]
	}
	writeJSON(w, http.StatusOK, records)
}

func parseRangeQuery(r *http.Request) (before, after time.Time) {
	if raw := r.URL.Query().Get("before"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			before = t
		}
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			after = t
		}
	}
	return before, after
}

func (a *Application) lookupNamedSite(w http.ResponseWriter, r *http.Request) (*site.Runtime, bool) {
	name := r.PathValue("name")
	rt, ok := a.registry.LookupName(name)
	if !ok {
		http.Error(w, "site not found", http.StatusNotFound)
		return nil, false
	}
	return rt, true
}

// handleHealth implements GET /hibernator-api/health, exempted from
// rate-limit-per-IP accounting the way the other dashboard endpoints are
// not, per internal/security.RateLimitValidator's health-endpoint bucket.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
