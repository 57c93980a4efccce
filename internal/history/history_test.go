package history

import (
	"context"
	"testing"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
	"github.com/hibernaut/hibernaut/internal/core/ports"
)

func TestSink_RecordRequest_AssignsMonotonicIDs(t *testing.T) {
	s := New(0)
	defer s.Shutdown()

	s.RecordRequest(ports.RequestRecord{Method: "GET"})
	s.RecordRequest(ports.RequestRecord{Method: "POST"})

	recs := s.HistoryRange(time.Time{}, time.Time{}, 0)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// newest first
	if recs[0].Method != "POST" || recs[0].ID != 2 {
		t.Fatalf("unexpected newest record: %+v", recs[0])
	}
	if recs[1].Method != "GET" || recs[1].ID != 1 {
		t.Fatalf("unexpected oldest record: %+v", recs[1])
	}
}

func TestSink_HistoryRange_RespectsLimit(t *testing.T) {
	s := New(0)
	defer s.Shutdown()
	for i := 0; i < 5; i++ {
		s.RecordRequest(ports.RequestRecord{})
	}
	recs := s.HistoryRange(time.Time{}, time.Time{}, 2)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestSink_HistoryRange_EvictsOldestBeyondCapacity(t *testing.T) {
	s := New(3)
	defer s.Shutdown()
	for i := 0; i < 5; i++ {
		s.RecordRequest(ports.RequestRecord{Method: string(rune('A' + i))})
	}
	recs := s.HistoryRange(time.Time{}, time.Time{}, 0)
	if len(recs) != 3 {
		t.Fatalf("expected ring buffer bounded to 3, got %d", len(recs))
	}
	if recs[0].Method != "E" || recs[2].Method != "C" {
		t.Fatalf("expected the 3 newest records to survive, got %+v", recs)
	}
}

func TestSink_StateHistoryRange_FiltersBySite(t *testing.T) {
	s := New(0)
	defer s.Shutdown()
	now := time.Now()
	s.RecordStateChange(ports.StateRecord{Site: "a", State: domain.StateUp, Timestamp: now})
	s.RecordStateChange(ports.StateRecord{Site: "b", State: domain.StateUp, Timestamp: now})

	recs := s.StateHistoryRange("a", time.Time{}, time.Time{})
	if len(recs) != 1 || recs[0].Site != "a" {
		t.Fatalf("expected only site a's records, got %+v", recs)
	}
}

func TestSink_SubscribeRequests_ReceivesPublishedRecords(t *testing.T) {
	s := New(0)
	defer s.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, cleanup := s.SubscribeRequests(ctx)
	defer cleanup()

	s.RecordRequest(ports.RequestRecord{Method: "GET"})

	select {
	case rec := <-ch:
		if rec.Method != "GET" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published request record")
	}
}

func TestSink_Metrics_CountsHibernationsAndUptime(t *testing.T) {
	s := New(0)
	defer s.Shutdown()

	base := time.Now().Add(-time.Hour)
	s.RecordStateChange(ports.StateRecord{Site: "a", State: domain.StateStarting, Timestamp: base})
	s.RecordStateChange(ports.StateRecord{Site: "a", State: domain.StateUp, Timestamp: base.Add(2 * time.Second)})
	s.RecordStateChange(ports.StateRecord{Site: "a", State: domain.StateDown, Timestamp: base.Add(30 * time.Minute)})

	now := base.Add(time.Hour)
	m := s.Metrics("a", 3600, now)

	if m.Hibernations != 1 {
		t.Fatalf("expected 1 hibernation, got %d", m.Hibernations)
	}
	// up from base+2s to base+30m, window is 1h starting at base: ~50% uptime
	if m.UptimePct < 40 || m.UptimePct > 60 {
		t.Fatalf("expected roughly 50%% uptime, got %.2f", m.UptimePct)
	}
	if m.StartHistogram[1] != 1 { // 2s falls in [1,5s)
		t.Fatalf("expected the 2s start in bucket 1, got %+v", m.StartHistogram)
	}
}

func TestHistogramBucket_Boundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{500 * time.Millisecond, 0},
		{3 * time.Second, 1},
		{7 * time.Second, 2},
		{20 * time.Second, 3},
		{time.Minute, 4},
	}
	for _, tc := range cases {
		if got := histogramBucket(tc.d); got != tc.want {
			t.Errorf("histogramBucket(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestPercentile_MatchesSiteRuntimeSemantics(t *testing.T) {
	samples := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	got, ok := Percentile(samples, 50)
	if !ok || got != 4*time.Second {
		t.Fatalf("expected median 4s, got %v (ok=%v)", got, ok)
	}
}

type fakeAppender struct {
	requests int
	states   int
}

func (f *fakeAppender) AppendRequest(rec ports.RequestRecord)   { f.requests++ }
func (f *fakeAppender) AppendStateChange(rec ports.StateRecord) { f.states++ }

func TestSink_WithAppender_ForwardsEveryRecord(t *testing.T) {
	fa := &fakeAppender{}
	s := New(0, WithAppender(fa))
	defer s.Shutdown()

	s.RecordRequest(ports.RequestRecord{Method: "GET"})
	s.RecordStateChange(ports.StateRecord{Site: "widgets", State: domain.StateUp})

	if fa.requests != 1 || fa.states != 1 {
		t.Fatalf("expected appender to see 1 request and 1 state change, got %+v", fa)
	}
}
