package site

import (
	"testing"
	"time"

	"github.com/hibernaut/hibernaut/internal/core/domain"
)

func TestRuntime_ETA_UnknownWithFewerThanTwoSamples(t *testing.T) {
	rt := NewRuntime(&domain.Site{ETAPercentile: 50})
	if _, ok := rt.ETA(0); ok {
		t.Fatalf("expected ETA to be unknown with zero samples")
	}

	rt.recordStartSample(5 * time.Second)
	if _, ok := rt.ETA(0); ok {
		t.Fatalf("expected ETA to be unknown with exactly one sample")
	}
}

func TestRuntime_ETA_MedianOfThreeSamples(t *testing.T) {
	rt := NewRuntime(&domain.Site{ETAPercentile: 50})
	rt.recordStartSample(2 * time.Second)
	rt.recordStartSample(4 * time.Second)
	rt.recordStartSample(6 * time.Second)

	eta, ok := rt.ETA(0)
	if !ok {
		t.Fatalf("expected ETA to be known")
	}
	if eta != 4*time.Second {
		t.Fatalf("expected median of 4s, got %v", eta)
	}
}

func TestRuntime_ETA_SubtractsElapsedAndFloorsAtZero(t *testing.T) {
	rt := NewRuntime(&domain.Site{ETAPercentile: 50})
	rt.recordStartSample(4 * time.Second)
	rt.recordStartSample(6 * time.Second)

	eta, ok := rt.ETA(3 * time.Second)
	if !ok {
		t.Fatalf("expected ETA to be known")
	}
	if eta != 2*time.Second {
		t.Fatalf("expected 2s remaining, got %v", eta)
	}

	eta, ok = rt.ETA(100 * time.Second)
	if !ok {
		t.Fatalf("expected ETA to be known")
	}
	if eta != 0 {
		t.Fatalf("expected ETA to floor at zero, got %v", eta)
	}
}

func TestRuntime_RecordStartSample_BoundedByETASampleSize(t *testing.T) {
	rt := NewRuntime(&domain.Site{ETASampleSize: 3, ETAPercentile: 100})
	for i := 1; i <= 5; i++ {
		rt.recordStartSample(time.Duration(i) * time.Second)
	}
	if len(rt.startSamples) != 3 {
		t.Fatalf("expected ring buffer bounded to 3 samples, got %d", len(rt.startSamples))
	}
	// only the 3 most recent samples (3s, 4s, 5s) should remain.
	eta, ok := rt.ETA(0)
	if !ok || eta != 5*time.Second {
		t.Fatalf("expected the newest sample (5s) at the 100th percentile, got %v (ok=%v)", eta, ok)
	}
}

func TestRuntime_BeginProxy_TracksInFlightCount(t *testing.T) {
	rt := NewRuntime(&domain.Site{})
	if rt.InFlight() != 0 {
		t.Fatalf("expected zero in flight initially")
	}
	done1 := rt.BeginProxy()
	done2 := rt.BeginProxy()
	if rt.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", rt.InFlight())
	}
	done1()
	if rt.InFlight() != 1 {
		t.Fatalf("expected 1 in flight, got %d", rt.InFlight())
	}
	done2()
	if rt.InFlight() != 0 {
		t.Fatalf("expected 0 in flight, got %d", rt.InFlight())
	}
}
