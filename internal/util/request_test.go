package util

import "testing"

func TestGenerateRequestID_IsUniqueAndNonEmpty(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty request IDs")
	}
	if a == b {
		t.Fatal("expected distinct request IDs across calls")
	}
}
