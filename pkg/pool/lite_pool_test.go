package pool

import "testing"

type resettableCounter struct {
	n     int
	reset bool
}

func (r *resettableCounter) Reset() {
	r.reset = true
	r.n = 0
}

func TestPool_GetReturnsConstructedValue(t *testing.T) {
	p := NewLitePool(func() *int {
		v := 7
		return &v
	})
	got := p.Get()
	if *got != 7 {
		t.Fatalf("expected 7, got %d", *got)
	}
}

func TestPool_PutResetsResettableValues(t *testing.T) {
	p := NewLitePool(func() *resettableCounter { return &resettableCounter{} })
	v := p.Get()
	v.n = 42
	p.Put(v)

	if !v.reset {
		t.Fatal("expected Put to call Reset on a Resettable value")
	}
}

func TestPool_NewLitePool_PanicsOnNilConstructor(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected NewLitePool(nil) to panic")
		}
	}()
	NewLitePool[*int](nil)
}
