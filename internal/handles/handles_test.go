package handles

import (
	"sync"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	type payload struct{ n int }
	tb := New()

	id := tb.Register(&payload{n: 42})
	if id == 0 {
		t.Fatal("Register returned the zero id")
	}
	v, ok := tb.Lookup(id)
	if !ok {
		t.Fatal("Lookup missed a registered id")
	}
	if p, ok := v.(*payload); !ok || p.n != 42 {
		t.Fatalf("Lookup returned %#v", v)
	}
	if p, ok := Typed[*payload](tb, id); !ok || p.n != 42 {
		t.Fatalf("Typed returned %#v, %v", p, ok)
	}
	if _, ok := Typed[string](tb, id); ok {
		t.Fatal("Typed accepted the wrong type")
	}
}

func TestUnregister(t *testing.T) {
	tb := New()
	id := tb.Register("x")
	tb.Unregister(id)
	if _, ok := tb.Lookup(id); ok {
		t.Fatal("value still present after Unregister")
	}
	tb.Unregister(id)
	if tb.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tb.Len())
	}
}

func TestZeroAndNil(t *testing.T) {
	tb := New()
	if _, ok := tb.Lookup(0); ok {
		t.Fatal("zero id resolved")
	}
	if id := tb.Register(nil); id != 0 {
		t.Fatalf("Register(nil) = %d, want 0", id)
	}
}

func TestIDsAreUnique(t *testing.T) {
	tb := New()
	seen := map[ID]bool{}
	for i := 0; i < 1000; i++ {
		id := tb.Register(i)
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if tb.Len() != 1000 {
		t.Fatalf("Len = %d, want 1000", tb.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	tb := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := tb.Register(i)
				if _, ok := tb.Lookup(id); !ok {
					t.Errorf("lost id %d", id)
					return
				}
				tb.Unregister(id)
			}
		}()
	}
	wg.Wait()
	if tb.Len() != 0 {
		t.Fatalf("Len = %d after concurrent churn", tb.Len())
	}
}
