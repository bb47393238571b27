package pool

import "testing"

func TestPushGet(t *testing.T) {
	p := New[string]()
	k := p.Push("a")
	v, ok := p.Get(k)
	if !ok || v != "a" {
		t.Fatalf("Get(%d) = (%q,%v), want (\"a\",true)", k, v, ok)
	}
}

func TestFreeReusesSlotAndKeepsKeysStable(t *testing.T) {
	p := New[int]()
	k1 := p.Push(1)
	k2 := p.Push(2)
	k3 := p.Push(3)

	p.Free(k2)
	if p.KeyIsValid(k2) {
		t.Fatal("k2 should be invalid after Free")
	}

	k4 := p.Push(4)
	if k4 != k2 {
		t.Errorf("Push after Free got key %d, want reused key %d", k4, k2)
	}

	// Untouched keys remain valid and point at their original values.
	if v, ok := p.Get(k1); !ok || v != 1 {
		t.Errorf("k1 = (%d,%v), want (1,true)", v, ok)
	}
	if v, ok := p.Get(k3); !ok || v != 3 {
		t.Errorf("k3 = (%d,%v), want (3,true)", v, ok)
	}
	if v, ok := p.Get(k4); !ok || v != 4 {
		t.Errorf("k4 = (%d,%v), want (4,true)", v, ok)
	}
}

func TestFreeZeroesSlot(t *testing.T) {
	p := New[string]()
	k := p.Push("hello")
	p.Free(k)
	// MustGet bypasses validity checks; confirm the slot was actually reset
	// rather than left dangling with stale data.
	if got := *p.MustGet(k); got != "" {
		t.Errorf("freed slot holds %q, want zero value", got)
	}
}

func TestKeyIsValidRejectsEmptyMarkerAndOutOfRange(t *testing.T) {
	p := New[int]()
	if p.KeyIsValid(EmptyMarker) {
		t.Error("EmptyMarker must never be valid")
	}
	if p.KeyIsValid(999) {
		t.Error("out-of-range key must not be valid")
	}
}

func TestSetOverwritesValidKeyOnly(t *testing.T) {
	p := New[int]()
	k := p.Push(1)
	p.Set(k, 42)
	if v, _ := p.Get(k); v != 42 {
		t.Errorf("Set did not take effect, got %d", v)
	}
	p.Free(k)
	p.Set(k, 99) // must be a silent no-op on an invalid key
	if p.KeyIsValid(k) {
		t.Error("Set must not resurrect a freed key")
	}
}

func TestLenVsLiveCount(t *testing.T) {
	p := New[int]()
	a := p.Push(1)
	p.Push(2)
	p.Push(3)
	p.Free(a)

	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
	if p.LiveCount() != 2 {
		t.Errorf("LiveCount() = %d, want 2", p.LiveCount())
	}
}
