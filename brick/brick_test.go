package brick

import (
	"testing"

	"github.com/voxel64/tree64/palette"
)

func idx(c uint16) palette.Index { return palette.Index{Color: c, Data: palette.AbsentIndex} }

func TestEmptyBrickGet(t *testing.T) {
	b := Empty(4)
	if got := b.Get(0, 0, 0); !got.IsEmpty() {
		t.Errorf("Empty brick Get = %v, want empty", got)
	}
	if !b.IsEmpty() {
		t.Error("Empty().IsEmpty() = false")
	}
}

func TestSolidBrickGet(t *testing.T) {
	v := idx(5)
	b := NewSolid(4, v)
	for _, p := range [][3]int{{0, 0, 0}, {3, 3, 3}, {1, 2, 3}} {
		if got := b.Get(p[0], p[1], p[2]); got != v {
			t.Errorf("Solid.Get(%v) = %v, want %v", p, got, v)
		}
	}
}

func TestNewSolidWithEmptyIndexCollapsesToEmpty(t *testing.T) {
	b := NewSolid(4, palette.EmptyIndex)
	if b.Kind != KindEmpty {
		t.Errorf("NewSolid(EmptyIndex).Kind = %v, want KindEmpty", b.Kind)
	}
}

func TestSetExpandsEmptyToParted(t *testing.T) {
	b := Empty(2)
	v := idx(1)
	expanded := b.Set(1, 0, 1, v)
	if !expanded {
		t.Error("Set on Empty with a non-empty value must report expanded=true")
	}
	if b.Kind != KindParted {
		t.Errorf("Kind after Set = %v, want KindParted", b.Kind)
	}
	if got := b.Get(1, 0, 1); got != v {
		t.Errorf("Get after Set = %v, want %v", got, v)
	}
	if got := b.Get(0, 0, 0); !got.IsEmpty() {
		t.Errorf("untouched cell = %v, want empty", got)
	}
}

func TestSetOnEmptyWithEmptyValueIsNoOp(t *testing.T) {
	b := Empty(2)
	if expanded := b.Set(0, 0, 0, palette.EmptyIndex); expanded {
		t.Error("writing empty onto an already-empty brick must not expand it")
	}
	if b.Kind != KindEmpty {
		t.Errorf("Kind = %v, want KindEmpty", b.Kind)
	}
}

func TestSetExpandsSolidPreservingOtherCells(t *testing.T) {
	v := idx(7)
	b := NewSolid(2, v)
	other := idx(9)
	b.Set(0, 0, 0, other)
	if b.Kind != KindParted {
		t.Fatalf("Kind = %v, want KindParted", b.Kind)
	}
	if got := b.Get(0, 0, 0); got != other {
		t.Errorf("written cell = %v, want %v", got, other)
	}
	if got := b.Get(1, 1, 1); got != v {
		t.Errorf("untouched cell = %v, want original solid value %v", got, v)
	}
}

func TestSetOnSolidWithSameValueIsNoOp(t *testing.T) {
	v := idx(3)
	b := NewSolid(2, v)
	if expanded := b.Set(0, 0, 0, v); expanded {
		t.Error("writing the solid's own value must not expand it")
	}
	if b.Kind != KindSolid {
		t.Errorf("Kind = %v, want KindSolid", b.Kind)
	}
}

func TestTryCollapseSolidWhenUniform(t *testing.T) {
	v := idx(4)
	b := NewSolid(2, v)
	b.Set(0, 0, 0, idx(1)) // forces Parted
	b.Set(0, 0, 0, v)      // restores uniformity
	if changed := b.TryCollapseSolid(); !changed {
		t.Fatal("expected TryCollapseSolid to collapse a uniform Parted brick")
	}
	if b.Kind != KindSolid || b.Solid != v {
		t.Errorf("after collapse: Kind=%v Solid=%v, want KindSolid/%v", b.Kind, b.Solid, v)
	}
}

func TestTryCollapseSolidWhenNotUniform(t *testing.T) {
	b := NewSolid(2, idx(1))
	b.Set(0, 0, 0, idx(2))
	if changed := b.TryCollapseSolid(); changed {
		t.Error("must not collapse a genuinely non-uniform Parted brick")
	}
	if b.Kind != KindParted {
		t.Errorf("Kind = %v, want KindParted", b.Kind)
	}
}

func TestCalculateOccupiedBitsEmptyAndSolid(t *testing.T) {
	if got := CalculateOccupiedBits(ptr(Empty(8))); got != 0 {
		t.Errorf("Empty brick occupancy = %#x, want 0", got)
	}
	if got := CalculateOccupiedBits(ptr(NewSolid(8, idx(1)))); got != 0xFFFFFFFFFFFFFFFF {
		t.Errorf("Solid brick occupancy = %#x, want all-ones", got)
	}
}

func TestCalculateOccupiedBitsPartedOneCellOnly(t *testing.T) {
	b := Empty(4)
	b.Set(0, 0, 0, idx(1)) // lands in cell 0 of the 4x4x4 (N=4 -> 1 voxel per cell)
	bits := CalculateOccupiedBits(&b)
	if bits != 1 {
		t.Errorf("occupancy = %#x, want bit0 only (1)", bits)
	}
}

func TestIsEmptyThroughoutPerSectant(t *testing.T) {
	b := Empty(8) // 8/4 = 2 voxels per cell per axis
	b.Set(0, 0, 0, idx(1))
	if IsEmptyThroughout(&b, 0) {
		t.Error("sectant 0 contains the written voxel, should not be empty")
	}
	if !IsEmptyThroughout(&b, 63) {
		t.Error("sectant 63 is untouched, should be empty")
	}
}

func TestDownsample2xSolidReplicates(t *testing.T) {
	src := NewSolid(4, idx(5))
	dst := Downsample2x(&src, 0, 4, 4)
	// Downsample2x always builds a Parted brick by construction, then tries
	// to collapse; a uniform solid source collapses back to Solid.
	if dst.Kind != KindSolid || dst.Solid != idx(5) {
		t.Errorf("downsample of solid brick = %+v, want collapsed Solid(5)", dst)
	}
}

func TestDownsample2xEmptySourceCellStaysEmpty(t *testing.T) {
	src := Empty(4)
	src.Set(3, 3, 3, idx(9)) // lives in sectant 7 (of fanout=2) far corner
	dst := Downsample2x(&src, 0, 4, 2)
	if dst.Kind != KindEmpty && !allEmpty(&dst) {
		t.Errorf("sectant 0's projection should be empty when source corner is untouched")
	}
}

func allEmpty(b *Brick) bool {
	for z := 0; z < b.N; z++ {
		for y := 0; y < b.N; y++ {
			for x := 0; x < b.N; x++ {
				if !b.Get(x, y, z).IsEmpty() {
					return false
				}
			}
		}
	}
	return true
}

func ptr(b Brick) *Brick { return &b }
