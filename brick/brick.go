// Package brick implements the dense voxel tile stored in tree leaves:
// Empty / Solid(index) / Parted(N^3 indices), plus the occupancy-bit
// derivation used by both the update engine and the raytracer. Grounded
// on voxelrt/rt/volume/xbrickmap.go's Brick type (Payload array, 64-bit
// OccupancyMask64, Expand/TryCompress), generalized from the teacher's
// fixed BrickSize=8 to an arbitrary power-of-two N and from the teacher's
// raw uint8 payload to a palette.Index pair.
package brick

import "github.com/voxel64/tree64/palette"

// Kind tags which of the three brick variants is populated.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindSolid
	KindParted
)

// Brick is a leaf's dense voxel tile. N is the brick's edge length (the
// tree's configured BrickDim); Voxels is only populated for KindParted and
// has exactly N*N*N entries in z-major order (flat index = x + y*N +
// z*N*N, matching the teacher's row ordering in Brick.Payload).
type Brick struct {
	Kind   Kind
	N      int
	Solid  palette.Index
	Voxels []palette.Index
}

func Empty(n int) Brick {
	return Brick{Kind: KindEmpty, N: n}
}

func NewSolid(n int, idx palette.Index) Brick {
	if idx.IsEmpty() {
		return Empty(n)
	}
	return Brick{Kind: KindSolid, N: n, Solid: idx}
}

func newParted(n int) Brick {
	voxels := make([]palette.Index, n*n*n)
	for i := range voxels {
		voxels[i] = palette.EmptyIndex
	}
	return Brick{Kind: KindParted, N: n, Voxels: voxels}
}

func flat(n, x, y, z int) int { return x + y*n + z*n*n }

// Get returns the voxel at local coordinates (x,y,z), valid for x,y,z in
// [0,N).
func (b *Brick) Get(x, y, z int) palette.Index {
	switch b.Kind {
	case KindEmpty:
		return palette.EmptyIndex
	case KindSolid:
		return b.Solid
	default:
		return b.Voxels[flat(b.N, x, y, z)]
	}
}

// Set writes val at (x,y,z), expanding Empty/Solid to Parted in place when
// the write would otherwise be lossy (mirrors Brick.Expand in the
// teacher). Returns true if the brick's Kind changed.
func (b *Brick) Set(x, y, z int, val palette.Index) (expanded bool) {
	switch b.Kind {
	case KindEmpty:
		if val.IsEmpty() {
			return false
		}
		*b = newParted(b.N)
		b.Voxels[flat(b.N, x, y, z)] = val
		return true
	case KindSolid:
		if val == b.Solid {
			return false
		}
		prevSolid := b.Solid
		*b = newParted(b.N)
		for i := range b.Voxels {
			b.Voxels[i] = prevSolid
		}
		b.Voxels[flat(b.N, x, y, z)] = val
		return true
	default:
		b.Voxels[flat(b.N, x, y, z)] = val
		return false
	}
}

// IsEmpty reports whether the brick contributes no occupancy at all.
func (b *Brick) IsEmpty() bool {
	switch b.Kind {
	case KindEmpty:
		return true
	case KindSolid:
		return b.Solid.IsEmpty()
	default:
		return false // TryCollapseSolid/GetHomogeneousData keep Parted non-uniform-empty bricks rare but possible transiently
	}
}

// GetHomogeneousData returns (idx, true) if the brick is Parted and every
// cell holds the same palette index — the condition under which the
// update engine collapses it back to Solid.
func GetHomogeneousData(b *Brick) (palette.Index, bool) {
	if b.Kind != KindParted {
		return palette.Index{}, false
	}
	if len(b.Voxels) == 0 {
		return palette.Index{}, false
	}
	first := b.Voxels[0]
	for _, v := range b.Voxels[1:] {
		if v != first {
			return palette.Index{}, false
		}
	}
	return first, true
}

// TryCollapseSolid opportunistically collapses a uniform Parted brick back
// to Solid, mirroring the teacher's Brick.TryCompress. Returns true if the
// brick's representation changed.
func (b *Brick) TryCollapseSolid() bool {
	idx, ok := GetHomogeneousData(b)
	if !ok {
		return false
	}
	*b = NewSolid(b.N, idx)
	return true
}

// subRange returns [lo, hi) voxel-index bounds along one axis for the
// subsectant-th of divisions slices of an N-length axis. When n < divisions,
// neighbouring slices share a voxel, so every slice covers at least one.
func subRange(n, divisions, subsectant int) (lo, hi int) {
	lo = subsectant * n / divisions
	hi = (subsectant + 1) * n / divisions
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// IsEmptyThroughout reports whether the brick's sub-region corresponding
// to parent sectant index (0..63, the 4x4x4 subdivision) contains no
// non-empty voxel. Used by the update engine's ancestor occupancy-bit
// recomputation (is_empty_throughout in the spec).
func IsEmptyThroughout(b *Brick, sectant int) bool {
	if b.Kind == KindEmpty {
		return true
	}
	if b.Kind == KindSolid {
		return b.Solid.IsEmpty()
	}
	sx := sectant % 4
	sy := (sectant / 4) % 4
	sz := sectant / 16
	xlo, xhi := subRange(b.N, 4, sx)
	ylo, yhi := subRange(b.N, 4, sy)
	zlo, zhi := subRange(b.N, 4, sz)
	for z := zlo; z < zhi; z++ {
		for y := ylo; y < yhi; y++ {
			for x := xlo; x < xhi; x++ {
				if !b.Get(x, y, z).IsEmpty() {
					return false
				}
			}
		}
	}
	return true
}

// CalculateOccupiedBits derives the 64-bit occupancy mask at fixed 4x4x4
// resolution: bit i set iff any voxel inside the i-th 4x4x4 cell
// (mapping N voxels per axis onto 4 cells, per spec 4.D) is non-empty.
func CalculateOccupiedBits(b *Brick) uint64 {
	if b.Kind == KindEmpty {
		return 0
	}
	if b.Kind == KindSolid {
		if b.Solid.IsEmpty() {
			return 0
		}
		return 0xFFFFFFFFFFFFFFFF
	}
	var bits uint64
	for cell := 0; cell < 64; cell++ {
		if !IsEmptyThroughout(b, cell) {
			bits |= 1 << uint(cell)
		}
	}
	return bits
}

// Downsample2x produces the brick a child receives when a Parted brick of
// edge N is split under subdivision: each destination cell (x,y,z) covers
// brick[off + (x/2, y/2, z/2)] within the source sub-block selected by
// childSectant, per the "brick projection" rule in spec §9 — cells with
// x,y,z < 2 copy the base cell, cells at >= 2 fetch the next source cell.
// fanout is the per-axis division factor of the subdivision (4 for a
// sectant split, 2 for the octant split spec §9 allows when size/brickDim
// is an odd power of two); childSectant is in [0, fanout^3).
func Downsample2x(src *Brick, childSectant int, n int, fanout int) Brick {
	dst := newParted(n)
	sx := childSectant % fanout
	sy := (childSectant / fanout) % fanout
	sz := childSectant / (fanout * fanout)
	// The source sub-block this child sectant projects from, expressed in
	// source voxel coordinates.
	blockX := sx * src.N / fanout
	blockY := sy * src.N / fanout
	blockZ := sz * src.N / fanout
	span := src.N / fanout
	if span == 0 {
		span = 1
	}

	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				ox := blockX + minInt(x/2, span-1)
				oy := blockY + minInt(y/2, span-1)
				oz := blockZ + minInt(z/2, span-1)
				dst.Voxels[flat(n, x, y, z)] = src.Get(ox, oy, oz)
			}
		}
	}
	dst.TryCollapseSolid()
	return dst
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
