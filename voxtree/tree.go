package voxtree

import (
	"errors"
	"fmt"
	"math/bits"

	set3 "github.com/TomTonic/Set3"

	"github.com/voxel64/tree64/palette"
)

var (
	ErrInvalidSize         = errors.New("voxtree: size must be a power of two divisible by brick dimension")
	ErrInvalidBrickDim     = errors.New("voxtree: brick dimension must be a power of two in [1,32]")
	ErrInvalidLODSize      = errors.New("voxtree: lod size must be a positive power of two")
)

// InvalidPositionError is returned by any operation given coordinates
// outside [0, Size)^3.
type InvalidPositionError struct {
	X, Y, Z uint32
	Size    uint32
}

func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("voxtree: position (%d,%d,%d) outside [0,%d)^3", e.X, e.Y, e.Z, e.Size)
}

func isPowerOfTwo(v uint32) bool { return v != 0 && v&(v-1) == 0 }

// GetKind tags the four shapes a query result can take (spec §6 get()).
type GetKind uint8

const (
	GetEmpty GetKind = iota
	GetVisual
	GetInformative
	GetComplex
)

// GetResult is the decoded form of a palette.Index returned by Tree.Get.
type GetResult struct {
	Kind  GetKind
	Color palette.Color
	Data  uint32
}

// MipMethod selects one of the five MIP resampling strategies (spec 4.G).
type MipMethod uint8

const (
	MipBoxFilter MipMethod = iota
	MipPointFilter
	MipPointFilterBD
	MipPosterize
	MipPosterizeBD
)

// MipLevelConfig is the per-level method/epsilon pair set by
// set_mip_strategy.
type MipLevelConfig struct {
	Method  MipMethod
	Epsilon float32
}

// Tree is the public 64-tree handle: spec §6's new/insert/update/clear/
// insert_at_lod/clear_at_lod/get/get_by_ray/auto_simplify/set_mip_strategy/
// recalculate_mip.
type Tree struct {
	size     uint32
	brickDim uint32
	depth    int // number of levels from root to brick: the 4-way levels plus one 2-way level when size/brickDim is an odd power of two

	store    *Store
	palettes *palette.Palettes
	root     uint32

	AutoSimplify bool

	mipEnabled bool
	mipLevels  []MipLevelConfig // index 0 = the internal level just above the bricks

	// dirtySet tracks nodes touched since the last DrainDirty, for the GPU
	// streaming protocol to diff against its resident cache once per frame.
	// Grounded on XBrickMap.DirtySectors/DirtyBricks in the teacher, which
	// serve the same "already queued" membership check; here a Set3 takes
	// the place of the teacher's bare map[key]bool, and dirtyOrder is kept
	// alongside it for the stable iteration order frame-budgeted upload
	// also needs.
	dirtySet   *set3.Set3[uint32]
	dirtyOrder []uint32
}

func (t *Tree) markDirty(key uint32) {
	if t.dirtySet.Contains(key) {
		return
	}
	t.dirtySet.Add(key)
	t.dirtyOrder = append(t.dirtyOrder, key)
}

// New constructs a tree over a cube of edge `size` voxels, partitioned down
// to bricks of edge `brickDim`. Both must be powers of two and size must be
// divisible by brickDim (spec §6's InvalidSize/InvalidBrickDimension
// preconditions). The recursion from root to brick prefers a 4x4x4 sectant
// split per level (spec §9 DESIGN NOTES: 64-way preferred for raytracing
// locality); when size/brickDim is an odd power of two, the single level
// that would otherwise split unevenly instead does a 2x2x2 octant split —
// the same "legacy" subdivision factor spec §9 says a reimplementation may
// carry alongside 64-way. See levelFanout and DESIGN.md.
func New(size, brickDim uint32) (*Tree, error) {
	if brickDim == 0 || brickDim > 32 || !isPowerOfTwo(brickDim) {
		return nil, ErrInvalidBrickDim
	}
	if size == 0 || !isPowerOfTwo(size) || size%brickDim != 0 {
		return nil, ErrInvalidSize
	}
	ratio := size / brickDim
	ratioBits := bits.TrailingZeros32(ratio)
	depth := (ratioBits + 1) / 2

	store := NewStore(int(brickDim))
	t := &Tree{
		size:       size,
		brickDim:   brickDim,
		depth:      depth,
		store:      store,
		palettes:   palette.New(),
		root:       store.NewRoot(),
		mipEnabled: true,
		mipLevels:  make([]MipLevelConfig, depth+1),
		dirtySet:   set3.Empty[uint32](),
	}
	return t, nil
}

func (t *Tree) Size() uint32            { return t.size }
func (t *Tree) BrickDim() uint32        { return t.brickDim }
func (t *Tree) Depth() int              { return t.depth }
func (t *Tree) Root() uint32            { return t.root }
func (t *Tree) Store() *Store           { return t.store }
func (t *Tree) Palettes() *palette.Palettes { return t.palettes }

func (t *Tree) inBounds(x, y, z uint32) bool {
	return x < t.size && y < t.size && z < t.size
}

// DrainDirty returns every node key touched since the last DrainDirty call,
// in the order they were first touched, and clears the tracking set.
func (t *Tree) DrainDirty() []uint32 {
	out := t.dirtyOrder
	t.dirtySet = set3.Empty[uint32]()
	t.dirtyOrder = nil
	return out
}

// levelFanout returns the per-axis division factor (4 or 2) used when
// descending through a node of the given edge length toward brickDim: a
// full 4x4x4 sectant split whenever the remaining ratio supports it, or a
// 2x2x2 octant split for the single odd level near the bottom when it does
// not (see New's doc comment). Only ever called with nodeSize > brickDim.
func levelFanout(nodeSize, brickDim uint32) uint32 {
	if nodeSize/brickDim >= 4 {
		return 4
	}
	return 2
}

// sectantOf computes the flat child index (0..fanout^3-1) and the
// per-axis indices for a node-local offset, given the per-axis fanout at
// this level.
func sectantOf(fanout, sx, sy, sz uint32) int {
	return int(sx + fanout*sy + fanout*fanout*sz)
}

// FanoutAt exposes levelFanout to other packages (the raytracer) that walk
// node sizes computed from BrickDim()/Size() rather than from inside this
// package.
func (t *Tree) FanoutAt(nodeSize uint32) uint32 { return levelFanout(nodeSize, t.brickDim) }

// nodeSizeAtDepthFromRoot returns a node's edge length `levelsDown`
// fanout-aware splits below the root (0 = root).
func (t *Tree) nodeSizeAtDepthFromRoot(levelsDown int) uint32 {
	size := t.size
	for i := 0; i < levelsDown && size > t.brickDim; i++ {
		size /= levelFanout(size, t.brickDim)
	}
	return size
}

// Get returns the decoded voxel at pos, or GetEmpty (with Kind zero value)
// if pos is empty or out of bounds-adjacent holes in the tree. It never
// errors; out-of-range coordinates simply read as Empty, since get() has
// no failure mode in spec §6.
func (t *Tree) Get(pos [3]uint32) GetResult {
	if !t.inBounds(pos[0], pos[1], pos[2]) {
		return GetResult{Kind: GetEmpty}
	}
	idx := t.readIndex(pos)
	return t.decode(idx)
}

// DecodeIndex exposes the raw-index-to-GetResult decoding for callers (the
// raytracer) that retrieve a palette.Index directly from a brick rather
// than through Get.
func (t *Tree) DecodeIndex(idx palette.Index) GetResult {
	return t.decode(idx)
}

func (t *Tree) decode(idx palette.Index) GetResult {
	if idx.IsEmpty() {
		return GetResult{Kind: GetEmpty}
	}
	hasColor := idx.Color != palette.AbsentIndex
	hasData := idx.Data != palette.AbsentIndex
	var res GetResult
	if hasColor {
		c, _ := t.palettes.Colors.Lookup(idx.Color)
		res.Color = c
	}
	if hasData {
		d, _ := t.palettes.Data.Lookup(idx.Data)
		res.Data = d
	}
	switch {
	case hasColor && hasData:
		res.Kind = GetComplex
	case hasColor:
		res.Kind = GetVisual
	case hasData:
		res.Kind = GetInformative
	default:
		res.Kind = GetEmpty
	}
	return res
}

// readIndex descends the tree to find the raw palette.Index stored at pos,
// returning palette.EmptyIndex for any unpopulated region.
func (t *Tree) readIndex(pos [3]uint32) palette.Index {
	key := t.root
	ox, oy, oz := uint32(0), uint32(0), uint32(0)
	nodeSize := t.size

	for levelsDown := 0; levelsDown < t.depth; levelsDown++ {
		n := t.store.Get(key)
		switch n.Kind {
		case KindEmpty:
			return palette.EmptyIndex
		case KindUniformLeaf:
			lx, ly, lz := (pos[0]-ox)%nodeSize, (pos[1]-oy)%nodeSize, (pos[2]-oz)%nodeSize
			return n.UniformBrick.Get(int(lx)%n.UniformBrick.N, int(ly)%n.UniformBrick.N, int(lz)%n.UniformBrick.N)
		default: // Internal
			fanout := levelFanout(nodeSize, t.brickDim)
			quarter := nodeSize / fanout
			sx := (pos[0] - ox) / quarter
			sy := (pos[1] - oy) / quarter
			sz := (pos[2] - oz) / quarter
			sectant := sectantOf(fanout, sx, sy, sz)
			child := n.Children[sectant]
			if child == EmptyChild {
				return palette.EmptyIndex
			}
			ox, oy, oz = ox+sx*quarter, oy+sy*quarter, oz+sz*quarter
			nodeSize = quarter
			key = child
		}
	}

	// Reached brick-level node (nodeSize == brickDim): must be UniformLeaf.
	n := t.store.Get(key)
	if n.Kind == KindEmpty {
		return palette.EmptyIndex
	}
	lx, ly, lz := pos[0]-ox, pos[1]-oy, pos[2]-oz
	return n.UniformBrick.Get(int(lx), int(ly), int(lz))
}
