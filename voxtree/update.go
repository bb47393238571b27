package voxtree

import (
	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/palette"
)

type writeMode uint8

const (
	modeInsert writeMode = iota // overwrite; an all-empty entry is a no-op
	modeUpdate                  // merge onto whatever is already present
	modeClear                   // always write the empty sentinel
)

// Insert overwrites the voxel at pos with entry, interning its components.
// Inserting an entry with neither color nor data present is a documented
// no-op (it does not clear an existing voxel).
func (t *Tree) Insert(pos [3]uint32, entry palette.Entry) error {
	return t.write(pos, modeInsert, entry)
}

// Update merges entry onto whatever is already stored at pos, leaving any
// component entry does not provide untouched.
func (t *Tree) Update(pos [3]uint32, entry palette.Entry) error {
	return t.write(pos, modeUpdate, entry)
}

// Clear writes the empty sentinel at pos, unconditionally.
func (t *Tree) Clear(pos [3]uint32) error {
	return t.write(pos, modeClear, palette.Entry{})
}

func (t *Tree) write(pos [3]uint32, mode writeMode, entry palette.Entry) error {
	if !t.inBounds(pos[0], pos[1], pos[2]) {
		return &InvalidPositionError{X: pos[0], Y: pos[1], Z: pos[2], Size: t.size}
	}
	if mode == modeInsert && entry.IsAllEmpty() {
		return nil
	}

	path, sizes := t.descend(pos)
	leafKey := path[len(path)-1]
	n := t.store.Get(leafKey)

	origin := t.leafOrigin(pos)
	lx := int(pos[0] - origin[0])
	ly := int(pos[1] - origin[1])
	lz := int(pos[2] - origin[2])

	var newIdx palette.Index
	var err error
	switch mode {
	case modeClear:
		newIdx = palette.EmptyIndex
	default:
		cur := n.UniformBrick.Get(lx, ly, lz)
		if mode == modeUpdate {
			newIdx, err = t.palettes.Merge(cur, entry)
		} else {
			newIdx, err = t.palettes.Intern(entry)
		}
		if err != nil {
			return err
		}
	}

	n.UniformBrick.Set(lx, ly, lz, newIdx)
	t.markDirty(leafKey)
	t.propagateUp(path, sizes)
	return nil
}

// leafOrigin returns the global voxel coordinate of the brick-resolution
// node's (0,0,0) corner that contains pos.
func (t *Tree) leafOrigin(pos [3]uint32) [3]uint32 {
	b := t.brickDim
	return [3]uint32{(pos[0] / b) * b, (pos[1] / b) * b, (pos[2] / b) * b}
}

// descend walks from the root to the brick-resolution node containing pos,
// subdividing any UniformLeaf it passes through that is not already at
// brick resolution, and allocating Empty children as needed. It returns
// the full key path root..leaf inclusive (for propagateUp to walk back
// over) alongside each path entry's node edge length.
func (t *Tree) descend(pos [3]uint32) (path []uint32, sizes []uint32) {
	path = make([]uint32, 0, t.depth+1)
	sizes = make([]uint32, 0, t.depth+1)
	key := t.root
	path = append(path, key)
	sizes = append(sizes, t.size)

	ox, oy, oz := uint32(0), uint32(0), uint32(0)
	nodeSize := t.size

	for levelsDown := 0; levelsDown < t.depth; levelsDown++ {
		n := t.store.Get(key)
		fanout := levelFanout(nodeSize, t.brickDim)
		quarter := nodeSize / fanout
		sx := (pos[0] - ox) / quarter
		sy := (pos[1] - oy) / quarter
		sz := (pos[2] - oz) / quarter
		sectant := sectantOf(fanout, sx, sy, sz)

		if n.Kind == KindUniformLeaf {
			t.store.SubdivideLeafToNodes(key, sectant, int(fanout))
			n = t.store.Get(key)
		} else if n.Kind == KindEmpty {
			n.Kind = KindInternal
			n.Children = newEmptyChildren()
		}

		child := n.Children[sectant]
		if child == EmptyChild {
			if quarter == t.brickDim {
				child = t.store.Pool.Push(Node{Kind: KindUniformLeaf, UniformBrick: brick.Empty(int(t.brickDim))})
			} else {
				child = t.store.Pool.Push(newEmptyNode())
			}
			n.Children[sectant] = child
		}

		ox, oy, oz = ox+sx*quarter, oy+sy*quarter, oz+sz*quarter
		nodeSize = quarter
		key = child
		path = append(path, key)
		sizes = append(sizes, nodeSize)
	}

	// The node at path's end must be brick-resolution; if a prior write
	// left it Empty, materialize it so the caller can write directly.
	n := t.store.Get(key)
	if n.Kind == KindEmpty {
		n.Kind = KindUniformLeaf
		n.UniformBrick = brick.Empty(int(t.brickDim))
	}
	return path, sizes
}

// propagateUp recomputes occupancy bits, rebuilds each ancestor's MIP brick
// (spec 4.F post-processing step 3: "Call update_mip(node, bounds, pos)"),
// and, when AutoSimplify is set, collapses uniform subtrees, walking from
// the written leaf back to the root. sizes holds each path entry's node
// edge length, used to determine the child fanout (hence "is this node's
// occupancy full") at each ancestor.
func (t *Tree) propagateUp(path []uint32, sizes []uint32) {
	leafKey := path[len(path)-1]
	leaf := t.store.Get(leafKey)
	leaf.OccBits = brick.CalculateOccupiedBits(&leaf.UniformBrick)
	if leaf.UniformBrick.Kind == brick.KindParted {
		leaf.UniformBrick.TryCollapseSolid()
	}
	t.invalidateMip(leafKey)

	for i := len(path) - 2; i >= 0; i-- {
		parentKey := path[i]
		childKey := path[i+1]
		parent := t.store.Get(parentKey)

		childOcc := t.store.StoredOccupiedBits(childKey)
		if childOcc == 0 && t.childIsCollapsible(childKey) {
			t.store.Pool.Free(childKey)
			sectant := t.childSectantOf(parent, childKey, i)
			if sectant >= 0 {
				parent.Children[sectant] = EmptyChild
			}
		}

		bits := t.recomputeInternalOccupancy(parent)
		t.store.StoreOccupiedBits(parentKey, bits)
		t.markDirty(parentKey)

		if t.mipEnabled {
			// level 0 is the shallowest internal level above the bricks,
			// i.e. the immediate parent of the leaf at path index
			// t.depth-1; level increases toward the root.
			t.RecalculateMip(parentKey, (t.depth-1)-i)
		} else {
			t.invalidateMip(parentKey)
		}

		if t.AutoSimplify {
			fanout := levelFanout(sizes[i], t.brickDim)
			t.simplify(parentKey, fanout)
		}
	}
}

// childIsCollapsible reports whether an emptied child node can simply be
// freed (it has no grandchildren of its own to worry about).
func (t *Tree) childIsCollapsible(key uint32) bool {
	n := t.store.Get(key)
	if n.Kind == KindInternal {
		return !t.store.hasAnyChild(n)
	}
	return true
}

// childSectantOf finds which of parent's children slots holds childKey.
// The sectant is already known at each propagateUp step from descend's
// path, but recomputing it defensively here keeps propagateUp robust to
// future callers that synthesize a path differently.
func (t *Tree) childSectantOf(parent *Node, childKey uint32, _ int) int {
	for i, c := range parent.Children {
		if c == childKey {
			return i
		}
	}
	return -1
}

// recomputeInternalOccupancy derives an Internal node's 64-bit child
// presence mask from its current Children array.
func (t *Tree) recomputeInternalOccupancy(n *Node) uint64 {
	if n.Kind != KindInternal {
		return n.OccBits
	}
	var bits uint64
	for i, c := range n.Children {
		if c != EmptyChild {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// simplify collapses node key into a single UniformLeaf (or Empty) when
// *every* one of its fanout^3 children exists, is itself a UniformLeaf
// Solid with the same palette index (spec invariant 3: "If every child of
// an internal node exists, is Solid with the same palette index..."), or
// frees it to Empty when it has no occupancy at all (spec 4.F
// auto-simplify). It is a no-op for nodes that are already leaves, and a
// no-op whenever any sectant is absent even if the present children all
// agree — an absent child is an empty region, which is never equal to a
// non-empty solid color.
func (t *Tree) simplify(key uint32, fanout uint32) {
	n := t.store.Get(key)
	if n.Kind != KindInternal {
		return
	}
	if n.OccBits == 0 {
		n.Kind = KindEmpty
		n.Mip = brick.Brick{}
		return
	}

	count := int(fanout * fanout * fanout)
	var full uint64
	if count >= 64 {
		full = ^uint64(0)
	} else {
		full = (uint64(1) << uint(count)) - 1
	}
	if n.OccBits != full {
		return
	}

	var common *palette.Index
	uniform := true
	for i := 0; i < count; i++ {
		c := n.Children[i]
		if c == EmptyChild {
			uniform = false
			break
		}
		cn := t.store.Get(c)
		if cn.Kind != KindUniformLeaf || cn.UniformBrick.Kind != brick.KindSolid {
			uniform = false
			break
		}
		if common == nil {
			v := cn.UniformBrick.Solid
			common = &v
		} else if *common != cn.UniformBrick.Solid {
			uniform = false
			break
		}
	}
	if !uniform || common == nil {
		return
	}

	t.store.DeallocateChildrenOf(key)
	n.Kind = KindUniformLeaf
	n.Children = newEmptyChildren()
	n.UniformBrick = brick.NewSolid(int(t.brickDim), *common)
	n.OccBits = brick.CalculateOccupiedBits(&n.UniformBrick)
	// A UniformLeaf's content is already the single-color summary a MIP
	// would have computed, so it needs none of its own (matches
	// original_source/src/octree/update/mipmap.rs's update_mip, which
	// clears a UniformLeaf's MIP to Empty rather than sampling it).
	n.Mip = brick.Brick{}
}

// invalidateMip resets a node's cached MIP brick to Empty; nothing rebuilds
// it until RecalculateMip (mip.go) is called for that node. A failed or skipped rebuild
// leaves the MIP pointer invalidated rather than stale, per spec 4.G.
func (t *Tree) invalidateMip(key uint32) {
	n := t.store.Get(key)
	n.Mip = brick.Brick{}
}
