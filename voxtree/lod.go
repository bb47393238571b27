package voxtree

import (
	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/palette"
)

// InsertAtLOD overwrites every voxel in the aligned cube of edge lodSize
// containing pos with entry, without descending to per-voxel resolution —
// the whole cube is represented by a single uniform brick fill. lodSize
// must be a power of two; per this implementation's resolution of spec
// §9's open question on non-power-of-two or over-large LOD sizes (see
// DESIGN.md's "LOD size clamping", grounded on original_source's
// insert.rs target_bounds.size <= insert_size descent), lodSize is
// clamped only to [BrickDim, tree size] and then descendToLOD walks down
// until it reaches the largest node whose edge is <= the (clamped)
// lodSize — there is no fixed 2*BrickDim ceiling. A lodSize that falls
// strictly between two node sizes in this tree's (possibly mixed
// 64-way/8-way) level sequence is written as every node of the finer of
// the two sizes inside the aligned cube, so a single insert_at_lod call
// can overwrite several nodes (see spec §8 scenario 3).
func (t *Tree) InsertAtLOD(pos [3]uint32, lodSize uint32, entry palette.Entry) error {
	return t.writeAtLOD(pos, lodSize, modeInsert, entry)
}

// ClearAtLOD is InsertAtLOD's clearing counterpart: every voxel in the
// aligned cube is reset to the empty sentinel.
func (t *Tree) ClearAtLOD(pos [3]uint32, lodSize uint32) error {
	return t.writeAtLOD(pos, lodSize, modeClear, palette.Entry{})
}

func (t *Tree) writeAtLOD(pos [3]uint32, lodSize uint32, mode writeMode, entry palette.Entry) error {
	if !t.inBounds(pos[0], pos[1], pos[2]) {
		return &InvalidPositionError{X: pos[0], Y: pos[1], Z: pos[2], Size: t.size}
	}
	if lodSize == 0 || !isPowerOfTwo(lodSize) {
		return ErrInvalidLODSize
	}
	edge := lodSize
	if edge > t.size {
		edge = t.size
	}
	if edge < t.brickDim {
		edge = t.brickDim
	}

	// When edge is not a node size of this tree's level sequence, the
	// aligned cube is written as every node of the largest smaller size.
	step := t.size
	for step > edge && step > t.brickDim {
		step /= levelFanout(step, t.brickDim)
	}
	if k := edge / step; k > 1 {
		base := [3]uint32{(pos[0] / edge) * edge, (pos[1] / edge) * edge, (pos[2] / edge) * edge}
		for i := uint32(0); i < k*k*k; i++ {
			p := [3]uint32{base[0] + (i%k)*step, base[1] + (i/k%k)*step, base[2] + (i/(k*k))*step}
			if err := t.writeAtLOD(p, step, mode, entry); err != nil {
				return err
			}
		}
		return nil
	}

	var idx palette.Index
	var err error
	if mode == modeClear {
		idx = palette.EmptyIndex
	} else {
		if entry.IsAllEmpty() {
			return nil
		}
		idx, err = t.palettes.Intern(entry)
		if err != nil {
			return err
		}
	}

	alignedX := (pos[0] / edge) * edge
	alignedY := (pos[1] / edge) * edge
	alignedZ := (pos[2] / edge) * edge

	path, sizes, ok := t.descendToLOD([3]uint32{alignedX, alignedY, alignedZ}, edge)
	if !ok {
		return nil
	}

	leafKey := path[len(path)-1]
	n := t.store.Get(leafKey)
	t.store.DeallocateChildrenOf(leafKey)
	if idx.IsEmpty() {
		n.Kind = KindEmpty
		n.UniformBrick = brick.Brick{}
		n.OccBits = 0
	} else {
		n.Kind = KindUniformLeaf
		n.UniformBrick = brick.NewSolid(int(t.brickDim), idx)
		n.OccBits = brick.CalculateOccupiedBits(&n.UniformBrick)
	}
	n.Children = newEmptyChildren()
	t.markDirty(leafKey)
	t.propagateUp(path, sizes)
	return nil
}

// descendToLOD walks from the root to the node whose edge length equals
// edge, subdividing UniformLeaf nodes it must pass through and allocating
// Empty children as needed, exactly like descend but stopping `edge`
// voxels early rather than at brick resolution. edge is guaranteed (by
// writeAtLOD's clamp) to be a node size this tree's recursion actually
// produces: at least brickDim, since insert_at_lod/clear_at_lod operate at
// node granularity, not inside a single brick.
func (t *Tree) descendToLOD(alignedPos [3]uint32, edge uint32) (path []uint32, sizes []uint32, ok bool) {
	path = make([]uint32, 0, t.depth+1)
	sizes = make([]uint32, 0, t.depth+1)
	key := t.root
	path = append(path, key)
	sizes = append(sizes, t.size)

	ox, oy, oz := uint32(0), uint32(0), uint32(0)
	nodeSize := t.size

	for nodeSize > edge && nodeSize > t.brickDim {
		n := t.store.Get(key)
		fanout := levelFanout(nodeSize, t.brickDim)
		quarter := nodeSize / fanout
		sx := (alignedPos[0] - ox) / quarter
		sy := (alignedPos[1] - oy) / quarter
		sz := (alignedPos[2] - oz) / quarter
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
			child = t.store.Pool.Push(newEmptyNode())
			n.Children[sectant] = child
		}

		ox, oy, oz = ox+sx*quarter, oy+sy*quarter, oz+sz*quarter
		nodeSize = quarter
		key = child
		path = append(path, key)
		sizes = append(sizes, nodeSize)
	}
	return path, sizes, true
}
