// Package voxtree implements the 64-tree node store (spec 4.E), the
// insert/update/clear update engine with auto-simplification (4.F), and
// the MIP pyramid (4.G). It is grounded on voxelrt/rt/volume/xbrickmap.go:
// the teacher's XBrickMap is a flat two-level sector/brick hash map; this
// package generalizes its bit-packed occupancy and brick-indirection
// patterns into a genuine recursive sparse tree with up to 64 children per
// internal node, which the spec requires and the teacher's flat structure
// does not provide.
package voxtree

import (
	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/pool"
)

// Kind tags which of the three node variants a record holds.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindInternal
	KindUniformLeaf
)

// EmptyChild is the sentinel stored in Children for an absent child,
// matching pool.EmptyMarker (spec's empty_marker = 0xFFFFFFFF).
const EmptyChild = pool.EmptyMarker

// Node is one tree record. OccBits plays the dual role the spec's "Node
// connection" describes: for KindInternal, bit i records whether child
// sectant i's subtree is non-empty (spec invariant 2); for KindUniformLeaf
// it is the brick's 4x4x4 occupancy-bitmap (spec invariant 1) computed by
// brick.CalculateOccupiedBits. Children is only meaningful for
// KindInternal; UniformBrick only for KindUniformLeaf. The spec's separate
// "Leaf" variant (bricks embedded directly one level above brick
// resolution, addressable per sectant without a child node allocation
// each) is folded into KindInternal-over-UniformLeaf-children here:
// requesting sectant i's brick costs a full child node/cache slot instead
// of an embedded array entry. This is NOT behaviorally free — see
// DESIGN.md's "Leaf node kind (accepted representational gap)" for the
// worked resident-cache-slot-cost counter-example and the corresponding
// permanently-zero GPU metadata bits 16-31.
type Node struct {
	Kind         Kind
	OccBits      uint64
	Children     [64]uint32
	UniformBrick brick.Brick
	Mip          brick.Brick
}

func newEmptyChildren() [64]uint32 {
	var c [64]uint32
	for i := range c {
		c[i] = EmptyChild
	}
	return c
}

func newEmptyNode() Node {
	return Node{Kind: KindEmpty, Children: newEmptyChildren()}
}

// Store owns the node pool and exposes the occupancy-bit and subdivision
// contracts spec 4.E names directly (stored_occupied_bits,
// store_occupied_bits, deallocate_children_of, subdivide_leaf_to_nodes).
type Store struct {
	Pool     *pool.Pool[Node]
	BrickDim int
}

func NewStore(brickDim int) *Store {
	return &Store{Pool: pool.New[Node](), BrickDim: brickDim}
}

// NewRoot allocates a fresh Empty node and returns its key, for Tree
// construction.
func (s *Store) NewRoot() uint32 {
	return s.Pool.Push(newEmptyNode())
}

func (s *Store) Get(key uint32) *Node {
	return s.Pool.MustGet(key)
}

// StoredOccupiedBits returns the 64-bit occupancy mask for any node kind.
func (s *Store) StoredOccupiedBits(key uint32) uint64 {
	return s.Get(key).OccBits
}

// StoreOccupiedBits writes bits into node key, upgrading Empty->Internal
// when bits != 0 (a node with newly-allocated children but not yet any
// brick content) or collapsing to Empty when bits == 0 and the node has no
// children of its own (spec 4.E: "collapses to Empty otherwise").
func (s *Store) StoreOccupiedBits(key uint32, bits uint64) {
	n := s.Get(key)
	n.OccBits = bits
	if bits == 0 {
		if n.Kind == KindInternal && !s.hasAnyChild(n) {
			n.Kind = KindEmpty
		} else if n.Kind == KindUniformLeaf {
			n.Kind = KindEmpty
			n.UniformBrick = brick.Brick{}
		}
	} else if n.Kind == KindEmpty {
		n.Kind = KindInternal
	}
}

func (s *Store) hasAnyChild(n *Node) bool {
	if n.Kind != KindInternal {
		return false
	}
	for _, c := range n.Children {
		if c != EmptyChild {
			return true
		}
	}
	return false
}

// DeallocateChildrenOf recursively frees the subtree rooted at key without
// freeing key itself, mirroring the teacher's slot-freeing in
// XBrickMap.SetVoxel (FreeAtlasSlot/delete(x.Sectors, ...)) generalized to
// a recursive tree.
func (s *Store) DeallocateChildrenOf(key uint32) {
	n := s.Get(key)
	if n.Kind == KindInternal {
		for i, c := range n.Children {
			if c == EmptyChild {
				continue
			}
			s.DeallocateChildrenOf(c)
			s.Pool.Free(c)
			n.Children[i] = EmptyChild
		}
	}
}

// SubdivideLeafToNodes turns leaf node key into an Internal node whose
// fanout^3 child slots get new UniformLeaf nodes carrying the current brick
// content projected into each sub-region (spec 4.E); a slot whose projected
// brick is empty is left without a child. fanout is 4 for an
// ordinary sectant split or 2 for the octant split used on the one odd
// level near the bottom when size/brickDim is an odd power of two (see
// Tree.New). targetSectant is guaranteed to have an allocated child
// afterward. When the leaf held a Parted brick, each child gets the 2x
// downsample described in spec §9 via brick.Downsample2x; Solid/Empty
// leaves simply replicate.
func (s *Store) SubdivideLeafToNodes(key uint32, targetSectant int, fanout int) {
	n := s.Get(key)
	var srcBrick *brick.Brick
	if n.Kind == KindUniformLeaf {
		srcBrick = &n.UniformBrick
	}

	children := newEmptyChildren()
	count := fanout * fanout * fanout
	for i := 0; i < count; i++ {
		var childBrick brick.Brick
		if srcBrick == nil || srcBrick.IsEmpty() {
			childBrick = brick.Empty(s.BrickDim)
		} else if srcBrick.Kind == brick.KindSolid {
			childBrick = brick.NewSolid(s.BrickDim, srcBrick.Solid)
		} else {
			childBrick = brick.Downsample2x(srcBrick, i, s.BrickDim, fanout)
		}
		if childBrick.IsEmpty() {
			continue
		}
		childKey := s.Pool.Push(Node{
			Kind:         KindUniformLeaf,
			OccBits:      brick.CalculateOccupiedBits(&childBrick),
			Children:     newEmptyChildren(),
			UniformBrick: childBrick,
		})
		children[i] = childKey
	}

	n.Kind = KindInternal
	n.Children = children
	n.UniformBrick = brick.Brick{}
	if children[targetSectant] == EmptyChild {
		s.ensureChild(n, targetSectant)
	}
}

func (s *Store) ensureChild(n *Node, sectant int) {
	childKey := s.Pool.Push(Node{Kind: KindEmpty, Children: newEmptyChildren()})
	n.Children[sectant] = childKey
}
