package voxtree

import (
	"fmt"

	"github.com/voxel64/tree64/brick"
)

// CheckInvariants walks the whole tree and verifies the structural
// invariants spec §3 and §8 name: occupancy bits agree with recomputed
// occupancy, every Children slot is either EmptyChild or a key the pool
// actually holds, and every UniformLeaf's brick dimension matches the
// tree's configured BrickDim. It is not called from any non-test code path
// — spec §7 only requires these as "debug-only assertions", and Go has no
// build-stripped assert macro, so this is the explicit opt-in equivalent,
// meant to be called from tests after a sequence of mutations.
func (t *Tree) CheckInvariants() error {
	return t.checkNode(t.root, 0)
}

func (t *Tree) checkNode(key uint32, levelsDown int) error {
	if !t.store.Pool.KeyIsValid(key) {
		return fmt.Errorf("voxtree: key %d is not a valid pool slot", key)
	}
	n := t.store.Get(key)

	switch n.Kind {
	case KindEmpty:
		if n.OccBits != 0 {
			return fmt.Errorf("voxtree: node %d is Empty but OccBits=%#x", key, n.OccBits)
		}
	case KindUniformLeaf:
		want := brickOccupiedBits(n)
		if n.OccBits != want {
			return fmt.Errorf("voxtree: node %d UniformLeaf OccBits=%#x, recomputed %#x", key, n.OccBits, want)
		}
		if n.UniformBrick.N != int(t.brickDim) && n.UniformBrick.N != 0 {
			return fmt.Errorf("voxtree: node %d brick dim %d != tree brick dim %d", key, n.UniformBrick.N, t.brickDim)
		}
	case KindInternal:
		nodeSize := t.nodeSizeAtDepthFromRoot(levelsDown)
		fanout := levelFanout(nodeSize, t.brickDim)
		count := int(fanout * fanout * fanout)
		var recomputed uint64
		for i := 0; i < count; i++ {
			c := n.Children[i]
			if c == EmptyChild {
				continue
			}
			recomputed |= 1 << uint(i)
			if err := t.checkNode(c, levelsDown+1); err != nil {
				return err
			}
		}
		for i := count; i < 64; i++ {
			if n.Children[i] != EmptyChild {
				return fmt.Errorf("voxtree: node %d has a populated child at sectant %d beyond its %d-way fanout", key, i, count)
			}
		}
		if n.OccBits != recomputed {
			return fmt.Errorf("voxtree: node %d Internal OccBits=%#x, recomputed from children %#x", key, n.OccBits, recomputed)
		}
	}
	return nil
}

// brickOccupiedBits recomputes a UniformLeaf's occupancy mask via
// brick.CalculateOccupiedBits, guarding the zero-value UniformBrick a node
// that was never written a real brick holds (N==0 must read as 0 rather
// than as an uninitialized Parted brick).
func brickOccupiedBits(n *Node) uint64 {
	if n.UniformBrick.N == 0 {
		return 0
	}
	b := n.UniformBrick
	return brick.CalculateOccupiedBits(&b)
}
