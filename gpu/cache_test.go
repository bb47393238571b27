package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxel64/tree64/voxtree"
)

func mustTree(t *testing.T, size, brickDim uint32) *voxtree.Tree {
	t.Helper()
	tr, err := voxtree.New(size, brickDim)
	require.NoError(t, err)
	return tr
}

func TestAddNodeIsIdempotentForResidentKey(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)

	idx1 := c.AddNode(1)
	idx2 := c.AddNode(1)
	assert.Equal(t, idx1, idx2, "re-adding an already-resident node must return its existing index")
}

func TestAddNodeEvictsWhenFull(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 2, 2)

	c.AddNode(1)
	c.AddNode(2)
	c.AddNode(3) // cache capacity is 2: this must evict rather than grow.

	assert.LessOrEqual(t, len(c.NodeKeyToIndex), 2, "cache must never exceed its configured node capacity")
	_, resident3 := c.NodeKeyToIndex[3]
	assert.True(t, resident3, "the just-admitted node must always be resident")
}

func TestTouchProtectsFromEvictionAcrossSweeps(t *testing.T) {
	// With a 3-slot cache: admit A,B,C (all get the reference bit set).
	// Admitting D forces one full CLOCK sweep, which clears every bit and
	// evicts A (the first slot visited), leaving B and C's bits cleared
	// but still resident. Touching B before the next admission should
	// spare it; C (never touched since being cleared) should be evicted
	// instead.
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 3, 3)

	c.AddNode(1) // A
	c.AddNode(2) // B
	c.AddNode(3) // C
	c.AddNode(4) // D: evicts A

	_, aResident := c.NodeKeyToIndex[1]
	assert.False(t, aResident, "A should be evicted by the first full sweep")

	c.Touch(2) // protect B

	c.AddNode(5) // E: should evict C, not B

	_, bResident := c.NodeKeyToIndex[2]
	_, cResident := c.NodeKeyToIndex[3]
	assert.True(t, bResident, "touched node B must survive the next sweep")
	assert.False(t, cResident, "untouched node C must be evicted instead of B")
}

func TestAddBrickReadoptsHintedSlotWithoutReupload(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 2)

	nodeKey := uint32(7)
	c.AddNode(nodeKey)
	owner := BrickOwner{Kind: ChildOf, NodeKey: nodeKey, Sectant: 0}

	idx1, needsUpload1 := c.AddBrick(owner)
	assert.True(t, needsUpload1, "first admission of a brick must require an upload")

	c.evictNode(c.NodeKeyToIndex[nodeKey], nodeKey) // orphans the brick, hinting its slot

	idx2, needsUpload2 := c.AddBrick(owner)
	assert.Equal(t, idx1, idx2, "re-adopting a hinted, untouched slot must reuse its index")
	assert.False(t, needsUpload2, "re-adopting a hinted slot must not require a re-upload")
}

func TestDrainDirtyClearsTrackingSets(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)

	c.AddNode(1)
	metadata, children, voxels := c.DrainDirty()
	assert.NotEmpty(t, metadata, "adding a node must dirty its metadata slot")
	assert.NotEmpty(t, children)
	assert.Empty(t, voxels, "no brick was admitted, so the voxel dirty set must be empty")

	metadata2, children2, voxels2 := c.DrainDirty()
	assert.Empty(t, metadata2, "DrainDirty must clear the tracking sets")
	assert.Empty(t, children2)
	assert.Empty(t, voxels2)
}

func TestBrickOwnerAtReportsOccupiedSlotsOnly(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 2)
	nodeKey := uint32(1)
	owner := BrickOwner{Kind: ChildOf, NodeKey: nodeKey, Sectant: 0}
	idx, _ := c.AddBrick(owner)

	got, ok := c.BrickOwnerAt(idx)
	assert.True(t, ok)
	assert.Equal(t, owner, got)

	_, ok = c.BrickOwnerAt((idx + 1) % 2)
	assert.False(t, ok, "an unoccupied slot must report not-found")
}
