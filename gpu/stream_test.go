package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxel64/tree64/palette"
	"github.com/voxel64/tree64/voxtree"
)

func insertColor(t *testing.T, tr *voxtree.Tree, pos [3]uint32, v uint8) {
	t.Helper()
	err := tr.Insert(pos, palette.Entry{Color: palette.Color{v, v, v, 255}, HasColor: true})
	require.NoError(t, err)
}

func TestProcessRequestsEmptyIsOk(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)

	processed, ok := p.ProcessRequests(nil)
	assert.Equal(t, 0, processed)
	assert.True(t, ok)
}

func TestProcessRequestsUnknownParentReportsLivenessFailure(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)

	// No node has ever been admitted, so every cache index is unknown.
	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: 0, Sectant: 0}})
	assert.Equal(t, 0, processed)
	assert.False(t, ok, "a frame with no sentinel no-ops and no progress must fail liveness")
}

func TestResolveAdmitsChildAndMarksChildrenDirty(t *testing.T) {
	tr := mustTree(t, 8, 1)
	insertColor(t, tr, [3]uint32{4, 4, 4}, 9)

	root := tr.Store().Get(tr.Root())
	sectant := -1
	for s, ck := range root.Children {
		if ck != voxtree.EmptyChild {
			sectant = s
			break
		}
	}
	require.GreaterOrEqual(t, sectant, 0, "inserting a voxel into an empty tree must populate a root child")
	childKey := root.Children[sectant]

	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())

	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: sectant}})
	require.True(t, ok)
	assert.Equal(t, 1, processed)

	_, resident := c.NodeKeyToIndex[childKey]
	assert.True(t, resident, "resolving a child request must admit the child node")

	result := p.DrainFrame()
	assert.Contains(t, result.ChildIndices, rootIdx, "admitting a new child must dirty the parent's children entry")
}

func TestResolveChildAlreadyResidentIsNoOp(t *testing.T) {
	tr := mustTree(t, 8, 1)
	insertColor(t, tr, [3]uint32{4, 4, 4}, 9)

	root := tr.Store().Get(tr.Root())
	sectant := -1
	for s, ck := range root.Children {
		if ck != voxtree.EmptyChild {
			sectant = s
			break
		}
	}

	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())
	p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: sectant}})

	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: sectant}})
	assert.Equal(t, 0, processed)
	assert.False(t, ok, "re-requesting an already-resident child makes no progress")
}

func TestResolveEmptyChildSectantIsNoOp(t *testing.T) {
	tr := mustTree(t, 8, 1)
	insertColor(t, tr, [3]uint32{4, 4, 4}, 9)

	root := tr.Store().Get(tr.Root())
	emptySectant := -1
	for s, ck := range root.Children {
		if ck == voxtree.EmptyChild {
			emptySectant = s
			break
		}
	}
	require.GreaterOrEqual(t, emptySectant, 0, "a single-voxel insert must leave most root sectants empty")

	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())

	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: emptySectant}})
	assert.Equal(t, 0, processed)
	assert.False(t, ok)
}

func TestResolveOOBOctantAdmitsMipBrick(t *testing.T) {
	tr := mustTree(t, 8, 1)
	insertColor(t, tr, [3]uint32{4, 4, 4}, 9)

	c := NewCache(tr, 4, 1)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())

	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: OOBOctant}})
	require.True(t, ok)
	assert.Equal(t, 1, processed)

	owner, found := c.BrickOwnerAt(0)
	require.True(t, found)
	assert.Equal(t, BrickOwner{Kind: MIPOf, NodeKey: tr.Root()}, owner)
}

func TestResolveUniformLeafPartedBrickIsAdmitted(t *testing.T) {
	// A tree whose size equals its brick dimension has no internal levels:
	// the root is a brick-resolution leaf directly, so a single voxel write
	// leaves it KindUniformLeaf with a Parted (not fully uniform) brick.
	tr := mustTree(t, 4, 4)
	insertColor(t, tr, [3]uint32{0, 0, 0}, 5)

	c := NewCache(tr, 4, 1)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())

	processed, ok := p.ProcessRequests([]NodeRequest{{ParentCacheIndex: rootIdx, Sectant: 0}})
	require.True(t, ok)
	assert.Equal(t, 1, processed)

	owner, found := c.BrickOwnerAt(0)
	require.True(t, found)
	assert.Equal(t, BrickOwner{Kind: ChildOf, NodeKey: tr.Root(), Sectant: 0}, owner)
}

func TestDrainFrameReportsPaletteGrowthOnce(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)

	insertColor(t, tr, [3]uint32{1, 1, 1}, 3)
	assert.True(t, p.DrainFrame().PaletteGrew, "first drain after interning a new color must report growth")
	assert.False(t, p.DrainFrame().PaletteGrew, "second consecutive drain with no new colors must not report growth")
}

func TestReloadViewAdmitsRootWhenAbsent(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)

	p.ReloadView()
	_, resident := c.NodeKeyToIndex[tr.Root()]
	assert.True(t, resident, "ReloadView on a cold cache must admit the root")
}

func TestReloadViewDirtiesResidentRoot(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := NewCache(tr, 4, 4)
	p := NewProtocol(tr, c)
	rootIdx := c.AddNode(tr.Root())
	c.DrainDirty() // clear the dirty bits set by the initial admission

	p.ReloadView()
	result := p.DrainFrame()
	assert.Equal(t, []int{rootIdx}, result.MetadataIndices)
	assert.Equal(t, []int{rootIdx}, result.ChildIndices)
}
