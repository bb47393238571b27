package gpu

import (
	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/voxtree"
)

// OOBOctant is the sentinel sectant value meaning "MIP required" in a node
// request, per spec 4.J.
const OOBOctant = 255

// NodeRequest is one decoded entry from the device-originated request ring:
// a parent cache index plus the child sectant (or OOBOctant for a MIP) the
// GPU needs resolved. The wire format packs these into one 32-bit word
// with the sectant in the high byte; ProcessRequests takes requests already
// decoded, and nothing in this package decodes that packing.
type NodeRequest struct {
	ParentCacheIndex int
	Sectant          int
}

// FrameResult is what one DrainFrame call produces: the dirty cache index
// ranges for each buffer region, in the write order spec 5 mandates
// (metadata -> children/ocbits/MIP -> voxel bricks -> palette tail ->
// node_requests reset -> viewport uniform). PaletteGrew signals whether the
// caller should also append the color-palette tail.
type FrameResult struct {
	MetadataIndices []int
	ChildIndices    []int
	VoxelIndices    []int
	PaletteGrew     bool
}

// Protocol ties a Cache to the voxtree.Tree it mirrors, implementing the
// per-frame request-ring drain (spec 4.J).
type Protocol struct {
	Cache *Cache
	Tree  *voxtree.Tree

	paletteTailAtFrameStart int
}

func NewProtocol(tree *voxtree.Tree, cache *Cache) *Protocol {
	return &Protocol{Tree: tree, Cache: cache}
}

// ProcessRequests resolves each request against the cache, admitting nodes
// and bricks as needed, and reports a liveness failure (ok == false) when
// the frame carried at least one request and none of them resolved. How far
// the CLOCK advanced during the frame is not measured and plays no part in
// the result.
func (p *Protocol) ProcessRequests(requests []NodeRequest) (processed int, ok bool) {
	for _, req := range requests {
		if p.resolve(req) {
			processed++
		}
	}
	if len(requests) > 0 && processed == 0 {
		// No request was a true no-op (an absent parent); the cache made
		// no progress at all this frame.
		ok = false
		return
	}
	ok = true
	return
}

func (p *Protocol) resolve(req NodeRequest) bool {
	parentKey, found := p.Cache.IndexToNodeKey[req.ParentCacheIndex]
	if !found {
		return false
	}
	parentNode := p.Tree.Store().Get(parentKey)

	if req.Sectant == OOBOctant {
		p.Cache.AddBrick(BrickOwner{Kind: MIPOf, NodeKey: parentKey})
		p.Cache.dirtyMetadata.Add(req.ParentCacheIndex)
		return true
	}

	switch parentNode.Kind {
	case voxtree.KindInternal:
		childKey := parentNode.Children[req.Sectant]
		if childKey == voxtree.EmptyChild {
			return false
		}
		if _, resident := p.Cache.NodeKeyToIndex[childKey]; resident {
			return false
		}
		p.Cache.AddNode(childKey)
		p.Cache.dirtyChildren.Add(req.ParentCacheIndex)
		return true
	case voxtree.KindUniformLeaf:
		if parentNode.UniformBrick.Kind == brick.KindParted {
			owner := BrickOwner{Kind: ChildOf, NodeKey: parentKey, Sectant: 0}
			p.Cache.AddBrick(owner)
			p.Cache.dirtyChildren.Add(req.ParentCacheIndex)
			return true
		}
	}
	return false
}

// DrainFrame collects this frame's dirty ranges from the cache in the
// mandated write order and reports whether the color palette grew since
// the last drain.
func (p *Protocol) DrainFrame() FrameResult {
	metadata, children, voxels := p.Cache.DrainDirty()
	grew := p.Tree.Palettes().Colors.Len() > p.paletteTailAtFrameStart
	p.paletteTailAtFrameStart = p.Tree.Palettes().Colors.Len()
	return FrameResult{
		MetadataIndices: metadata,
		ChildIndices:    children,
		VoxelIndices:    voxels,
		PaletteGrew:     grew,
	}
}

// ReloadView re-seeds the root for the "view reload" case in spec 4.J
// step 4: it admits the root if it is not resident, else marks the root's
// metadata and children dirty. Cached children and MIP bricks of other
// resident nodes are left in place.
func (p *Protocol) ReloadView() {
	root := p.Tree.Root()
	if _, resident := p.Cache.NodeKeyToIndex[root]; !resident {
		p.Cache.AddNode(root)
		return
	}
	idx := p.Cache.NodeKeyToIndex[root]
	p.Cache.dirtyMetadata.Add(idx)
	p.Cache.dirtyChildren.Add(idx)
}
