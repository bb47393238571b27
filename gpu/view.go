package gpu

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/voxtree"
)

// ViewID uniquely identifies a GPU view, the same way mod_assets.go hands
// out an AssetId: a fresh random identifier rather than anything derived
// from the view's contents.
type ViewID string

func newViewID() ViewID { return ViewID(uuid.NewString()) }

// ErrWorkingSetTooLarge is returned by View.ProcessRequests (via the streaming
// protocol's liveness check) when the node cache is too small to make
// progress, per spec 7's "working-set too large" fatal-to-the-view signal.
var ErrWorkingSetTooLarge = errors.New("gpu: working set too large for view's node cache capacity")

// Viewport mirrors binding 1's uniform layout: camera origin/direction plus
// width/height/FOV and the output resolution, packed into the 48-byte wire
// form WriteViewport produces.
type Viewport struct {
	Origin     mgl32.Vec3
	Direction  mgl32.Vec3
	Width      float32
	Height     float32
	FOV        float32
	Resolution [2]uint32
}

// Pack serializes Viewport into the 48-byte binding-1 uniform buffer layout
// (origin, direction, w_h_fov, resolution, with trailing pad to round out
// to 48 bytes).
func (v Viewport) Pack() []byte {
	buf := make([]byte, 48)
	putVec3 := func(off int, x mgl32.Vec3) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(x.X()))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(x.Y()))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(x.Z()))
	}
	putVec3(0, v.Origin)
	putVec3(12, v.Direction)
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(v.Width))
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(v.Height))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(v.FOV))
	binary.LittleEndian.PutUint32(buf[36:], v.Resolution[0])
	binary.LittleEndian.PutUint32(buf[40:], v.Resolution[1])
	return buf
}

// View bundles one GPU-visible window onto a voxtree.Tree: its resident
// cache, the streaming protocol draining requests against it, the device
// buffers it writes to, and the output framebuffer the compute shader
// renders into (binding 0). Grounded on GpuBufferManager's texture-owning
// pattern (CreateGBufferTextures/CreateShadowMapTextures) generalized from
// a fixed rasterizer target set to the single resizable raytrace output
// spec §6's view API exposes.
type View struct {
	ID ViewID

	tree     *voxtree.Tree
	cache    *Cache
	protocol *Protocol
	writer   *BufferWriter

	viewport   Viewport
	resolution [2]uint32
	ready      bool

	Output     *wgpu.Texture
	OutputView *wgpu.TextureView
}

// CreateView allocates a view over tree with the given node/brick cache
// capacities and initial viewport/resolution, and returns its view_id (spec
// §6 create_view). The output framebuffer and device buffers are sized to
// the requested capacities immediately so the first frame has somewhere to
// write.
func CreateView(tree *voxtree.Tree, device *wgpu.Device, queue *wgpu.Queue, nodeCacheCapacity, brickCapacity int, viewport Viewport, resolution [2]uint32) (*View, error) {
	cache := NewCache(tree, nodeCacheCapacity, brickCapacity)
	protocol := NewProtocol(tree, cache)
	writer := NewBufferWriter(device, queue)
	writer.EnsureCapacity(nodeCacheCapacity, brickCapacity, int(tree.BrickDim())*int(tree.BrickDim())*int(tree.BrickDim()))

	v := &View{
		ID:         newViewID(),
		tree:       tree,
		cache:      cache,
		protocol:   protocol,
		writer:     writer,
		viewport:   viewport,
		resolution: resolution,
	}
	if err := v.createOutputTexture(device); err != nil {
		return nil, err
	}
	protocol.ReloadView()
	v.ready = true
	return v, nil
}

func (v *View) createOutputTexture(device *wgpu.Device) error {
	if v.Output != nil {
		v.Output.Release()
	}
	tex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "VoxelViewOutput",
		Size: wgpu.Extent3D{
			Width:              v.resolution[0],
			Height:             v.resolution[1],
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		return err
	}
	v.Output = tex
	v.OutputView = view
	return nil
}

// SetResolution resizes the view's output framebuffer and viewport
// resolution (spec §6 view.set_resolution).
func (v *View) SetResolution(device *wgpu.Device, wh [2]uint32) error {
	v.resolution = wh
	v.viewport.Resolution = wh
	return v.createOutputTexture(device)
}

// ViewportMut exposes the viewport for in-place camera updates (spec §6
// view.viewport_mut()).
func (v *View) ViewportMut() *Viewport { return &v.viewport }

// OutputTexture returns the device texture the compute shader writes the
// raytraced framebuffer into (spec §6 view.output_texture()).
func (v *View) OutputTexture() *wgpu.Texture { return v.Output }

// Cache and Protocol expose the view's resident-set state to callers
// driving the per-frame request/response loop.
func (v *View) Cache() *Cache       { return v.cache }
func (v *View) Protocol() *Protocol { return v.protocol }

// Reload re-seeds the view's cache from the tree root (spec §6
// view.reload()), used both for the initial frame and to recover from a
// device-lost/working-set-too-large failure per spec 7's error taxonomy.
func (v *View) Reload() {
	v.protocol.ReloadView()
	v.ready = true
}

// Ready reports whether the view survived its last ProcessRequests call
// without tripping the liveness check; a caller observing false must call
// Reload (after possibly growing the cache capacity) before resuming.
func (v *View) Ready() bool { return v.ready }

// DrainFrame writes this frame's dirty ranges to the device buffers in the
// order spec 5 mandates: metadata/children/ocbits together per node that is
// either metadata- or children-dirty (WriteNode folds all three into one
// write since they share a cache index, and a node can gain a newly
// resident child without its own metadata word changing), then voxel
// bricks for every dirty brick slot, then the palette tail if it grew,
// then the viewport uniform. It returns the Protocol's FrameResult for the
// caller to also reset the node-request ring.
func (v *View) DrainFrame() FrameResult {
	result := v.protocol.DrainFrame()
	touched := make(map[int]struct{}, len(result.MetadataIndices)+len(result.ChildIndices))
	for _, idx := range result.MetadataIndices {
		touched[idx] = struct{}{}
	}
	for _, idx := range result.ChildIndices {
		touched[idx] = struct{}{}
	}
	for idx := range touched {
		nodeKey, ok := v.cache.IndexToNodeKey[idx]
		if !ok {
			continue
		}
		n := v.tree.Store().Get(nodeKey)
		v.writer.WriteNode(idx, n, true, func(childKey uint32) uint32 {
			if ci, ok := v.cache.NodeKeyToIndex[childKey]; ok {
				return uint32(ci)
			}
			return voxtree.EmptyChild
		})
	}
	for _, idx := range result.VoxelIndices {
		owner, ok := v.cache.BrickOwnerAt(idx)
		if !ok {
			continue
		}
		n := v.tree.Store().Get(owner.NodeKey)
		var b *brick.Brick
		switch owner.Kind {
		case ChildOf:
			b = &n.UniformBrick
		case MIPOf:
			b = &n.Mip
		}
		if b != nil {
			v.writer.WriteVoxels(idx, b)
		}
	}
	if result.PaletteGrew {
		colors := v.tree.Palettes().Colors
		tail := colors.Tail()
		packed := make([][4]uint8, len(tail))
		for i, c := range tail {
			packed[i] = [4]uint8(c)
		}
		v.writer.WritePaletteTail(colors.TailOffset(), packed)
		colors.MarkUploaded()
	}
	v.writer.WriteViewport(v.viewport.Pack())
	return result
}

// ProcessRequests feeds this frame's decoded device requests through the
// protocol and marks the view not-ready on a liveness failure, per spec 7's
// "working-set too large" -> view marked not ready contract.
func (v *View) ProcessRequests(requests []NodeRequest) error {
	_, ok := v.protocol.ProcessRequests(requests)
	if !ok {
		v.ready = false
		return ErrWorkingSetTooLarge
	}
	return nil
}
