package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/voxtree"
)

// Binding sizes from spec §6's GPU wire format table.
const (
	metadataElemSize = 4
	childrenElemSize = 4 // 8 per node
	childrenPerNode  = 8
	mipsElemSize     = 4
	ocbitsElemSize   = 8 // 2 u32 per node, little first
	voxelElemSize    = 4 // packed (color u16, data u16)
	paletteElemSize  = 16
)

const headroomTables = 64 * 1024

// BufferWriter owns the device-visible buffers the compute shader binds to
// and applies a Protocol's per-frame dirty ranges to them. Grounded on
// GpuBufferManager.ensureBuffer (geometric 1.5x growth, always CopyDst|CopySrc)
// and UpdateVoxelData's per-node byte-packing helpers, generalized from the
// teacher's sector/brick layout to the node-cache layout in spec §6.
type BufferWriter struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	Metadata *wgpu.Buffer
	Children *wgpu.Buffer
	Mips     *wgpu.Buffer
	OcBits   *wgpu.Buffer
	Voxels   *wgpu.Buffer
	Palette  *wgpu.Buffer
	Viewport *wgpu.Buffer
}

const viewportUniformSize = 48

func NewBufferWriter(device *wgpu.Device, queue *wgpu.Queue) *BufferWriter {
	return &BufferWriter{Device: device, Queue: queue}
}

func (w *BufferWriter) ensureBuffer(buf **wgpu.Buffer, sizeBytes uint64, usage wgpu.BufferUsage) {
	usage = usage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc
	current := *buf
	if current != nil && current.GetSize() >= sizeBytes {
		return
	}
	newSize := sizeBytes
	if current != nil {
		grown := uint64(float64(current.GetSize()) * 1.5)
		if grown > newSize {
			newSize = grown
		}
	}
	*buf, _ = w.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  newSize,
		Usage: usage,
	})
}

// EnsureCapacity grows every buffer to accommodate the given node/brick
// cache capacities; CreateView calls it once at view creation.
func (w *BufferWriter) EnsureCapacity(nodeCap, brickCap, brickVoxels int) {
	w.ensureBuffer(&w.Metadata, uint64(nodeCap*metadataElemSize)+headroomTables, wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.Children, uint64(nodeCap*childrenPerNode*childrenElemSize)+headroomTables, wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.Mips, uint64(nodeCap*mipsElemSize)+headroomTables, wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.OcBits, uint64(nodeCap*ocbitsElemSize)+headroomTables, wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.Voxels, uint64(brickCap*brickVoxels*voxelElemSize)+headroomTables, wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.Palette, uint64(65536*paletteElemSize), wgpu.BufferUsageStorage)
	w.ensureBuffer(&w.Viewport, viewportUniformSize, wgpu.BufferUsageUniform)
}

// WriteViewport pushes the packed 48-byte Viewport uniform (binding 1) to
// the device.
func (w *BufferWriter) WriteViewport(packed []byte) {
	w.Queue.WriteBuffer(w.Viewport, 0, packed)
}

// packMetadata builds the 32-bit metadata word for cache index idx (spec
// 4.I bit layout): bit0 used, bit2 leaf, bit3 uniform, bit4 has-MIP, bit5
// MIP-is-parted. The per-sectant/per-brick bits (16..31) are always
// written as zero; they would need brick-level ownership state that lives
// in Cache, not here.
func packMetadata(n *voxtree.Node, used bool) uint32 {
	var m uint32
	if used {
		m |= 1 << 0
	}
	switch n.Kind {
	case voxtree.KindUniformLeaf:
		m |= 1 << 2
		m |= 1 << 3
	}
	if n.Mip.Kind != brick.KindEmpty {
		m |= 1 << 4
		if n.Mip.Kind == brick.KindParted {
			m |= 1 << 5
		}
	}
	return m
}

// WriteNode pushes one node's metadata, children, and ocbits to the device
// buffers at cache index idx. Children not present (EmptyChild) are written
// as empty_marker. The node's MIP slot in the Mips buffer is not written.
func (w *BufferWriter) WriteNode(idx int, n *voxtree.Node, used bool, resolveChildIndex func(childKey uint32) uint32) {
	meta := packMetadata(n, used)
	w.Queue.WriteBuffer(w.Metadata, uint64(idx*metadataElemSize), u32Bytes(meta))

	children := make([]byte, childrenPerNode*childrenElemSize)
	for i := 0; i < childrenPerNode && i < 64; i++ {
		childKey := n.Children[i]
		var cacheIdx uint32 = voxtree.EmptyChild
		if childKey != voxtree.EmptyChild {
			cacheIdx = resolveChildIndex(childKey)
		}
		binary.LittleEndian.PutUint32(children[i*4:], cacheIdx)
	}
	w.Queue.WriteBuffer(w.Children, uint64(idx*childrenPerNode*childrenElemSize), children)

	oc := make([]byte, ocbitsElemSize)
	binary.LittleEndian.PutUint32(oc[0:4], uint32(n.OccBits))
	binary.LittleEndian.PutUint32(oc[4:8], uint32(n.OccBits>>32))
	w.Queue.WriteBuffer(w.OcBits, uint64(idx*ocbitsElemSize), oc)
}

// WriteVoxels pushes one brick's voxel payload to the voxel buffer at
// cache index brickIdx, packing each cell's (color,data) pair into one
// uint32 as the wire format's "voxels[] palette indices (C16,D16)" entry.
func (w *BufferWriter) WriteVoxels(brickIdx int, b *brick.Brick) {
	n := b.N
	buf := make([]byte, n*n*n*voxelElemSize)
	for i := 0; i < n*n*n; i++ {
		var idx [2]uint16
		if b.Kind == brick.KindParted {
			v := b.Voxels[i]
			idx[0], idx[1] = v.Color, v.Data
		} else if b.Kind == brick.KindSolid {
			idx[0], idx[1] = b.Solid.Color, b.Solid.Data
		} else {
			idx[0], idx[1] = 0xFFFF, 0xFFFF
		}
		binary.LittleEndian.PutUint16(buf[i*4:], idx[0])
		binary.LittleEndian.PutUint16(buf[i*4+2:], idx[1])
	}
	w.Queue.WriteBuffer(w.Voxels, uint64(brickIdx*n*n*n*voxelElemSize), buf)
}

// WritePaletteTail appends newly interned colors (spec 5's "upload new
// color-palette tail if it grew") as RGBA f32 entries.
func (w *BufferWriter) WritePaletteTail(tailOffset uint16, colors [][4]uint8) {
	buf := make([]byte, len(colors)*paletteElemSize)
	for i, c := range colors {
		for ch := 0; ch < 4; ch++ {
			bits := math.Float32bits(float32(c[ch]) / 255.0)
			binary.LittleEndian.PutUint32(buf[i*16+ch*4:], bits)
		}
	}
	w.Queue.WriteBuffer(w.Palette, uint64(tailOffset)*paletteElemSize, buf)
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
