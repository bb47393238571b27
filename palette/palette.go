// Package palette implements the append-only color/user-data interning
// tables voxels are indirected through. Grounded on the teacher's
// brick-payload indirection (voxelrt/rt/volume/xbrickmap.go's
// Brick.Payload holding a palette byte, and GpuBufferManager.MaterialBuf's
// tail-growth tracking in manager.go), generalized from a single material
// table to the spec's two 16-bit palettes (color, user-data) with an
// absent-component sentinel.
package palette

import "errors"

// AbsentIndex marks "this component of the entry is absent" in a packed
// Index pair, and is the reserved value no real palette entry ever gets.
const AbsentIndex uint16 = 0xFFFF

// MaxEntries is the palette size ceiling from the spec's Non-goals
// (unbounded palettes are explicitly out of scope).
const MaxEntries = 65535

var ErrPaletteFull = errors.New("palette: full (65535 entries max)")

// Color is a packed RGBA8 color value.
type Color [4]uint8

// Index is a packed (color_index, data_index) pair as stored in a brick
// voxel cell.
type Index struct {
	Color uint16
	Data  uint16
}

// IsEmpty reports whether both components are absent — the "empty voxel"
// sentinel used throughout occupancy-bit derivation.
func (i Index) IsEmpty() bool {
	return i.Color == AbsentIndex && i.Data == AbsentIndex
}

// EmptyIndex is the canonical empty-voxel sentinel value.
var EmptyIndex = Index{Color: AbsentIndex, Data: AbsentIndex}

// Entry is what a caller inserts: either component may be left absent by
// passing HasColor/HasData false.
type Entry struct {
	Color    Color
	HasColor bool
	Data     uint32
	HasData  bool
}

// IsAllEmpty reports whether neither component is present — inserting such
// an entry is defined as a no-op by the spec.
func (e Entry) IsAllEmpty() bool { return !e.HasColor && !e.HasData }

// Table is one append-only value->index map with its inverse, generic over
// the stored value type.
type Table[V comparable] struct {
	values  []V
	indices map[V]uint16
	// tail is the size (in entries) as of the last GPU upload, used to
	// drive incremental uploads of only the newly appended tail.
	tail uint16
}

func NewTable[V comparable]() *Table[V] {
	return &Table[V]{indices: make(map[V]uint16)}
}

// Intern returns v's index, appending it if new. Returns ErrPaletteFull if
// the table is already at MaxEntries and v is not already present.
func (t *Table[V]) Intern(v V) (uint16, error) {
	if idx, ok := t.indices[v]; ok {
		return idx, nil
	}
	if len(t.values) >= MaxEntries {
		return 0, ErrPaletteFull
	}
	idx := uint16(len(t.values))
	t.values = append(t.values, v)
	t.indices[v] = idx
	return idx, nil
}

// Lookup returns the value stored at idx.
func (t *Table[V]) Lookup(idx uint16) (V, bool) {
	var zero V
	if int(idx) >= len(t.values) {
		return zero, false
	}
	return t.values[idx], true
}

// Len is the number of interned entries.
func (t *Table[V]) Len() int { return len(t.values) }

// Tail returns the entries appended since the last MarkUploaded call, for
// incremental GPU palette uploads.
func (t *Table[V]) Tail() []V {
	return t.values[t.tail:]
}

// TailOffset is the entry count as of the last MarkUploaded call.
func (t *Table[V]) TailOffset() uint16 { return t.tail }

// MarkUploaded records that everything up to the current length has been
// pushed to the GPU.
func (t *Table[V]) MarkUploaded() { t.tail = uint16(len(t.values)) }

// Palettes bundles the color and user-data tables and exposes the
// interning contract the update engine uses to turn an Entry into a packed
// Index.
type Palettes struct {
	Colors *Table[Color]
	Data   *Table[uint32]
}

func New() *Palettes {
	return &Palettes{
		Colors: NewTable[Color](),
		Data:   NewTable[uint32](),
	}
}

// Intern packs entry into an Index, interning each present component.
// Inserting an all-empty entry is a documented no-op: it returns
// EmptyIndex without touching either table.
func (p *Palettes) Intern(entry Entry) (Index, error) {
	if entry.IsAllEmpty() {
		return EmptyIndex, nil
	}
	idx := Index{Color: AbsentIndex, Data: AbsentIndex}
	if entry.HasColor {
		ci, err := p.Colors.Intern(entry.Color)
		if err != nil {
			return Index{}, err
		}
		idx.Color = ci
	}
	if entry.HasData {
		di, err := p.Data.Intern(entry.Data)
		if err != nil {
			return Index{}, err
		}
		idx.Data = di
	}
	return idx, nil
}

// Merge applies entry onto base, overwriting only the components entry
// provides — the "update" (as opposed to "insert") merge semantics.
func (p *Palettes) Merge(base Index, entry Entry) (Index, error) {
	out := base
	if entry.HasColor {
		ci, err := p.Colors.Intern(entry.Color)
		if err != nil {
			return Index{}, err
		}
		out.Color = ci
	}
	if entry.HasData {
		di, err := p.Data.Intern(entry.Data)
		if err != nil {
			return Index{}, err
		}
		out.Data = di
	}
	return out, nil
}
