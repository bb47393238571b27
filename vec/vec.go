// Package vec provides the integer lattice-vector arithmetic and region
// hashing used to navigate the 64-tree: sectant/octant hashing, and the
// ray-vs-cube / step-to-next-sibling DDA primitives the raytracer uses. Float vector/matrix math (rays, AABBs, MIP
// averaging) uses github.com/go-gl/mathgl/mgl32 directly, the same way
// the teacher engine does throughout voxelrt/rt.
package vec

// Int is the set of integer component types Vec3 supports.
type Int interface {
	~int | ~int32 | ~int64 | ~uint32
}

// Vec3 is a generic 3-component lattice vector over integer coordinate
// types (sectant/voxel/brick indices). It intentionally does not try to
// also cover float32 — ray and AABB math stays on mgl32.Vec3, matching the
// teacher's own split between float rays (mgl32) and integer voxel
// coordinates (plain ints).
type Vec3[T Int] struct {
	X, Y, Z T
}

func New[T Int](x, y, z T) Vec3[T] { return Vec3[T]{x, y, z} }

func (v Vec3[T]) Add(o Vec3[T]) Vec3[T] { return Vec3[T]{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3[T]) Sub(o Vec3[T]) Vec3[T] { return Vec3[T]{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3[T]) Mul(s T) Vec3[T]       { return Vec3[T]{v.X * s, v.Y * s, v.Z * s} }

func (v Vec3[T]) Dot(o Vec3[T]) T { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3[T]) Cross(o Vec3[T]) Vec3[T] {
	return Vec3[T]{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func minT[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func maxT[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func (v Vec3[T]) Min(o Vec3[T]) Vec3[T] {
	return Vec3[T]{minT(v.X, o.X), minT(v.Y, o.Y), minT(v.Z, o.Z)}
}

func (v Vec3[T]) Max(o Vec3[T]) Vec3[T] {
	return Vec3[T]{maxT(v.X, o.X), maxT(v.Y, o.Y), maxT(v.Z, o.Z)}
}

// Mod is the floored modulo (always in [0, m)), needed because negative
// global voxel coordinates are legal inputs to sector/brick decomposition.
func Mod[T Int](a, m T) T {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// Div is floored integer division, the counterpart to Mod.
func Div[T Int](a, m T) T {
	q := a / m
	if (a%m != 0) && ((a < 0) != (m < 0)) {
		q--
	}
	return q
}

func (v Vec3[T]) DivScalar(m T) Vec3[T] {
	return Vec3[T]{Div(v.X, m), Div(v.Y, m), Div(v.Z, m)}
}

func (v Vec3[T]) ModScalar(m T) Vec3[T] {
	return Vec3[T]{Mod(v.X, m), Mod(v.Y, m), Mod(v.Z, m)}
}
