package vec

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrOutOfBounds is returned by HashOctant when p lies outside the
// precondition range [0, 2*half); HashSectant has no such failure mode
// since it clamps every component into range instead.
var ErrOutOfBounds = errors.New("vec: position outside node bounds")

// SectantOutOfBounds is the sentinel sectant index meaning "the stepped
// position left the parent node"; it is never a valid 0..63 sectant.
const SectantOutOfBounds = -1

// OctantOutOfBounds is the equivalent sentinel for 8-way (legacy octree)
// mode.
const OctantOutOfBounds = -1

// HashOctant returns 0..7 from the sign bits of p-half, used by the
// legacy 8-way (octree) subdivision mode. Fails precondition if p lies
// outside [0, 2*half)^3.
func HashOctant(p mgl32.Vec3, half float32) (int, error) {
	size := half * 2
	if p.X() < 0 || p.X() >= size || p.Y() < 0 || p.Y() >= size || p.Z() < 0 || p.Z() >= size {
		return 0, ErrOutOfBounds
	}
	idx := 0
	if p.X() >= half {
		idx |= 1
	}
	if p.Y() >= half {
		idx |= 2
	}
	if p.Z() >= half {
		idx |= 4
	}
	return idx, nil
}

// HashSectant returns 0..63 as x+4y+16z of component-wise floor(p/quarter),
// the 4x4x4 subdivision used by the new 64-way tree. p is expected to be a
// node-local coordinate in [0, 4*quarter)^3; out-of-range components are
// clamped to their nearest valid cell rather than failing, since callers
// (the raytracer) sometimes hand in a position that is exactly on a far
// boundary due to floating point error.
func HashSectant(p mgl32.Vec3, quarter float32) int {
	clampIdx := func(v float32) int {
		i := int(math.Floor(float64(v / quarter)))
		if i < 0 {
			i = 0
		}
		if i > 3 {
			i = 3
		}
		return i
	}
	x := clampIdx(p.X())
	y := clampIdx(p.Y())
	z := clampIdx(p.Z())
	return x + 4*y + 16*z
}

// SectantOrigin returns the local-space origin (in units of quarter) of
// sectant index 0..63.
func SectantOrigin(sectant int, quarter float32) mgl32.Vec3 {
	x := sectant % 4
	y := (sectant / 4) % 4
	z := sectant / 16
	return mgl32.Vec3{float32(x) * quarter, float32(y) * quarter, float32(z) * quarter}
}

// Ray is a normalized-direction ray used throughout the raytracer and
// region-hashing DDA helpers.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// ScaleFactors precomputes ||d||/|d_i| per axis, used by StepToNextSibling
// to convert an axis-local distance into a ray parameter t.
func ScaleFactors(dir mgl32.Vec3) mgl32.Vec3 {
	length := dir.Len()
	safe := func(d float32) float32 {
		if math.Abs(float64(d)) < 1e-9 {
			return float32(math.Inf(1))
		}
		return length / float32(math.Abs(float64(d)))
	}
	return mgl32.Vec3{safe(dir.X()), safe(dir.Y()), safe(dir.Z())}
}

// FloatErrorTolerance is used only to decide ties between candidate step
// distances in StepToNextSibling; it is never used for inside-cube tests,
// which always use half-open intervals.
const FloatErrorTolerance = 1e-5

// StepToNextSibling advances a DDA traversal to the next cell face of size
// cellSize, starting at local-space position p along ray direction dir
// (pre-normalized) using precomputed scaleFactors = ScaleFactors(dir). It
// returns the axial step (each component -1, 0 or +1 — more than one
// component can be nonzero on an exact corner/edge tie) and the new t.
func StepToNextSibling(p, dir mgl32.Vec3, scaleFactors mgl32.Vec3, cellSize float32, t float32) (step [3]int32, newT float32) {
	var tNext [3]float32
	for i := 0; i < 3; i++ {
		d := component(dir, i)
		if d == 0 {
			tNext[i] = float32(math.Inf(1))
			continue
		}
		pc := component(p, i)
		var boundary float32
		if d > 0 {
			boundary = (float32(math.Floor(float64(pc/cellSize))) + 1) * cellSize
		} else {
			boundary = float32(math.Floor(float64(pc/cellSize))) * cellSize
			if boundary == pc {
				boundary -= cellSize
			}
		}
		dist := boundary - pc // shares sign with d by construction
		sf := component(scaleFactors, i)
		tNext[i] = t + float32(math.Abs(float64(dist)))*sf
	}

	minT := float32(math.Inf(1))
	for i := 0; i < 3; i++ {
		if tNext[i] < minT {
			minT = tNext[i]
		}
	}

	for i := 0; i < 3; i++ {
		if tNext[i] <= minT+FloatErrorTolerance {
			d := component(dir, i)
			if d > 0 {
				step[i] = 1
			} else if d < 0 {
				step[i] = -1
			}
		}
	}
	return step, minT
}

func component(v mgl32.Vec3, i int) float32 {
	switch i {
	case 0:
		return v.X()
	case 1:
		return v.Y()
	default:
		return v.Z()
	}
}

// RayVsCube intersects ray with an axis-aligned cube [cubeMin, cubeMin+size)
// and returns (tEnter, tExit, true) if it hits, or (0,0,false) otherwise.
// tEnter is the distance to use as the traversal's initial t.
func RayVsCube(ray Ray, cubeMin mgl32.Vec3, size float32) (tEnter, tExit float32, ok bool) {
	tMin := float32(math.Inf(-1))
	tMax := float32(math.Inf(1))

	for i := 0; i < 3; i++ {
		o := component(ray.Origin, i)
		d := component(ray.Direction, i)
		lo := component(cubeMin, i)
		hi := lo + size

		if math.Abs(float64(d)) < 1e-12 {
			if o < lo || o >= hi {
				return 0, 0, false
			}
			continue
		}

		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return 0, 0, false
		}
	}

	if tMax < 0 {
		return 0, 0, false
	}
	if tMin < 0 {
		tMin = 0
	}
	return tMin, tMax, true
}
