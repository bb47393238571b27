package raytrace

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxel64/tree64/palette"
	"github.com/voxel64/tree64/vec"
	"github.com/voxel64/tree64/voxtree"
)

func mustTree(t *testing.T, size, brickDim uint32) *voxtree.Tree {
	t.Helper()
	tr, err := voxtree.New(size, brickDim)
	if err != nil {
		t.Fatalf("New(%d,%d): %v", size, brickDim, err)
	}
	return tr
}

func colorEntry(v uint8) palette.Entry {
	return palette.Entry{Color: palette.Color{v, v, v, 255}, HasColor: true}
}

func TestTraceMissesEmptyTree(t *testing.T) {
	tr := mustTree(t, 8, 1)
	ray := vec.Ray{Origin: mgl32.Vec3{-5, 4, 4}, Direction: mgl32.Vec3{1, 0, 0}}
	if _, ok := Trace(tr, ray); ok {
		t.Error("Trace against an empty tree must never hit")
	}
}

func TestTraceMissesWhenRayPointsAway(t *testing.T) {
	tr := mustTree(t, 8, 1)
	tr.Insert([3]uint32{4, 4, 4}, colorEntry(9))
	ray := vec.Ray{Origin: mgl32.Vec3{-5, 4, 4}, Direction: mgl32.Vec3{-1, 0, 0}}
	if _, ok := Trace(tr, ray); ok {
		t.Error("Trace pointing away from the tree must miss")
	}
}

func TestTraceHitsSingleVoxel(t *testing.T) {
	tr := mustTree(t, 8, 1)
	c := palette.Color{7, 8, 9, 255}
	tr.Insert([3]uint32{4, 4, 4}, palette.Entry{Color: c, HasColor: true})

	ray := vec.Ray{Origin: mgl32.Vec3{-5, 4.5, 4.5}, Direction: mgl32.Vec3{1, 0, 0}}
	hit, ok := Trace(tr, ray)
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Voxel.Color != c {
		t.Errorf("hit color = %v, want %v", hit.Voxel.Color, c)
	}
	if hit.Normal != (mgl32.Vec3{-1, 0, 0}) {
		t.Errorf("hit normal = %v, want (-1,0,0) for a ray travelling +X", hit.Normal)
	}
	wantX := float32(4)
	if hit.Point.X() < wantX-0.01 || hit.Point.X() > wantX+0.01 {
		t.Errorf("hit point X = %f, want ~%f", hit.Point.X(), wantX)
	}
}

func TestTraceStopsAtNearestVoxel(t *testing.T) {
	tr := mustTree(t, 8, 1)
	tr.Insert([3]uint32{2, 4, 4}, colorEntry(1))
	tr.Insert([3]uint32{6, 4, 4}, colorEntry(2))

	ray := vec.Ray{Origin: mgl32.Vec3{-5, 4.5, 4.5}, Direction: mgl32.Vec3{1, 0, 0}}
	hit, ok := Trace(tr, ray)
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Voxel.Color != (palette.Color{1, 1, 1, 255}) {
		t.Errorf("hit the far voxel instead of the near one: %v", hit.Voxel.Color)
	}
}

func TestTraceOnDeepTreeTerminates(t *testing.T) {
	// spec §8's deep-stack termination case: a tree whose size/brickDim
	// ratio is large enough to need many levels must still terminate rather
	// than looping forever or overflowing the traversal stack.
	tr := mustTree(t, 1024, 1)
	tr.Insert([3]uint32{512, 512, 512}, colorEntry(3))

	ray := vec.Ray{Origin: mgl32.Vec3{-10, 512.5, 512.5}, Direction: mgl32.Vec3{1, 0, 0}}
	hit, ok := Trace(tr, ray)
	if !ok {
		t.Fatal("expected a hit deep inside a large tree")
	}
	if hit.Voxel.Color != (palette.Color{3, 3, 3, 255}) {
		t.Errorf("hit color = %v, want {3,3,3,255}", hit.Voxel.Color)
	}
}

func TestTraceOnDeepTreeMissCaseTerminates(t *testing.T) {
	tr := mustTree(t, 1024, 1)
	ray := vec.Ray{Origin: mgl32.Vec3{-10, 512.5, 512.5}, Direction: mgl32.Vec3{1, 0, 0}}
	if _, ok := Trace(tr, ray); ok {
		t.Error("Trace over an empty large tree must terminate with a clean miss")
	}
}
