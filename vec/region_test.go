package vec

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestHashOctant(t *testing.T) {
	half := float32(2)
	cases := []struct {
		p    mgl32.Vec3
		want int
	}{
		{mgl32.Vec3{0, 0, 0}, 0},
		{mgl32.Vec3{3, 0, 0}, 1},
		{mgl32.Vec3{0, 3, 0}, 2},
		{mgl32.Vec3{0, 0, 3}, 4},
		{mgl32.Vec3{3, 3, 3}, 7},
	}
	for _, c := range cases {
		got, err := HashOctant(c.p, half)
		if err != nil {
			t.Fatalf("HashOctant(%v) error: %v", c.p, err)
		}
		if got != c.want {
			t.Errorf("HashOctant(%v) = %d, want %d", c.p, got, c.want)
		}
	}
}

func TestHashOctantOutOfBounds(t *testing.T) {
	if _, err := HashOctant(mgl32.Vec3{-1, 0, 0}, 2); err != ErrOutOfBounds {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := HashOctant(mgl32.Vec3{4, 0, 0}, 2); err != ErrOutOfBounds {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestHashSectantCoversAll64(t *testing.T) {
	quarter := float32(1)
	seen := make(map[int]bool)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				got := HashSectant(p, quarter)
				want := x + 4*y + 16*z
				if got != want {
					t.Errorf("HashSectant(%v) = %d, want %d", p, got, want)
				}
				seen[got] = true
			}
		}
	}
	if len(seen) != 64 {
		t.Errorf("expected 64 distinct sectants, got %d", len(seen))
	}
}

func TestSectantOriginRoundTrip(t *testing.T) {
	quarter := float32(2)
	for s := 0; s < 64; s++ {
		origin := SectantOrigin(s, quarter)
		mid := origin.Add(mgl32.Vec3{0.5, 0.5, 0.5})
		if got := HashSectant(mid, quarter); got != s {
			t.Errorf("SectantOrigin(%d) round-trip got sectant %d", s, got)
		}
	}
}

func TestRayVsCubeHit(t *testing.T) {
	ray := Ray{Origin: mgl32.Vec3{-5, 0.5, 0.5}, Direction: mgl32.Vec3{1, 0, 0}}
	tEnter, tExit, ok := RayVsCube(ray, mgl32.Vec3{0, 0, 0}, 4)
	if !ok {
		t.Fatal("expected hit")
	}
	if tEnter < 4.99 || tEnter > 5.01 {
		t.Errorf("tEnter = %f, want ~5", tEnter)
	}
	if tExit < 8.99 || tExit > 9.01 {
		t.Errorf("tExit = %f, want ~9", tExit)
	}
}

func TestRayVsCubeMiss(t *testing.T) {
	ray := Ray{Origin: mgl32.Vec3{-5, 10, 0.5}, Direction: mgl32.Vec3{1, 0, 0}}
	if _, _, ok := RayVsCube(ray, mgl32.Vec3{0, 0, 0}, 4); ok {
		t.Error("expected miss")
	}
}

func TestRayVsCubeOriginInside(t *testing.T) {
	ray := Ray{Origin: mgl32.Vec3{1, 1, 1}, Direction: mgl32.Vec3{1, 0, 0}}
	tEnter, _, ok := RayVsCube(ray, mgl32.Vec3{0, 0, 0}, 4)
	if !ok {
		t.Fatal("expected hit when ray starts inside cube")
	}
	if tEnter != 0 {
		t.Errorf("tEnter = %f, want 0 for origin already inside", tEnter)
	}
}

func TestStepToNextSiblingAxisAligned(t *testing.T) {
	dir := mgl32.Vec3{1, 0, 0}
	scale := ScaleFactors(dir)
	p := mgl32.Vec3{0.5, 0.5, 0.5}
	step, newT := StepToNextSibling(p, dir, scale, 1, 0)
	if step != [3]int32{1, 0, 0} {
		t.Errorf("step = %v, want (1,0,0)", step)
	}
	if newT < 0.49 || newT > 0.51 {
		t.Errorf("newT = %f, want ~0.5", newT)
	}
}
