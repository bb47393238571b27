// Package primitives fills simple solid shapes into a voxtree.Tree, for
// seeding test scenes and fixtures. Grounded on
// voxelrt/rt/volume/primitives.go's Sphere/Cube/Cone/Pyramid/Point helpers,
// ported from XBrickMap.SetVoxel(x,y,z,paletteIdx) to
// voxtree.Tree.Insert(pos, palette.Entry) and from signed int coordinates
// to the tree's unsigned [0,Size) voxel space — cells that fall outside the
// tree bounds are silently skipped rather than wrapped, since primitives
// are fixtures, not infinite fields.
package primitives

import (
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxel64/tree64/palette"
	"github.com/voxel64/tree64/voxtree"
)

func colorEntry(c palette.Color) palette.Entry {
	return palette.Entry{Color: c, HasColor: true}
}

// FromStdColor converts any image/color.Color (notably the named constants
// in golang.org/x/image/colornames, used by fixture code and tests that
// want a readable color name instead of raw RGBA bytes) into a
// palette.Color.
func FromStdColor(c color.Color) palette.Color {
	r, g, b, a := c.RGBA()
	return palette.Color{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func setVoxel(tree *voxtree.Tree, x, y, z int, entry palette.Entry) error {
	size := int(tree.Size())
	if x < 0 || y < 0 || z < 0 || x >= size || y >= size || z >= size {
		return nil
	}
	return tree.Insert([3]uint32{uint32(x), uint32(y), uint32(z)}, entry)
}

// Point fills a single voxel.
func Point(tree *voxtree.Tree, x, y, z int, color palette.Color) error {
	return setVoxel(tree, x, y, z, colorEntry(color))
}

// Sphere fills a filled sphere centered at center with the given radius.
func Sphere(tree *voxtree.Tree, center mgl32.Vec3, radius float32, color palette.Color) error {
	entry := colorEntry(color)
	r2 := radius * radius
	minB, maxB := boundsFromCenter(center, radius)

	for x := minB[0]; x <= maxB[0]; x++ {
		for y := minB[1]; y <= maxB[1]; y++ {
			for z := minB[2]; z <= maxB[2]; z++ {
				dx := float32(x) - center.X() + 0.5
				dy := float32(y) - center.Y() + 0.5
				dz := float32(z) - center.Z() + 0.5
				if dx*dx+dy*dy+dz*dz <= r2 {
					if err := setVoxel(tree, x, y, z, entry); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Cube fills an axis-aligned box spanning [minB, maxB] inclusive.
func Cube(tree *voxtree.Tree, minB, maxB mgl32.Vec3, color palette.Color) error {
	entry := colorEntry(color)
	minI := floorVec(minB)
	maxI := floorVec(maxB)

	for x := minI[0]; x <= maxI[0]; x++ {
		for y := minI[1]; y <= maxI[1]; y++ {
			for z := minI[2]; z <= maxI[2]; z++ {
				if err := setVoxel(tree, x, y, z, entry); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Cone fills a solid cone with apex tip and a circular base of the given
// radius centered at base.
func Cone(tree *voxtree.Tree, base, tip mgl32.Vec3, radius float32, color palette.Color) error {
	entry := colorEntry(color)
	heightVec := tip.Sub(base)
	height := heightVec.Len()
	if height < 1e-5 {
		return nil
	}
	axis := heightVec.Normalize()

	maxDim := float32(math.Max(float64(radius), float64(height)))
	center := base.Add(tip).Mul(0.5)
	minB, maxB := boundsFromCenter(center, maxDim)

	for x := minB[0]; x <= maxB[0]; x++ {
		for y := minB[1]; y <= maxB[1]; y++ {
			for z := minB[2]; z <= maxB[2]; z++ {
				p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				v := p.Sub(base)
				distOnAxis := v.Dot(axis)
				if distOnAxis < 0 || distOnAxis > height {
					continue
				}
				radiusAtDist := radius * (1.0 - distOnAxis/height)
				distToAxis2 := v.LenSqr() - distOnAxis*distOnAxis
				if distToAxis2 <= radiusAtDist*radiusAtDist {
					if err := setVoxel(tree, x, y, z, entry); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Pyramid fills a solid square pyramid with apex tip and a base square of
// edge length size centered at base.
func Pyramid(tree *voxtree.Tree, base, tip mgl32.Vec3, size float32, color palette.Color) error {
	entry := colorEntry(color)
	heightVec := tip.Sub(base)
	height := heightVec.Len()
	if height < 1e-5 {
		return nil
	}
	axis := heightVec.Normalize()

	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(axis.Dot(up))) > 0.99 {
		up = mgl32.Vec3{1, 0, 0}
	}
	right := axis.Cross(up).Normalize()
	forward := right.Cross(axis).Normalize()

	maxDim := float32(math.Max(float64(size), float64(height)))
	center := base.Add(tip).Mul(0.5)
	minB, maxB := boundsFromCenter(center, maxDim)
	halfSize := size * 0.5

	for x := minB[0]; x <= maxB[0]; x++ {
		for y := minB[1]; y <= maxB[1]; y++ {
			for z := minB[2]; z <= maxB[2]; z++ {
				p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				v := p.Sub(base)
				distOnAxis := v.Dot(axis)
				if distOnAxis < 0 || distOnAxis > height {
					continue
				}
				scale := 1.0 - distOnAxis/height
				s := halfSize * scale
				dx := v.Dot(right)
				dz := v.Dot(forward)
				if math.Abs(float64(dx)) <= float64(s) && math.Abs(float64(dz)) <= float64(s) {
					if err := setVoxel(tree, x, y, z, entry); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func boundsFromCenter(center mgl32.Vec3, radius float32) ([3]int, [3]int) {
	minB := [3]int{
		int(math.Floor(float64(center.X() - radius))),
		int(math.Floor(float64(center.Y() - radius))),
		int(math.Floor(float64(center.Z() - radius))),
	}
	maxB := [3]int{
		int(math.Ceil(float64(center.X() + radius))),
		int(math.Ceil(float64(center.Y() + radius))),
		int(math.Ceil(float64(center.Z() + radius))),
	}
	return minB, maxB
}

func floorVec(v mgl32.Vec3) [3]int {
	return [3]int{
		int(math.Floor(float64(v.X()))),
		int(math.Floor(float64(v.Y()))),
		int(math.Floor(float64(v.Z()))),
	}
}
