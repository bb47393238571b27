package voxtree

import (
	"github.com/voxel64/tree64/brick"
	"github.com/voxel64/tree64/palette"
)

// SetMipStrategy configures the resampling method used to build level's
// cached MIP brick (spec 4.G). Level 0 is the shallowest internal level
// above the bricks; higher levels sit further up the tree. Epsilon is only
// consulted by the Posterize methods.
func (t *Tree) SetMipStrategy(level int, method MipMethod, epsilon float32) {
	if level < 0 || level >= len(t.mipLevels) {
		return
	}
	t.mipLevels[level] = MipLevelConfig{Method: method, Epsilon: epsilon}
}

// RecalculateMip rebuilds the MIP brick for node key from its 64 children,
// using the strategy configured for key's level. Nodes below the shallowest
// MIP level (brick-resolution UniformLeaf nodes) have no MIP of their own;
// their content already *is* a brick. A node with no populated children
// gets an Empty MIP.
func (t *Tree) RecalculateMip(key uint32, level int) {
	n := t.store.Get(key)
	if n.Kind != KindInternal {
		return
	}
	cfg := MipLevelConfig{}
	if level >= 0 && level < len(t.mipLevels) {
		cfg = t.mipLevels[level]
	}

	samples := make([]palette.Index, 64)
	any := false
	for i := 0; i < 64; i++ {
		c := n.Children[i]
		if c == EmptyChild {
			samples[i] = palette.EmptyIndex
			continue
		}
		cn := t.store.Get(c)
		idx := t.representativeIndex(cn)
		samples[i] = idx
		if !idx.IsEmpty() {
			any = true
		}
	}

	if !any {
		n.Mip = brick.Brick{}
		return
	}

	n.Mip = resampleMip(t.palettes, samples, cfg, t.brickDim)
}

// representativeIndex picks the single palette.Index a child contributes to
// its parent's MIP: a UniformLeaf's solid fill, or (for a populated
// Internal child without its own up-to-date MIP) its first non-empty
// descendant voxel, matching the teacher's "representative sample" approach
// to LoD generation.
func (t *Tree) representativeIndex(n *Node) palette.Index {
	switch n.Kind {
	case KindUniformLeaf:
		if n.UniformBrick.Kind == brick.KindSolid {
			return n.UniformBrick.Solid
		}
		return t.firstVoxel(&n.UniformBrick)
	case KindInternal:
		if n.Mip.Kind != brick.KindEmpty {
			return t.firstVoxel(&n.Mip)
		}
		for _, c := range n.Children {
			if c == EmptyChild {
				continue
			}
			cn := t.store.Get(c)
			idx := t.representativeIndex(cn)
			if !idx.IsEmpty() {
				return idx
			}
		}
	}
	return palette.EmptyIndex
}

func (t *Tree) firstVoxel(b *brick.Brick) palette.Index {
	if b.Kind == brick.KindSolid {
		return b.Solid
	}
	if b.Kind == brick.KindEmpty {
		return palette.EmptyIndex
	}
	for _, v := range b.Voxels {
		if !v.IsEmpty() {
			return v
		}
	}
	return palette.EmptyIndex
}

// resampleMip turns 64 per-sectant sample indices into a brickDim^3 brick
// using the configured strategy (spec 4.G), resolving actual RGBA values
// through palettes where a strategy needs real color arithmetic rather
// than an index comparison.
//
//   - BoxFilter: true per-channel averaging (grounded on
//     original_source/src/octree/update/mipmap.rs's sample_from, which
//     sums each sampled r/g/b/a channel and divides by the sample count)
//     of every child sample that lands on the same output brick cell,
//     then interns the blended color — this introduces new colors not
//     present in either palette beforehand, same as the original.
//   - PointFilter: picks one child's existing sample per output region
//     verbatim — introduces no new colors, matching original_source's
//     PointFilter doc comment.
//   - PointFilterBD: like PointFilter, but with each sample's data
//     component cleared first (the "BD" — bottom-data-discarding —
//     variants keep the MIP purely visual).
//   - Posterize(epsilon)/PosterizeBD(epsilon): groups all 64 child samples
//     into epsilon-similarity clusters (per-channel difference within
//     epsilon*255) and collapses the whole MIP brick to a single solid
//     fill using the largest cluster's average color — matching
//     original_source's types.rs doc comment ("ε-similarity grouping,
//     picks the largest group's average") and spec 4.G's framing of a MIP
//     as a "single-color... average for raytracing LoD".
func resampleMip(palettes *palette.Palettes, samples []palette.Index, cfg MipLevelConfig, brickDim int) brick.Brick {
	n := brickDim
	switch cfg.Method {
	case MipBoxFilter:
		return boxFilterMip(palettes, samples, n)
	case MipPointFilterBD:
		return pointFilterMip(stripData(samples), n)
	case MipPosterize:
		return posterizeMip(palettes, samples, cfg.Epsilon, n, true)
	case MipPosterizeBD:
		return posterizeMip(palettes, stripData(samples), cfg.Epsilon, n, false)
	default: // MipPointFilter
		return pointFilterMip(samples, n)
	}
}

// stripData clears the data component of every sample, for the "BD"
// strategy variants that keep a MIP purely visual.
func stripData(samples []palette.Index) []palette.Index {
	out := make([]palette.Index, len(samples))
	for i, s := range samples {
		out[i] = palette.Index{Color: s.Color, Data: palette.AbsentIndex}
	}
	return out
}

// pointFilterMip places each non-empty sample verbatim at the single cell
// its sectant maps to, introducing no new palette entries.
func pointFilterMip(samples []palette.Index, n int) brick.Brick {
	out := brick.Empty(n)
	filled := false
	for i := 0; i < 64; i++ {
		if samples[i].IsEmpty() {
			continue
		}
		filled = true
		x := (i % 4) * n / 4
		y := ((i / 4) % 4) * n / 4
		z := (i / 16) * n / 4
		out.Set(x, y, z, samples[i])
	}
	if !filled {
		return brick.Empty(n)
	}
	out.TryCollapseSolid()
	return out
}

// mipCellAccum accumulates the per-channel color sum of every sample that
// spreads onto one output brick cell, for boxFilterMip's real averaging.
type mipCellAccum struct {
	sum     [4]int
	count   int
	data    palette.Index
	hasData bool
}

// boxFilterMip spreads each sample across the brick region it represents
// (mipSubRange) as before, but where more than one sample lands on the
// same output cell (the case when brickDim < 4 collapses multiple
// sectants onto shared cells), it genuinely averages their resolved
// colors per channel instead of letting the last write win.
func boxFilterMip(palettes *palette.Palettes, samples []palette.Index, n int) brick.Brick {
	cells := make(map[[3]int]*mipCellAccum)
	for i := 0; i < 64; i++ {
		s := samples[i]
		if s.IsEmpty() {
			continue
		}
		col, ok := palettes.Colors.Lookup(s.Color)
		if !ok {
			continue
		}
		xlo, xhi := mipSubRange(n, i%4)
		ylo, yhi := mipSubRange(n, (i/4)%4)
		zlo, zhi := mipSubRange(n, i/16)
		for z := zlo; z < zhi; z++ {
			for y := ylo; y < yhi; y++ {
				for x := xlo; x < xhi; x++ {
					key := [3]int{x, y, z}
					a := cells[key]
					if a == nil {
						a = &mipCellAccum{}
						cells[key] = a
					}
					for ch := 0; ch < 4; ch++ {
						a.sum[ch] += int(col[ch])
					}
					a.count++
					if !a.hasData {
						a.data = s
						a.hasData = true
					}
				}
			}
		}
	}
	if len(cells) == 0 {
		return brick.Empty(n)
	}

	out := brick.Empty(n)
	for key, a := range cells {
		var avg palette.Color
		for ch := 0; ch < 4; ch++ {
			avg[ch] = uint8(a.sum[ch] / a.count)
		}
		ci, err := palettes.Colors.Intern(avg)
		if err != nil {
			continue
		}
		out.Set(key[0], key[1], key[2], palette.Index{Color: ci, Data: a.data.Data})
	}
	out.TryCollapseSolid()
	return out
}

// posterizeMip groups every non-empty sample into epsilon-similarity
// clusters (per-channel difference from the cluster's running average
// within epsilon*255) and returns a brickDim^3 solid brick filled with the
// largest cluster's average color, per original_source's "largest group's
// average" Posterize semantics.
func posterizeMip(palettes *palette.Palettes, samples []palette.Index, epsilon float32, n int, keepData bool) brick.Brick {
	threshold := float64(epsilon) * 255

	type cluster struct {
		sum     [4]float64
		count   int
		dataIdx uint16
		hasData bool
	}
	var clusters []*cluster

	for _, s := range samples {
		if s.IsEmpty() {
			continue
		}
		col, ok := palettes.Colors.Lookup(s.Color)
		if !ok {
			continue
		}
		var best *cluster
		for _, c := range clusters {
			match := true
			for ch := 0; ch < 4; ch++ {
				avg := c.sum[ch] / float64(c.count)
				diff := avg - float64(col[ch])
				if diff > threshold || diff < -threshold {
					match = false
					break
				}
			}
			if match {
				best = c
				break
			}
		}
		if best == nil {
			best = &cluster{}
			clusters = append(clusters, best)
		}
		for ch := 0; ch < 4; ch++ {
			best.sum[ch] += float64(col[ch])
		}
		best.count++
		if keepData && !best.hasData && s.Data != palette.AbsentIndex {
			best.dataIdx = s.Data
			best.hasData = true
		}
	}

	if len(clusters) == 0 {
		return brick.Empty(n)
	}

	largest := clusters[0]
	for _, c := range clusters[1:] {
		if c.count > largest.count {
			largest = c
		}
	}

	var avg palette.Color
	for ch := 0; ch < 4; ch++ {
		avg[ch] = uint8(largest.sum[ch] / float64(largest.count))
	}
	ci, err := palettes.Colors.Intern(avg)
	if err != nil {
		return brick.Empty(n)
	}
	idx := palette.Index{Color: ci, Data: palette.AbsentIndex}
	if keepData && largest.hasData {
		idx.Data = largest.dataIdx
	}
	return brick.NewSolid(n, idx)
}

func mipSubRange(n, sub int) (lo, hi int) {
	lo = sub * n / 4
	hi = (sub + 1) * n / 4
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}
