package clipmap

import "math"

// coordRange returns an inclusive chunk-grid range covering the bounding box of s
// at lod, padded by one chunk so that boundary contacts are decided by the exact
// box test alone.
func (ix Indexer) coordRange(s Sphere, lod uint8) (lo, hi [3]int32) {
	w := float64(ix.WorldEdge(lod))
	r := float64(s.Radius)
	for i := 0; i < 3; i++ {
		c := float64(s.Center[i])
		lo[i] = int32(math.Floor((c-r)/w)) - 1
		hi[i] = int32(math.Floor((c+r)/w)) + 1
	}
	return lo, hi
}

func (ix Indexer) scan(s Sphere, lod uint8, keep func(ChunkKey) bool) []ChunkKey {
	if s.Empty() {
		return nil
	}
	lo, hi := ix.coordRange(s, lod)
	var out []ChunkKey
	// z outermost so the result is already in key order.
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				k := ix.KeyForCoord(lod, [3]int32{x, y, z})
				if !ix.Intersects(k, s) {
					continue
				}
				if keep != nil && !keep(k) {
					continue
				}
				out = append(out, k)
			}
		}
	}
	return out
}

// ChunksIntersecting returns every key at lod whose AABB intersects s, in key order.
func (ix Indexer) ChunksIntersecting(s Sphere, lod uint8) []ChunkKey {
	return ix.scan(s, lod, nil)
}

// NewChunksIntersecting returns the keys at lod that intersect next but not prev.
// Only the bounding box of next is scanned.
func (ix Indexer) NewChunksIntersecting(prev, next Sphere, lod uint8) []ChunkKey {
	if prev == next {
		return nil
	}
	return ix.scan(next, lod, func(k ChunkKey) bool {
		return !ix.Intersects(k, prev)
	})
}
