package clipmap

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/logic/mathx"
)

// ChunkKey identifies one chunk of the octree. Minimum is expressed in the voxel
// coordinates of its own LOD (world = Minimum << LOD) and is always a multiple of
// the chunk edge.
type ChunkKey struct {
	Minimum [3]int32
	LOD     uint8
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("L%d(%d,%d,%d)", k.LOD, k.Minimum[0], k.Minimum[1], k.Minimum[2])
}

// Less orders keys by LOD, then z, y, x.
func Less(a, b ChunkKey) bool {
	if a.LOD != b.LOD {
		return a.LOD < b.LOD
	}
	for i := 2; i >= 0; i-- {
		if a.Minimum[i] != b.Minimum[i] {
			return a.Minimum[i] < b.Minimum[i]
		}
	}
	return false
}

func SortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
}

// Indexer converts between chunk keys and world space for a fixed chunk shape.
type Indexer struct {
	exp  uint8
	edge int32
}

func NewIndexer(chunkExponent uint8) Indexer {
	return Indexer{exp: chunkExponent, edge: int32(1) << chunkExponent}
}

// Edge is the chunk edge length in voxels (identical at every LOD).
func (ix Indexer) Edge() int32 { return ix.edge }

func (ix Indexer) Exponent() uint8 { return ix.exp }

// Volume is the number of voxels in one chunk.
func (ix Indexer) Volume() int {
	e := int(ix.edge)
	return e * e * e
}

// KeyForCoord builds the key of the chunk at chunk-grid coordinate c.
func (ix Indexer) KeyForCoord(lod uint8, c [3]int32) ChunkKey {
	return ChunkKey{
		Minimum: [3]int32{c[0] * ix.edge, c[1] * ix.edge, c[2] * ix.edge},
		LOD:     lod,
	}
}

// Coord returns the chunk-grid coordinate of k.
func (ix Indexer) Coord(k ChunkKey) [3]int32 {
	return [3]int32{
		mathx.FloorDiv32(k.Minimum[0], ix.edge),
		mathx.FloorDiv32(k.Minimum[1], ix.edge),
		mathx.FloorDiv32(k.Minimum[2], ix.edge),
	}
}

func (ix Indexer) Aligned(k ChunkKey) bool {
	for i := 0; i < 3; i++ {
		if k.Minimum[i]%ix.edge != 0 {
			return false
		}
	}
	return true
}

// WorldEdge is the world-space edge length of a chunk at lod.
func (ix Indexer) WorldEdge(lod uint8) float32 {
	return float32(int64(ix.edge) << lod)
}

// WorldMin is the world-space minimum corner of k.
func (ix Indexer) WorldMin(k ChunkKey) mgl32.Vec3 {
	s := float32(int64(1) << k.LOD)
	return mgl32.Vec3{float32(k.Minimum[0]) * s, float32(k.Minimum[1]) * s, float32(k.Minimum[2]) * s}
}

// WorldCenter is the world-space centre of k.
func (ix Indexer) WorldCenter(k ChunkKey) mgl32.Vec3 {
	h := ix.WorldEdge(k.LOD) / 2
	return ix.WorldMin(k).Add(mgl32.Vec3{h, h, h})
}

// Parent returns the key one LOD up that contains k.
func (ix Indexer) Parent(k ChunkKey) ChunkKey {
	c := ix.Coord(k)
	return ix.KeyForCoord(k.LOD+1, [3]int32{
		mathx.FloorDiv32(c[0], 2),
		mathx.FloorDiv32(c[1], 2),
		mathx.FloorDiv32(c[2], 2),
	})
}

// AncestorAt walks k up to lod. lod must not be below k.LOD.
func (ix Indexer) AncestorAt(k ChunkKey, lod uint8) ChunkKey {
	if lod < k.LOD {
		panic(fmt.Sprintf("clipmap: ancestor lod %d below key %v", lod, k))
	}
	for k.LOD < lod {
		k = ix.Parent(k)
	}
	return k
}

// Contains reports whether d lies inside the subtree rooted at k (k included).
func (ix Indexer) Contains(k, d ChunkKey) bool {
	if d.LOD > k.LOD {
		return false
	}
	return ix.AncestorAt(d, k.LOD) == k
}

// Octant returns the octant index (x | y<<1 | z<<2) of child c within its parent.
func (ix Indexer) Octant(c ChunkKey) int {
	cc := ix.Coord(c)
	return int(mathx.Mod(int(cc[0]), 2)) | int(mathx.Mod(int(cc[1]), 2))<<1 | int(mathx.Mod(int(cc[2]), 2))<<2
}

// Children returns the eight children of k in octant order. k.LOD must be > 0.
func (ix Indexer) Children(k ChunkKey) [8]ChunkKey {
	if k.LOD == 0 {
		panic(fmt.Sprintf("clipmap: children of leaf %v", k))
	}
	var out [8]ChunkKey
	base := [3]int32{k.Minimum[0] * 2, k.Minimum[1] * 2, k.Minimum[2] * 2}
	for i := 0; i < 8; i++ {
		out[i] = ChunkKey{
			Minimum: [3]int32{
				base[0] + int32(i&1)*ix.edge,
				base[1] + int32((i>>1)&1)*ix.edge,
				base[2] + int32((i>>2)&1)*ix.edge,
			},
			LOD: k.LOD - 1,
		}
	}
	return out
}

// Descendants visits every key of the subtree below k (k excluded), finest LOD last.
func (ix Indexer) Descendants(k ChunkKey, fn func(ChunkKey)) {
	if k.LOD == 0 {
		return
	}
	for _, c := range ix.Children(k) {
		fn(c)
		ix.Descendants(c, fn)
	}
}

// Intersects reports whether the world AABB of k touches s.
func (ix Indexer) Intersects(k ChunkKey, s Sphere) bool {
	min := ix.WorldMin(k)
	e := ix.WorldEdge(k.LOD)
	return s.IntersectsBox(min, min.Add(mgl32.Vec3{e, e, e}))
}
