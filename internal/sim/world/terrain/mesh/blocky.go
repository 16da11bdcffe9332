package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Blocky emits one unit cube face per solid voxel side that borders empty space.
type Blocky struct{}

type face struct {
	dir     [3]int
	normal  mgl32.Vec3
	corners [4][3]float32
}

var faces = [6]face{
	{[3]int{-1, 0, 0}, mgl32.Vec3{-1, 0, 0}, [4][3]float32{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]int{1, 0, 0}, mgl32.Vec3{1, 0, 0}, [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]int{0, -1, 0}, mgl32.Vec3{0, -1, 0}, [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]int{0, 1, 0}, mgl32.Vec3{0, 1, 0}, [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]int{0, 0, -1}, mgl32.Vec3{0, 0, -1}, [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
	{[3]int{0, 0, 1}, mgl32.Vec3{0, 0, 1}, [4][3]float32{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
}

func (Blocky) CreateMesh(key clipmap.ChunkKey, n *store.Neighborhood) (*PosNormMesh, bool) {
	if n == nil || n.Pad < 1 || n.Empty() {
		return nil, false
	}
	scale := lodScale(key)
	out := &PosNormMesh{}
	lo, hi := n.Pad, n.Pad+n.Edge
	for z := lo; z < hi; z++ {
		for y := lo; y < hi; y++ {
			for x := lo; x < hi; x++ {
				if n.At(x, y, z) >= 0 {
					continue
				}
				for _, f := range faces {
					if n.At(x+f.dir[0], y+f.dir[1], z+f.dir[2]) < 0 {
						continue
					}
					var idx [4]uint32
					for i, c := range f.corners {
						p := mgl32.Vec3{
							(float32(x-lo) + c[0]) * scale,
							(float32(y-lo) + c[1]) * scale,
							(float32(z-lo) + c[2]) * scale,
						}
						idx[i] = out.addVertex(p, f.normal)
					}
					out.addQuad(idx[0], idx[1], idx[2], idx[3], false)
				}
			}
		}
	}
	if out.Empty() {
		return nil, false
	}
	return out, true
}
