package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// SurfaceNets produces a smooth mesh with one vertex per sign-changing cell.
// It needs a neighbourhood padded by at least one sample.
type SurfaceNets struct{}

var cubeEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

func cornerOffset(i int) (int, int, int) {
	return i & 1, (i >> 1) & 1, (i >> 2) & 1
}

func (SurfaceNets) CreateMesh(key clipmap.ChunkKey, n *store.Neighborhood) (*PosNormMesh, bool) {
	if n == nil || n.Pad < 1 || n.Empty() {
		return nil, false
	}
	size := n.Size()
	cells := size - 1
	vertexAt := make([]int32, cells*cells*cells)
	for i := range vertexAt {
		vertexAt[i] = -1
	}
	scale := lodScale(key)
	pad := float32(n.Pad)
	out := &PosNormMesh{}

	var corner [8]float32
	for z := 0; z < cells; z++ {
		for y := 0; y < cells; y++ {
			for x := 0; x < cells; x++ {
				inside := 0
				for i := 0; i < 8; i++ {
					dx, dy, dz := cornerOffset(i)
					corner[i] = n.At(x+dx, y+dy, z+dz)
					if corner[i] < 0 {
						inside++
					}
				}
				if inside == 0 || inside == 8 {
					continue
				}

				var sum mgl32.Vec3
				crossings := 0
				for _, e := range cubeEdges {
					a, b := corner[e[0]], corner[e[1]]
					if (a < 0) == (b < 0) {
						continue
					}
					t := a / (a - b)
					ax, ay, az := cornerOffset(e[0])
					bx, by, bz := cornerOffset(e[1])
					sum = sum.Add(mgl32.Vec3{
						float32(ax) + t*float32(bx-ax),
						float32(ay) + t*float32(by-ay),
						float32(az) + t*float32(bz-az),
					})
					crossings++
				}
				c := sum.Mul(1 / float32(crossings))
				p := mgl32.Vec3{
					(float32(x) - pad + c[0]) * scale,
					(float32(y) - pad + c[1]) * scale,
					(float32(z) - pad + c[2]) * scale,
				}
				g := mgl32.Vec3{
					(corner[1] + corner[3] + corner[5] + corner[7]) - (corner[0] + corner[2] + corner[4] + corner[6]),
					(corner[2] + corner[3] + corner[6] + corner[7]) - (corner[0] + corner[1] + corner[4] + corner[5]),
					(corner[4] + corner[5] + corner[6] + corner[7]) - (corner[0] + corner[1] + corner[2] + corner[3]),
				}
				if g.Len() > 0 {
					g = g.Normalize()
				}
				vertexAt[x+cells*(y+cells*z)] = int32(out.addVertex(p, g))
			}
		}
	}

	cell := func(x, y, z int) uint32 {
		v := vertexAt[x+cells*(y+cells*z)]
		if v < 0 {
			panic("mesh: surface edge without vertex")
		}
		return uint32(v)
	}

	lo, hi := n.Pad, n.Pad+n.Edge
	for z := lo; z < hi; z++ {
		for y := lo; y < hi; y++ {
			for x := lo; x < hi; x++ {
				v := n.At(x, y, z)
				solid := v < 0
				// +x edge: cells share the y/z faces around it.
				if solid != (n.At(x+1, y, z) < 0) {
					out.addQuad(cell(x, y-1, z-1), cell(x, y, z-1), cell(x, y, z), cell(x, y-1, z), !solid)
				}
				if solid != (n.At(x, y+1, z) < 0) {
					out.addQuad(cell(x-1, y, z-1), cell(x-1, y, z), cell(x, y, z), cell(x, y, z-1), !solid)
				}
				if solid != (n.At(x, y, z+1) < 0) {
					out.addQuad(cell(x-1, y-1, z), cell(x, y-1, z), cell(x, y, z), cell(x-1, y, z), !solid)
				}
			}
		}
	}
	if out.Empty() {
		return nil, false
	}
	return out, true
}
