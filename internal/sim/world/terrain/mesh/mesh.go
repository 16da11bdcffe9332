package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// PosNormMesh is an indexed triangle list. Positions are relative to the chunk's
// world minimum and already scaled to world units.
type PosNormMesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
}

func (m *PosNormMesh) Triangles() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

func (m *PosNormMesh) Empty() bool { return m.Triangles() == 0 }

func (m *PosNormMesh) addVertex(p, n mgl32.Vec3) uint32 {
	m.Positions = append(m.Positions, p)
	m.Normals = append(m.Normals, n)
	return uint32(len(m.Positions) - 1)
}

func (m *PosNormMesh) addQuad(a, b, c, d uint32, flip bool) {
	if flip {
		m.Indices = append(m.Indices, a, c, b, a, d, c)
		return
	}
	m.Indices = append(m.Indices, a, b, c, a, c, d)
}

// Mesher extracts a surface from a padded neighbourhood. It returns false when
// the neighbourhood produces no triangles.
type Mesher interface {
	CreateMesh(key clipmap.ChunkKey, n *store.Neighborhood) (*PosNormMesh, bool)
}

func lodScale(key clipmap.ChunkKey) float32 {
	return float32(int64(1) << key.LOD)
}
