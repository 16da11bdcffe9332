// Package render defines the graphics submission boundary of the terrain engine.
package render

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/terrain/mesh"
)

type Color struct {
	R, G, B, A float32
}

func RGB(r, g, b float32) Color { return Color{R: r, G: g, B: b, A: 1} }

type MeshHandle uint32
type MaterialHandle uint32

// Renderer is implemented by the graphics layer. Handles are opaque.
type Renderer interface {
	UploadMesh(m *mesh.PosNormMesh) MeshHandle
	UploadMaterial(c Color) MaterialHandle
	ReleaseMesh(h MeshHandle)
	Draw(m MeshHandle, mat MaterialHandle, transform mgl32.Mat4)
}
