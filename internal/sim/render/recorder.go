package render

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world/terrain/mesh"
)

// DrawCall is one recorded Draw.
type DrawCall struct {
	Mesh      MeshHandle
	Material  MaterialHandle
	Transform mgl32.Mat4
}

// Recorder is a headless Renderer that keeps uploaded meshes in memory and records
// draw calls per frame.
type Recorder struct {
	mu        sync.Mutex
	nextMesh  MeshHandle
	meshes    map[MeshHandle]*mesh.PosNormMesh
	materials []Color
	draws     []DrawCall
	uploads   int
	releases  int
}

func NewRecorder() *Recorder {
	return &Recorder{meshes: map[MeshHandle]*mesh.PosNormMesh{}}
}

func (r *Recorder) UploadMesh(m *mesh.PosNormMesh) MeshHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMesh++
	r.meshes[r.nextMesh] = m
	r.uploads++
	return r.nextMesh
}

func (r *Recorder) UploadMaterial(c Color) MaterialHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.materials = append(r.materials, c)
	return MaterialHandle(len(r.materials))
}

func (r *Recorder) ReleaseMesh(h MeshHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meshes[h]; !ok {
		panic("render: release of unknown mesh")
	}
	delete(r.meshes, h)
	r.releases++
}

func (r *Recorder) Draw(m MeshHandle, mat MaterialHandle, transform mgl32.Mat4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws = append(r.draws, DrawCall{Mesh: m, Material: mat, Transform: transform})
}

// BeginFrame clears the recorded draw calls.
func (r *Recorder) BeginFrame() {
	r.mu.Lock()
	r.draws = r.draws[:0]
	r.mu.Unlock()
}

type FrameStats struct {
	Draws     int `json:"draws"`
	Triangles int `json:"triangles"`
	Resident  int `json:"resident_meshes"`
	Uploads   int `json:"uploads"`
	Releases  int `json:"releases"`
}

// Stats summarises the draws recorded since BeginFrame.
func (r *Recorder) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := FrameStats{Draws: len(r.draws), Resident: len(r.meshes), Uploads: r.uploads, Releases: r.releases}
	for _, d := range r.draws {
		s.Triangles += r.meshes[d.Mesh].Triangles()
	}
	return s
}

func (r *Recorder) Draws() []DrawCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DrawCall(nil), r.draws...)
}

func (r *Recorder) Material(h MaterialHandle) (Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := int(h) - 1
	if i < 0 || i >= len(r.materials) {
		return Color{}, false
	}
	return r.materials[i], true
}

func (r *Recorder) Mesh(h MeshHandle) (*mesh.PosNormMesh, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meshes[h]
	return m, ok
}
