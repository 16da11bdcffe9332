package world

import (
	"context"
	"log"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voxelstream.ai/internal/sim/arena"
	"voxelstream.ai/internal/sim/budget"
	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tasks"
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/mesh"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Drawable is one uploaded chunk mesh.
type Drawable struct {
	Key       clipmap.ChunkKey
	Mesh      render.MeshHandle
	Material  render.MaterialHandle
	Transform mgl32.Mat4
	Triangles int
}

type meshed struct {
	Key  clipmap.ChunkKey
	Mesh *mesh.PosNormMesh
}

// MesherReport summarises one mesh generator update.
type MesherReport struct {
	CleanedUp int `json:"cleaned_up"`
	Applied   int `json:"applied"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
	Allowance int `json:"allowance"`
	Spawns    int `json:"spawns"`
	Splits    int `json:"splits"`
	Merges    int `json:"merges"`
	Started   int `json:"started"`
}

// MeshGenerator keeps one drawable per rendered chunk. The meshing strategy is
// fixed by M.
type MeshGenerator[M mesh.Mesher] struct {
	mesher    M
	cfg       MapConfig
	index     *clipmap.Index
	tree      *store.Tree
	pool      pond.Pool
	budget    *budget.FrameBudget
	renderer  render.Renderer
	materials []render.MaterialHandle
	tracer    trace.Tracer
	logger    *log.Logger

	entities *arena.Arena[Drawable]
	byKey    map[clipmap.ChunkKey]arena.Index
	pending  []*tasks.Task[meshed]
	removals []clipmap.ChunkKey
}

func NewMeshGenerator[M mesh.Mesher](mesher M, cfg MapConfig, index *clipmap.Index, tree *store.Tree, pool pond.Pool, threads int, renderer render.Renderer, tracer trace.Tracer, logger *log.Logger) *MeshGenerator[M] {
	m := &MeshGenerator[M]{
		mesher:   mesher,
		cfg:      cfg,
		index:    index,
		tree:     tree,
		pool:     pool,
		budget:   budget.New(cfg.MesherBudgetUs, threads),
		renderer: renderer,
		tracer:   tracer,
		logger:   logger,
		entities: arena.New[Drawable](),
		byKey:    map[clipmap.ChunkKey]arena.Index{},
	}
	for _, c := range cfg.LODColors {
		m.materials = append(m.materials, renderer.UploadMaterial(c))
	}
	return m
}

func (m *MeshGenerator[M]) Pending() int { return len(m.pending) }

func (m *MeshGenerator[M]) Estimate() time.Duration { return m.budget.Estimate() }

func (m *MeshGenerator[M]) Len() int { return m.entities.Len() }

// Drawable returns the entity for key.
func (m *MeshGenerator[M]) Drawable(key clipmap.ChunkKey) (Drawable, bool) {
	i, ok := m.byKey[key]
	if !ok {
		return Drawable{}, false
	}
	return m.entities.Get(i)
}

func (m *MeshGenerator[M]) material(lod uint8) render.MaterialHandle {
	return m.materials[int(lod)%len(m.materials)]
}

// Update runs one frame of the meshing stage.
func (m *MeshGenerator[M]) Update(ctx context.Context, clip clipmap.Sphere, observer mgl32.Vec3) MesherReport {
	var rep MesherReport
	m.budget.ResetTimer()
	rep.CleanedUp = m.cleanup(clip)
	m.complete(ctx, &rep)
	m.budget.UpdateEstimate()
	settled := time.Now()

	rep.Allowance = m.budget.RequestWork(time.Since(settled))
	_, span := m.tracer.Start(ctx, "lod_changes", trace.WithAttributes(attribute.Int("budget", rep.Allowance)))
	m.index.RenderUpdates(clip, m.cfg.Detail, observer, rep.Allowance, func(c clipmap.LodChange) {
		switch ev := c.(type) {
		case clipmap.Spawn:
			rep.Spawns++
			rep.Started += m.start(ev.Key)
		case clipmap.Split:
			rep.Splits++
			m.removals = append(m.removals, ev.Old)
			for _, k := range ev.New {
				rep.Started += m.start(k)
			}
		case clipmap.Merge:
			rep.Merges++
			m.removals = append(m.removals, ev.Old...)
			rep.Started += m.start(ev.New)
		}
	})
	span.End()
	return rep
}

// cleanup removes entities whose chunk no longer touches the clip sphere.
func (m *MeshGenerator[M]) cleanup(clip clipmap.Sphere) int {
	var gone []clipmap.ChunkKey
	for k := range m.byKey {
		if !m.index.Intersects(k, clip) {
			gone = append(gone, k)
		}
	}
	for _, k := range gone {
		m.remove(k)
	}
	return len(gone)
}

// complete applies every finished task, then every queued removal, so a split or
// merge swaps its meshes in a single pass.
func (m *MeshGenerator[M]) complete(ctx context.Context, rep *MesherReport) {
	_, span := m.tracer.Start(ctx, "make_mesh", trace.WithAttributes(attribute.Int("meshes.pending", len(m.pending))))
	defer span.End()

	for _, t := range m.pending {
		res, elapsed, err := t.Join()
		if err != nil {
			rep.Failed++
			if m.logger != nil {
				m.logger.Printf("meshing failed: %v", err)
			}
			continue
		}
		m.budget.CompleteItem(elapsed)
		if res.Mesh == nil {
			if m.remove(res.Key) {
				rep.Removed++
			}
			continue
		}
		m.upsert(res.Key, res.Mesh)
		rep.Applied++
	}
	m.pending = m.pending[:0]

	for _, k := range m.removals {
		if m.remove(k) {
			rep.Removed++
		}
	}
	m.removals = m.removals[:0]
}

func (m *MeshGenerator[M]) upsert(key clipmap.ChunkKey, pm *mesh.PosNormMesh) {
	d := Drawable{
		Key:       key,
		Mesh:      m.renderer.UploadMesh(pm),
		Material:  m.material(key.LOD),
		Transform: mgl32.Translate3D(m.index.WorldMin(key).Elem()),
		Triangles: pm.Triangles(),
	}
	if i, ok := m.byKey[key]; ok {
		if old, ok := m.entities.Remove(i); ok {
			m.renderer.ReleaseMesh(old.Mesh)
		}
	}
	m.byKey[key] = m.entities.Insert(d)
}

func (m *MeshGenerator[M]) remove(key clipmap.ChunkKey) bool {
	i, ok := m.byKey[key]
	if !ok {
		return false
	}
	delete(m.byKey, key)
	if d, ok := m.entities.Remove(i); ok {
		m.renderer.ReleaseMesh(d.Mesh)
	}
	return true
}

// start copies the neighbourhood of key and submits a meshing task. Keys without
// chunk data are skipped.
func (m *MeshGenerator[M]) start(key clipmap.ChunkKey) int {
	n, ok := m.tree.CopyNeighborhood(key, 1)
	if !ok {
		return 0
	}
	mesher := m.mesher
	m.pending = append(m.pending, tasks.Spawn(m.pool, func() meshed {
		pm, ok := mesher.CreateMesh(key, n)
		if !ok {
			return meshed{Key: key}
		}
		return meshed{Key: key, Mesh: pm}
	}))
	return 1
}

// Render issues one draw per entity.
func (m *MeshGenerator[M]) Render(r render.Renderer) {
	m.entities.Each(func(_ arena.Index, d Drawable) {
		r.Draw(d.Mesh, d.Material, d.Transform)
	})
}

// Stats counts entities and triangles per LOD.
func (m *MeshGenerator[M]) Stats() (triangles int, perLOD map[uint8]int) {
	perLOD = map[uint8]int{}
	m.entities.Each(func(_ arena.Index, d Drawable) {
		triangles += d.Triangles
		perLOD[d.Key.LOD]++
	})
	return triangles, perLOD
}
