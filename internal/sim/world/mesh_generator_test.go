package world

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"

	"voxelstream.ai/internal/sim/budget"
	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tasks"
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/mesh"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

type meshFixture struct {
	index  *clipmap.Index
	tree   *store.Tree
	rec    *render.Recorder
	meshes *MeshGenerator[mesh.SurfaceNets]
	root   clipmap.ChunkKey
	kids   [8]clipmap.ChunkKey
}

// newMeshFixture stores a ball of radius 6 centred on the shared corner of the
// eight children of the LOD 1 root at the origin, so every child and the root
// carry surface.
func newMeshFixture(t *testing.T) *meshFixture {
	t.Helper()
	tree, err := store.NewTree(4)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	ix := tree.Indexer()
	root := clipmap.ChunkKey{LOD: 1}
	kids := ix.Children(root)
	edge := int(ix.Edge())
	center := mgl32.Vec3{16, 16, 16}
	for _, k := range kids {
		c := store.NewDense(ix.Volume())
		for z := 0; z < edge; z++ {
			for y := 0; y < edge; y++ {
				for x := 0; x < edge; x++ {
					p := mgl32.Vec3{float32(int(k.Minimum[0]) + x), float32(int(k.Minimum[1]) + y), float32(int(k.Minimum[2]) + z)}
					c.Voxels[x+edge*(y+edge*z)] = p.Sub(center).Len() - 6
				}
			}
		}
		tree.Write(k, c)
	}
	parent := &store.Chunk{}
	tree.DownsampleChildrenInto(root, parent)
	tree.Write(root, parent)

	index := clipmap.NewIndex(clipmap.Config{ChunkExponent: 4, NumLODs: 2, EnterLOD: 1}, tree)
	pool := tasks.NewPool(2)
	t.Cleanup(pool.StopAndWait)

	cfg := MapConfig{ChunkExponent: 4, NumLODs: 2, DetectEnterLOD: 1}
	cfg.applyDefaults()
	rec := render.NewRecorder()
	m := NewMeshGenerator(mesh.SurfaceNets{}, cfg, index, tree, pool, 2, rec, otel.Tracer("test"), nil)
	return &meshFixture{index: index, tree: tree, rec: rec, meshes: m, root: root, kids: kids}
}

func (f *meshFixture) has(k clipmap.ChunkKey) bool {
	_, ok := f.meshes.Drawable(k)
	return ok
}

func (f *meshFixture) countKids() int {
	n := 0
	for _, k := range f.kids {
		if f.has(k) {
			n++
		}
	}
	return n
}

func TestSplitSwapsMeshesInOneUpdate(t *testing.T) {
	f := newMeshFixture(t)
	ctx := context.Background()
	clip := clipmap.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 200}
	near := mgl32.Vec3{16, 16, 16}

	rep := f.meshes.Update(ctx, clip, near)
	if rep.Spawns != 1 || rep.Started != 1 {
		t.Fatalf("first update: %+v", rep)
	}

	rep = f.meshes.Update(ctx, clip, near)
	if rep.Applied != 1 || rep.Splits != 1 || rep.Started != 8 {
		t.Fatalf("second update: %+v", rep)
	}
	// The split is queued: the parent stays until the children land.
	if !f.has(f.root) || f.countKids() != 0 {
		t.Fatalf("after split event: root=%v kids=%d", f.has(f.root), f.countKids())
	}

	rep = f.meshes.Update(ctx, clip, near)
	if rep.Applied != 8 {
		t.Fatalf("third update: %+v", rep)
	}
	if f.has(f.root) {
		t.Fatalf("parent mesh survived the split")
	}
	if got := f.countKids(); got != 8 {
		t.Fatalf("children present=%d want 8", got)
	}
	if f.rec.Stats().Resident != 8 {
		t.Fatalf("renderer holds %d meshes", f.rec.Stats().Resident)
	}
}

func TestMergeSwapsMeshesInOneUpdate(t *testing.T) {
	f := newMeshFixture(t)
	ctx := context.Background()
	clip := clipmap.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 200}
	near := mgl32.Vec3{16, 16, 16}
	for i := 0; i < 3; i++ {
		f.meshes.Update(ctx, clip, near)
	}
	if f.countKids() != 8 {
		t.Fatalf("setup: kids=%d", f.countKids())
	}

	far := mgl32.Vec3{5000, 16, 16}
	rep := f.meshes.Update(ctx, clip, far)
	if rep.Merges != 1 || rep.Started != 1 {
		t.Fatalf("merge event: %+v", rep)
	}
	if f.has(f.root) || f.countKids() != 8 {
		t.Fatalf("merge applied early")
	}

	f.meshes.Update(ctx, clip, far)
	if !f.has(f.root) {
		t.Fatalf("parent missing after merge")
	}
	if got := f.countKids(); got != 0 {
		t.Fatalf("children left after merge: %d", got)
	}
	if f.rec.Stats().Resident != 1 {
		t.Fatalf("renderer holds %d meshes", f.rec.Stats().Resident)
	}
}

func TestCleanupDropsMeshesOutsideClip(t *testing.T) {
	f := newMeshFixture(t)
	ctx := context.Background()
	clip := clipmap.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 100}
	f.meshes.Update(ctx, clip, clip.Center)
	f.meshes.Update(ctx, clip, mgl32.Vec3{5000, 0, 0})
	if !f.has(f.root) {
		t.Fatalf("root not meshed")
	}
	away := clipmap.Sphere{Center: mgl32.Vec3{9000, 0, 0}, Radius: 100}
	rep := f.meshes.Update(ctx, away, away.Center)
	if rep.CleanedUp != 1 || f.meshes.Len() != 0 {
		t.Fatalf("cleanup: %+v len=%d", rep, f.meshes.Len())
	}
	if f.rec.Stats().Resident != 0 {
		t.Fatalf("released meshes still resident")
	}
}

func TestRenderDrawsEveryEntity(t *testing.T) {
	f := newMeshFixture(t)
	ctx := context.Background()
	clip := clipmap.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 200}
	for i := 0; i < 3; i++ {
		f.meshes.Update(ctx, clip, clip.Center)
	}
	f.rec.BeginFrame()
	f.meshes.Render(f.rec)
	draws := f.rec.Draws()
	if len(draws) != 8 {
		t.Fatalf("draws=%d", len(draws))
	}
	lod0, _ := f.rec.Material(draws[0].Material)
	if lod0 != render.RGB(1, 0, 0) {
		t.Fatalf("lod 0 material=%+v", lod0)
	}
}

func TestZeroAllowanceFrameKeepsRenderStateConsistent(t *testing.T) {
	f := newMeshFixture(t)
	ctx := context.Background()
	full := clipmap.Sphere{Center: mgl32.Vec3{16, 16, 16}, Radius: 200}
	near := mgl32.Vec3{16, 16, 16}
	for i := 0; i < 3; i++ {
		f.meshes.Update(ctx, full, near)
	}
	if f.countKids() != 8 {
		t.Fatalf("setup: kids=%d", f.countKids())
	}

	normal := f.meshes.budget
	f.meshes.budget = budget.New(0, 1)
	// Touches the root and the low-x children only.
	narrow := clipmap.Sphere{Center: mgl32.Vec3{-50, 8, 8}, Radius: 55}
	rep := f.meshes.Update(ctx, narrow, near)
	if rep.Allowance != 0 || rep.Started != 0 || f.meshes.Pending() != 0 {
		t.Fatalf("overrun frame started work: %+v", rep)
	}
	if rep.CleanedUp != 4 {
		t.Fatalf("cleaned up %d meshes, want 4", rep.CleanedUp)
	}
	for _, k := range f.kids {
		if f.index.Rendered(k) != f.has(k) {
			t.Fatalf("%v: rendered=%v mesh=%v", k, f.index.Rendered(k), f.has(k))
		}
	}

	f.meshes.budget = normal
	for i := 0; i < 10; i++ {
		f.meshes.Update(ctx, full, near)
	}
	for _, k := range f.kids {
		if !f.has(k) {
			t.Fatalf("chunk %v never got its mesh back", k)
		}
	}
	if f.has(f.root) || f.rec.Stats().Resident != 8 {
		t.Fatalf("root=%v resident=%d", f.has(f.root), f.rec.Stats().Resident)
	}
}
