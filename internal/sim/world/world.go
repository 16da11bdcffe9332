package world

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tasks"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/mesh"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

const tracerName = "voxelstream.ai/internal/sim/world"

// Terrain is the frame-driven streaming engine. All methods except Metrics must be
// called from one goroutine.
type Terrain interface {
	Update(ctx context.Context, observer mgl32.Vec3) FrameReport
	Render(r render.Renderer)
	Metrics() Metrics
	Close()
}

// FrameReport describes what one Update did.
type FrameReport struct {
	Frame     uint64          `json:"frame"`
	Observer  [3]float32      `json:"observer"`
	NewSlots  int             `json:"new_slots"`
	Generator GeneratorReport `json:"generator"`
	Mesher    MesherReport    `json:"mesher"`
	StepUs    int64           `json:"step_us"`
}

// System wires the chunk tree, the spatial index and both generators for one
// meshing strategy.
type System[M mesh.Mesher] struct {
	cfg    MapConfig
	logger *log.Logger
	tracer trace.Tracer

	tree   *store.Tree
	index  *clipmap.Index
	clip   clipmap.ClipSpheres
	pool   pond.Pool
	chunks *ChunkGenerator
	meshes *MeshGenerator[M]

	frame      uint64
	setupSlots []clipmap.ChunkKey
	metrics    atomic.Value
}

// New builds a Terrain for cfg.Mesher.
func New(cfg MapConfig, renderer render.Renderer, logger *log.Logger) (Terrain, error) {
	cfg.applyDefaults()
	switch cfg.Mesher {
	case tuning.MesherSurfaceNets:
		return NewSystem(mesh.SurfaceNets{}, cfg, renderer, logger)
	case tuning.MesherBlocky:
		return NewSystem(mesh.Blocky{}, cfg, renderer, logger)
	default:
		return nil, fmt.Errorf("unknown mesher %q", cfg.Mesher)
	}
}

// NewSystem builds the engine and runs the setup scan around cfg.Origin.
func NewSystem[M mesh.Mesher](mesher M, cfg MapConfig, renderer render.Renderer, logger *log.Logger) (*System[M], error) {
	cfg.applyDefaults()
	tree, err := store.NewTree(cfg.ChunkExponent)
	if err != nil {
		return nil, fmt.Errorf("chunk tree: %w", err)
	}
	threads := cfg.Workers
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	pool := tasks.NewPool(threads)
	index := clipmap.NewIndex(clipmap.Config{
		ChunkExponent: cfg.ChunkExponent,
		NumLODs:       cfg.NumLODs,
		EnterLOD:      cfg.DetectEnterLOD,
	}, tree)
	tracer := otel.Tracer(tracerName)

	s := &System[M]{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		tree:   tree,
		index:  index,
		pool:   pool,
		chunks: NewChunkGenerator(cfg, index, tree, pool, threads, tracer, logger),
		meshes: NewMeshGenerator(mesher, cfg, index, tree, pool, threads, renderer, tracer, logger),
	}
	s.setup()
	s.metrics.Store(Metrics{})
	return s, nil
}

// setup seeds the first frame with every enter-LOD slot of the initial sphere.
func (s *System[M]) setup() {
	s.clip.New = clipmap.Sphere{Center: s.cfg.Origin, Radius: s.cfg.ClipRadius}
	s.setupSlots = s.index.NewChunksIntersecting(clipmap.Sphere{}, s.clip.New, s.cfg.DetectEnterLOD)
	if s.logger != nil {
		s.logger.Printf("setup: %d slots at lod %d, radius %.0f", len(s.setupSlots), s.cfg.DetectEnterLOD, s.cfg.ClipRadius)
	}
}

// SetupSlots returns the slots found by the setup scan that have not yet been
// handed to the generator.
func (s *System[M]) SetupSlots() []clipmap.ChunkKey { return s.setupSlots }

// Update advances streaming by one frame: clip spheres, slot detection, chunk
// generation, then meshing.
func (s *System[M]) Update(ctx context.Context, observer mgl32.Vec3) FrameReport {
	start := time.Now()
	s.frame++
	ctx, span := s.tracer.Start(ctx, "terrain_update")
	defer span.End()

	s.clip.Advance(clipmap.Sphere{Center: observer, Radius: s.cfg.ClipRadius})
	detected := s.index.NewChunksIntersecting(s.clip.Old, s.clip.New, s.cfg.DetectEnterLOD)
	slots := detected
	if len(s.setupSlots) > 0 {
		slots = append(s.setupSlots, detected...)
		s.setupSlots = nil
	}

	rep := FrameReport{
		Frame:    s.frame,
		Observer: [3]float32{observer[0], observer[1], observer[2]},
		NewSlots: len(detected),
	}
	rep.Generator = s.chunks.Update(ctx, s.clip, observer, slots)
	rep.Mesher = s.meshes.Update(ctx, s.clip.New, observer)
	rep.StepUs = time.Since(start).Microseconds()

	s.publish(rep)
	return rep
}

// Render draws every resident mesh.
func (s *System[M]) Render(r render.Renderer) { s.meshes.Render(r) }

// Close waits for in-flight tasks and stops the pool.
func (s *System[M]) Close() { s.pool.StopAndWait() }

func (s *System[M]) Tree() *store.Tree { return s.tree }
func (s *System[M]) Index() *clipmap.Index { return s.index }
func (s *System[M]) Meshes() *MeshGenerator[M] { return s.meshes }
func (s *System[M]) ClipSpheres() clipmap.ClipSpheres { return s.clip }
