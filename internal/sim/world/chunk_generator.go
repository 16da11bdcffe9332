package world

import (
	"context"
	"log"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voxelstream.ai/internal/sim/budget"
	"voxelstream.ai/internal/sim/tasks"
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/terrain/gen"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// generated is the result slot of a leaf generation task. A nil Voxels means the
// chunk holds no solid sample and is stored as ambient.
type generated struct {
	Key    clipmap.ChunkKey
	Voxels []float32
}

type downsampled struct {
	Key   clipmap.ChunkKey
	Chunk *store.Chunk
}

// GeneratorReport summarises one generator update.
type GeneratorReport struct {
	Written     int `json:"written"`
	Ambient     int `json:"ambient"`
	Failed      int `json:"failed"`
	Dropped     int `json:"dropped"`
	Evicted     int `json:"evicted"`
	Marked      int `json:"marked"`
	Allowance   int `json:"allowance"`
	Spawned     int `json:"spawned"`
	Downsampled int `json:"downsampled"`
}

// ChunkGenerator fills the chunk tree: noise for LOD 0 and 2x2x2 means above it.
type ChunkGenerator struct {
	cfg    MapConfig
	index  *clipmap.Index
	tree   *store.Tree
	pool   pond.Pool
	budget *budget.FrameBudget
	tracer trace.Tracer
	logger *log.Logger

	pending []*tasks.Task[generated]
}

func NewChunkGenerator(cfg MapConfig, index *clipmap.Index, tree *store.Tree, pool pond.Pool, threads int, tracer trace.Tracer, logger *log.Logger) *ChunkGenerator {
	return &ChunkGenerator{
		cfg:    cfg,
		index:  index,
		tree:   tree,
		pool:   pool,
		budget: budget.New(cfg.GeneratorBudgetUs, threads),
		tracer: tracer,
		logger: logger,
	}
}

func (g *ChunkGenerator) Pending() int { return len(g.pending) }

func (g *ChunkGenerator) Estimate() time.Duration { return g.budget.Estimate() }

// Update runs one frame of the generation stage.
func (g *ChunkGenerator) Update(ctx context.Context, clip clipmap.ClipSpheres, observer mgl32.Vec3, newSlots []clipmap.ChunkKey) GeneratorReport {
	var rep GeneratorReport
	g.budget.ResetTimer()
	g.writeGenerated(ctx, &rep)
	g.budget.UpdateEstimate()
	settled := time.Now()

	rep.Evicted = g.evict(clip)
	for _, k := range newSlots {
		g.index.MarkTreeForLoading(k)
		rep.Marked++
	}

	rep.Allowance = g.budget.RequestWork(time.Since(settled))
	generate, downsample := g.findLoadingSlots(ctx, rep.Allowance, observer)
	rep.Downsampled = g.downsample(ctx, downsample)
	for _, k := range generate {
		g.spawn(k)
	}
	rep.Spawned = len(generate)
	return rep
}

func (g *ChunkGenerator) writeGenerated(ctx context.Context, rep *GeneratorReport) {
	_, span := g.tracer.Start(ctx, "write_generated_chunks",
		trace.WithAttributes(attribute.Int("chunks.pending", len(g.pending))))
	defer span.End()

	for _, t := range g.pending {
		res, elapsed, err := t.Join()
		if err != nil {
			rep.Failed++
			if g.logger != nil {
				g.logger.Printf("chunk generation failed: %v", err)
			}
			continue
		}
		g.budget.CompleteItem(elapsed)
		if !g.index.Marked(g.index.AncestorAt(res.Key, g.index.EnterLOD())) {
			// Evicted while the task ran.
			rep.Dropped++
			continue
		}
		if res.Voxels == nil {
			g.tree.Write(res.Key, g.tree.NewAmbient(res.Key))
			rep.Ambient++
		} else {
			g.tree.Write(res.Key, &store.Chunk{Voxels: res.Voxels})
		}
		g.index.Loaded(res.Key)
		rep.Written++
	}
	g.pending = g.pending[:0]
}

// evict drops enter-LOD slots that were inside the old clip sphere but are not
// inside the new one, then every coarser chunk and mark that no longer touches
// the new sphere.
func (g *ChunkGenerator) evict(clip clipmap.ClipSpheres) int {
	enter := g.index.EnterLOD()
	departed := g.index.NewChunksIntersecting(clip.New, clip.Old, enter)
	removed := 0
	for _, k := range departed {
		removed += g.tree.DeleteSubtree(k)
		g.index.Evict(k)
	}
	for lod := int(enter) + 1; lod <= int(g.index.RootLOD()); lod++ {
		for _, k := range g.tree.KeysAt(uint8(lod)) {
			if !g.index.Intersects(k, clip.New) {
				g.tree.Delete(k)
				removed++
			}
		}
	}
	g.index.UnmarkOutside(clip.New)
	return removed
}

func (g *ChunkGenerator) findLoadingSlots(ctx context.Context, allowance int, observer mgl32.Vec3) (generate, downsample []clipmap.ChunkKey) {
	_, span := g.tracer.Start(ctx, "find_loading_slots")
	defer span.End()
	g.index.LoadingSlots(allowance, observer, func(k clipmap.ChunkKey, kind clipmap.SlotKind) {
		switch kind {
		case clipmap.SlotGenerate:
			generate = append(generate, k)
		case clipmap.SlotDownsample:
			downsample = append(downsample, k)
		}
	})
	span.SetAttributes(
		attribute.Int("slots.generate", len(generate)),
		attribute.Int("slots.downsample", len(downsample)),
	)
	return generate, downsample
}

// downsample snapshots children on this goroutine, reduces them on the pool, and
// waits for every reduction before writing.
func (g *ChunkGenerator) downsample(ctx context.Context, keys []clipmap.ChunkKey) int {
	if len(keys) == 0 {
		return 0
	}
	_, span := g.tracer.Start(ctx, "downsample_chunks",
		trace.WithAttributes(attribute.Int("chunks", len(keys))))
	defer span.End()

	edge := int(g.tree.Indexer().Edge())
	running := make([]*tasks.Task[downsampled], 0, len(keys))
	for _, k := range keys {
		key := k
		children := g.tree.Children(key)
		running = append(running, tasks.Spawn(g.pool, func() downsampled {
			dst := &store.Chunk{}
			store.Downsample(edge, children, dst)
			return downsampled{Key: key, Chunk: dst}
		}))
	}
	written := 0
	for _, t := range running {
		res, _, err := t.Join()
		if err != nil {
			if g.logger != nil {
				g.logger.Printf("downsample failed: %v", err)
			}
			continue
		}
		g.tree.Write(res.Key, res.Chunk)
		g.index.Loaded(res.Key)
		written++
	}
	return written
}

func (g *ChunkGenerator) spawn(key clipmap.ChunkKey) {
	noise := g.cfg.Noise
	ix := g.tree.Indexer()
	subsurface := g.cfg.SubsurfaceOnly
	g.pending = append(g.pending, tasks.Spawn(g.pool, func() generated {
		return generated{Key: key, Voxels: gen.Chunk(noise, ix, key, subsurface)}
	}))
}
