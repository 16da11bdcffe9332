package worldtest

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/render"
	world "voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Harness drives a terrain through its exported API only, one frame per call,
// rendering into a Recorder after every update.
type Harness struct {
	T        *testing.T
	Terrain  world.Terrain
	Recorder *render.Recorder

	loop   *world.Loop
	frames []world.FrameReport
}

func NewHarness(t *testing.T, cfg world.MapConfig) *Harness {
	t.Helper()
	rec := render.NewRecorder()
	tr, err := world.New(cfg, rec, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	t.Cleanup(tr.Close)
	h := &Harness{T: t, Terrain: tr, Recorder: rec}
	h.loop = world.NewLoop(tr, rec, 0, nil)
	h.loop.OnFrame = func(rep world.FrameReport) { h.frames = append(h.frames, rep) }
	return h
}

func (h *Harness) Step(observer mgl32.Vec3) world.FrameReport {
	return h.loop.StepOnce(context.Background(), observer)
}

// StepN runs n frames at a fixed observer position.
func (h *Harness) StepN(observer mgl32.Vec3, n int) world.FrameReport {
	var rep world.FrameReport
	for i := 0; i < n; i++ {
		rep = h.Step(observer)
	}
	return rep
}

// Fly visits each waypoint for framesEach frames.
func (h *Harness) Fly(path []mgl32.Vec3, framesEach int) {
	for _, p := range path {
		h.StepN(p, framesEach)
	}
}

// Settle steps at observer until nothing is marked, generating or meshing. It
// fails the test after maxFrames.
func (h *Harness) Settle(observer mgl32.Vec3, maxFrames int) int {
	h.T.Helper()
	for i := 1; i <= maxFrames; i++ {
		h.Step(observer)
		if h.Idle() {
			return i
		}
	}
	h.T.Fatalf("terrain not settled after %d frames: %+v", maxFrames, h.Terrain.Metrics())
	return maxFrames
}

// Idle reports whether the last frame did no work and left none outstanding.
func (h *Harness) Idle() bool {
	if len(h.frames) == 0 {
		return false
	}
	m := h.Terrain.Metrics()
	if m.MarkedSlots != 0 || m.GenPending != 0 || m.MeshPending != 0 {
		return false
	}
	last := h.frames[len(h.frames)-1]
	g, me := last.Generator, last.Mesher
	return last.NewSlots == 0 &&
		g.Written == 0 && g.Spawned == 0 && g.Downsampled == 0 && g.Evicted == 0 &&
		me.Applied == 0 && me.Removed == 0 && me.Spawns == 0 && me.Splits == 0 && me.Merges == 0 && me.CleanedUp == 0
}

func (h *Harness) Frames() []world.FrameReport { return h.frames }

// Tree exposes the chunk tree when the terrain implementation provides one.
func (h *Harness) Tree() *store.Tree {
	h.T.Helper()
	owner, ok := h.Terrain.(interface{ Tree() *store.Tree })
	if !ok {
		h.T.Fatalf("terrain %T has no chunk tree", h.Terrain)
	}
	return owner.Tree()
}

// CheckDraws fails if a recorded draw references an unknown mesh or material.
func (h *Harness) CheckDraws() int {
	h.T.Helper()
	draws := h.Recorder.Draws()
	for i, d := range draws {
		if _, ok := h.Recorder.Mesh(d.Mesh); !ok {
			h.T.Fatalf("draw %d: unknown mesh %d", i, d.Mesh)
		}
		if _, ok := h.Recorder.Material(d.Material); !ok {
			h.T.Fatalf("draw %d: unknown material %d", i, d.Material)
		}
	}
	return len(draws)
}
