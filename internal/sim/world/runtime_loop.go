package world

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/render"
)

// Loop drives a Terrain from a ticker. Observer positions arrive on Moves; only the
// latest one per frame is used.
type Loop struct {
	Terrain  Terrain
	Renderer render.Renderer
	RateHz   int
	Moves    <-chan mgl32.Vec3
	// Observer is the starting position.
	Observer mgl32.Vec3
	// OnFrame runs on the loop goroutine after Render.
	OnFrame func(FrameReport)

	stop chan struct{}
}

func NewLoop(t Terrain, r render.Renderer, rateHz int, moves <-chan mgl32.Vec3) *Loop {
	if rateHz <= 0 {
		rateHz = 30
	}
	return &Loop{Terrain: t, Renderer: r, RateHz: rateHz, Moves: moves, stop: make(chan struct{})}
}

func (l *Loop) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(l.RateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	observer := l.Observer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case p, ok := <-l.Moves:
			if !ok {
				l.Moves = nil
				continue
			}
			observer = p
		case <-ticker.C:
			l.StepOnce(ctx, observer)
		}
	}
}

// StepOnce runs a single frame with the same ordering as Run.
func (l *Loop) StepOnce(ctx context.Context, observer mgl32.Vec3) FrameReport {
	rep := l.Terrain.Update(ctx, observer)
	if rec, ok := l.Renderer.(*render.Recorder); ok {
		rec.BeginFrame()
	}
	if l.Renderer != nil {
		l.Terrain.Render(l.Renderer)
	}
	if l.OnFrame != nil {
		l.OnFrame(rep)
	}
	return rep
}

func (l *Loop) Stop() { close(l.stop) }
