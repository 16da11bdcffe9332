package main

import (
	"context"
	"testing"

	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

func TestSummarize(t *testing.T) {
	frames := []world.FrameReport{
		{Frame: 1, StepUs: 100, Observer: [3]float32{0, 0, 0}, Generator: world.GeneratorReport{Written: 3}},
		{Frame: 2, StepUs: 300, Observer: [3]float32{3, 4, 0}, Mesher: world.MesherReport{Splits: 1}},
		{Frame: 4, StepUs: 200, Observer: [3]float32{3, 4, 0}, Mesher: world.MesherReport{Merges: 2}},
	}
	s := summarize(frames)
	if s.Frames != 3 || s.First != 1 || s.Last != 4 || s.Gaps != 1 {
		t.Fatalf("range: %+v", s)
	}
	if s.PathLength != 5 {
		t.Fatalf("path length: %v", s.PathLength)
	}
	if s.P50Us != 200 || s.MaxUs != 300 {
		t.Fatalf("step stats: %+v", s)
	}
	if s.Written != 3 || s.Splits != 1 || s.Merges != 2 {
		t.Fatalf("totals: %+v", s)
	}
	if empty := summarize(nil); empty.Frames != 0 {
		t.Fatalf("empty: %+v", empty)
	}
}

func TestRerunPathSmallWorld(t *testing.T) {
	tune := tuning.Defaults()
	tune.NumLODs = 3
	tune.DetectEnterLOD = 2
	tune.ClipRadius = 40
	tune.Workers = 2
	tune.Normalize()

	frames := []world.FrameReport{
		{Frame: 1, Observer: [3]float32{0, 0, 0}},
		{Frame: 2, Observer: [3]float32{4, 0, 0}},
	}
	res, err := rerunPath(context.Background(), tune, frames, 100)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if res.Frames != 102 {
		t.Fatalf("frames: %d", res.Frames)
	}
	if res.Metrics.ResidentChunks+res.Metrics.AmbientChunks == 0 {
		t.Fatalf("no chunks after rerun: %+v", res.Metrics)
	}
	if res.Digest == 0 {
		t.Fatalf("tree digest not computed")
	}
}
