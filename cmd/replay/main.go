package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		runDir     = flag.String("run", "", "run directory containing frames/*.jsonl.zst")
		fromFrame  = flag.Uint64("from_frame", 0, "first frame to include (optional)")
		toFrame    = flag.Uint64("to_frame", 0, "last frame to include (optional)")
		rerun      = flag.Bool("rerun", false, "drive a fresh headless terrain along the logged observer path")
		tuningPath = flag.String("tuning", "", "tuning.yaml for -rerun (default: built-in defaults)")
		settle     = flag.Int("settle", 200, "extra frames at the final position for -rerun")
	)
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	files, err := persistlog.ListFrameFiles(*runDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list frames:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no frame files found in", *runDir)
		os.Exit(1)
	}

	var frames []world.FrameReport
	for _, path := range files {
		err := persistlog.ReadFrames(path, func(rep world.FrameReport) error {
			if rep.Frame < *fromFrame || (*toFrame != 0 && rep.Frame > *toFrame) {
				return nil
			}
			frames = append(frames, rep)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read frames:", err)
			os.Exit(1)
		}
	}

	sum := summarize(frames)
	fmt.Printf("frames=%d range=[%d,%d] path=%.1f step_us p50=%d p95=%d max=%d written=%d downsampled=%d evicted=%d splits=%d merges=%d\n",
		sum.Frames, sum.First, sum.Last, sum.PathLength, sum.P50Us, sum.P95Us, sum.MaxUs,
		sum.Written, sum.Downsampled, sum.Evicted, sum.Splits, sum.Merges)
	if sum.Gaps > 0 {
		fmt.Printf("warning: %d frame gaps\n", sum.Gaps)
	}
	if !*rerun || len(frames) == 0 {
		return
	}

	tune := tuning.Defaults()
	if *tuningPath != "" {
		tune, err = tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}
	res, err := rerunPath(context.Background(), tune, frames, *settle)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rerun:", err)
		os.Exit(1)
	}
	fmt.Printf("rerun ok: frames=%d resident=%d entities=%d triangles=%d digest=%016x\n",
		res.Frames, res.Metrics.ResidentChunks, res.Metrics.Entities, res.Metrics.Triangles, res.Digest)
}

type summary struct {
	Frames      int
	First, Last uint64
	Gaps        int
	PathLength  float32

	P50Us, P95Us, MaxUs int64

	Written, Downsampled, Evicted, Splits, Merges int
}

func summarize(frames []world.FrameReport) summary {
	var s summary
	s.Frames = len(frames)
	if len(frames) == 0 {
		return s
	}
	s.First = frames[0].Frame
	s.Last = frames[len(frames)-1].Frame
	steps := make([]int64, 0, len(frames))
	for i, f := range frames {
		steps = append(steps, f.StepUs)
		s.Written += f.Generator.Written
		s.Downsampled += f.Generator.Downsampled
		s.Evicted += f.Generator.Evicted
		s.Splits += f.Mesher.Splits
		s.Merges += f.Mesher.Merges
		if i > 0 {
			prev := frames[i-1]
			if f.Frame != prev.Frame+1 {
				s.Gaps++
			}
			s.PathLength += mgl32.Vec3(f.Observer).Sub(mgl32.Vec3(prev.Observer)).Len()
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	s.P50Us = steps[(len(steps)-1)*50/100]
	s.P95Us = steps[(len(steps)-1)*95/100]
	s.MaxUs = steps[len(steps)-1]
	return s
}

type rerunResult struct {
	Frames  int
	Metrics world.Metrics
	Digest  uint64
}

type treeOwner interface {
	Tree() *store.Tree
}

func rerunPath(ctx context.Context, tune tuning.Tuning, frames []world.FrameReport, settle int) (rerunResult, error) {
	cfg := world.ConfigFromTuning(tune)
	cfg.Origin = mgl32.Vec3(frames[0].Observer)
	rec := render.NewRecorder()
	terrain, err := world.New(cfg, rec, nil)
	if err != nil {
		return rerunResult{}, err
	}
	defer terrain.Close()

	loop := world.NewLoop(terrain, rec, 0, nil)
	var res rerunResult
	for _, f := range frames {
		loop.StepOnce(ctx, mgl32.Vec3(f.Observer))
		res.Frames++
	}
	last := mgl32.Vec3(frames[len(frames)-1].Observer)
	for i := 0; i < settle; i++ {
		loop.StepOnce(ctx, last)
		res.Frames++
	}
	res.Metrics = terrain.Metrics()
	if t, ok := terrain.(treeOwner); ok {
		res.Digest = t.Tree().Digest()
	}
	return res, nil
}
