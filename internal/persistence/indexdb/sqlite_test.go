package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

func frame(n uint64, stepUs int64) world.FrameReport {
	return world.FrameReport{
		Frame:     n,
		Observer:  [3]float32{float32(n), 0, -1},
		NewSlots:  int(n % 3),
		Generator: world.GeneratorReport{Written: 2, Downsampled: 1},
		Mesher:    world.MesherReport{Splits: 1},
		StepUs:    stepUs,
	}
}

func TestSQLiteIndex_FramesAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "frames.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 10; i++ {
		if err := idx.WriteFrame(frame(i, int64(i*100))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := idx.RecordRun("run-1", tuning.Defaults()); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.Written != 11 || st.Dropped != 0 {
		t.Fatalf("stats: %+v", st)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	recent, err := RecentFrames(ctx, db, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Frame != 10 || recent[2].Frame != 8 {
		t.Fatalf("recent frames: %+v", recent)
	}
	if recent[0].Observer[0] != 10 || recent[0].Observer[2] != -1 {
		t.Fatalf("observer: %v", recent[0].Observer)
	}

	slow, err := SlowFrames(ctx, db, 800, 10)
	if err != nil {
		t.Fatalf("slow: %v", err)
	}
	if len(slow) != 3 || slow[0].StepUs != 1000 {
		t.Fatalf("slow frames: %+v", slow)
	}

	sum, err := Summarize(ctx, db)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Frames != 10 || sum.FirstFrame != 1 || sum.LastFrame != 10 || sum.MaxStepUs != 1000 {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.Written != 20 || sum.Downsampled != 10 || sum.Splits != 10 || sum.MeanStepUs != 550 {
		t.Fatalf("summary totals: %+v", sum)
	}

	runs, err := Runs(ctx, db)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].ConfigJSON == "" {
		t.Fatalf("runs: %+v", runs)
	}
}

func TestSQLiteIndex_SummaryOnEmpty(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "empty.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	sum, err := Summarize(context.Background(), idx.DB())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Frames != 0 || sum.LastFrame != 0 {
		t.Fatalf("summary: %+v", sum)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.Close()
	if err := idx.WriteFrame(frame(1, 1)); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
	var nilIdx *SQLiteIndex
	if err := nilIdx.WriteFrame(frame(1, 1)); err != nil {
		t.Fatalf("nil write: %v", err)
	}
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
