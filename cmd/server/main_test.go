package main

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstream.ai/internal/sim/world"
)

func TestParseVec3(t *testing.T) {
	v, err := parseVec3(" 1, -2.5 ,3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v != (mgl32.Vec3{1, -2.5, 3}) {
		t.Fatalf("got %v", v)
	}
	if _, err := parseVec3("1,2"); err == nil {
		t.Fatalf("expected error for two components")
	}
	if _, err := parseVec3("1,x,3"); err == nil {
		t.Fatalf("expected error for bad number")
	}
}

func TestScriptedPath(t *testing.T) {
	origin := mgl32.Vec3{10, 0, 0}
	line, err := newScriptedPath("line", origin, 20)
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if got := line.At(2); got != (mgl32.Vec3{50, 0, 0}) {
		t.Fatalf("line at 2s: %v", got)
	}

	orbit, err := newScriptedPath("ORBIT", origin, 20)
	if err != nil {
		t.Fatalf("orbit: %v", err)
	}
	for _, sec := range []float64{0, 1, 7.5} {
		d := orbit.At(sec).Sub(origin).Len()
		if math.Abs(float64(d)-256) > 0.01 {
			t.Fatalf("orbit radius at %vs: %v", sec, d)
		}
	}

	static, _ := newScriptedPath("static", origin, 20)
	if static.At(100) != origin {
		t.Fatalf("static moved")
	}
	if _, err := newScriptedPath("spiral", origin, 1); err == nil {
		t.Fatalf("expected unknown path error")
	}
}

type countingSink struct{ n int }

func (c *countingSink) WriteFrame(world.FrameReport) error {
	c.n++
	return nil
}

func TestMultiFrameSinkAndIndex(t *testing.T) {
	runDir := t.TempDir()
	idx, err := openRuntimeIndex(runDir, false)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	a := &countingSink{}
	sink := multiFrameSink{a: a, b: idx}
	for i := uint64(1); i <= 3; i++ {
		if err := sink.WriteFrame(world.FrameReport{Frame: i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.n != 3 || idx.Stats().Written != 3 {
		t.Fatalf("sink counts: log=%d index=%d", a.n, idx.Stats().Written)
	}

	none, err := openRuntimeIndex(runDir, true)
	if err != nil || none != nil {
		t.Fatalf("disabled index: %v %v", none, err)
	}
	if err := (multiFrameSink{a: a}).WriteFrame(world.FrameReport{}); err != nil {
		t.Fatalf("nil index: %v", err)
	}
}

func TestWritePrometheus(t *testing.T) {
	rw := httptest.NewRecorder()
	writePrometheus(rw, "r1", world.Metrics{Frame: 9, ResidentChunks: 4, StepUs: 120}, nil)
	body := rw.Body.String()
	for _, want := range []string{
		`voxelstream_frame{run="r1"} 9`,
		`voxelstream_resident_chunks{run="r1",kind="all"} 4`,
		`voxelstream_step_us{run="r1"} 120`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "index_queue_depth") {
		t.Fatalf("index metrics without index")
	}
}
