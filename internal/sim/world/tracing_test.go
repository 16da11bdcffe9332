package world

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"voxelstream.ai/internal/sim/world/terrain/gen"
)

func TestFrameStagesEmitSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	s, _ := newTestSystem(t, MapConfig{
		ChunkExponent:  3,
		NumLODs:        4,
		ClipRadius:     40,
		DetectEnterLOD: 2,
		Workers:        2,
		Noise:          gen.NoiseConfig{Freq: 0.05, Scale: 4, Seed: 3, Octaves: 2, HeightFalloff: 0.5},
	})
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		s.Update(ctx, mgl32.Vec3{})
	}

	wantKeys := map[string][]attribute.Key{
		"write_generated_chunks": {"chunks.pending"},
		"find_loading_slots":     {"slots.generate", "slots.downsample"},
		"downsample_chunks":      {"chunks"},
		"lod_changes":            {"budget"},
		"make_mesh":              {"meshes.pending"},
	}
	frames := map[trace.SpanID]bool{}
	for _, sp := range sr.Ended() {
		if sp.Name() == "terrain_update" {
			frames[sp.SpanContext().SpanID()] = true
		}
	}
	if len(frames) != 40 {
		t.Fatalf("terrain_update spans=%d want 40", len(frames))
	}

	seen := map[string]int{}
	sums := map[attribute.Key]int64{}
	for _, sp := range sr.Ended() {
		keys, ok := wantKeys[sp.Name()]
		if !ok {
			continue
		}
		seen[sp.Name()]++
		if !frames[sp.Parent().SpanID()] {
			t.Fatalf("%s is not a child of a frame span", sp.Name())
		}
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range sp.Attributes() {
			attrs[kv.Key] = kv.Value
		}
		for _, k := range keys {
			v, ok := attrs[k]
			if !ok {
				t.Fatalf("%s lacks attribute %s: %v", sp.Name(), k, sp.Attributes())
			}
			sums[k] += v.AsInt64()
		}
	}
	for name := range wantKeys {
		if seen[name] == 0 {
			t.Fatalf("no %s span recorded (seen %v)", name, seen)
		}
	}
	if sums["slots.generate"] == 0 || sums["chunks"] == 0 {
		t.Fatalf("spans recorded no work: %v", sums)
	}
}
