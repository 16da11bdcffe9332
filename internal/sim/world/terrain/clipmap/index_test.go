package clipmap

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func collectSlots(ix *Index, budget int, observer mgl32.Vec3) (gen, down []ChunkKey) {
	ix.LoadingSlots(budget, observer, func(k ChunkKey, kind SlotKind) {
		switch kind {
		case SlotGenerate:
			gen = append(gen, k)
		case SlotDownsample:
			down = append(down, k)
		}
	})
	return gen, down
}

func TestMarkTreeForLoadingMarksAncestors(t *testing.T) {
	present := keySet{}
	ix := NewIndex(Config{ChunkExponent: 2, NumLODs: 4, EnterLOD: 1}, present)
	k := ix.KeyForCoord(1, [3]int32{3, 0, 0})
	ix.MarkTreeForLoading(k)
	if ix.MarkedCount() != 3 {
		t.Fatalf("marked=%d want 3", ix.MarkedCount())
	}
	if !ix.Marked(ix.AncestorAt(k, 3)) {
		t.Fatalf("root not marked")
	}
	leaf := ix.Children(k)[5]
	if !ix.Loading(leaf) {
		t.Fatalf("absent leaf under marked slot should be loading")
	}
	present.add(leaf)
	if ix.Loading(leaf) {
		t.Fatalf("present leaf should not be loading")
	}
}

func TestLoadingSlotsGeneratesThenDownsamples(t *testing.T) {
	present := keySet{}
	ix := NewIndex(Config{ChunkExponent: 2, NumLODs: 3, EnterLOD: 1}, present)
	slot := ix.KeyForCoord(1, [3]int32{0, 0, 0})
	root := ix.Parent(slot)
	ix.MarkTreeForLoading(slot)

	gen, down := collectSlots(ix, 3, mgl32.Vec3{})
	if len(gen) != 3 || len(down) != 0 {
		t.Fatalf("first pass gen=%d down=%d", len(gen), len(down))
	}
	present.add(gen...)

	gen, _ = collectSlots(ix, 100, mgl32.Vec3{})
	if len(gen) != 5 {
		t.Fatalf("second pass gen=%d want 5", len(gen))
	}
	present.add(gen...)

	gen, down = collectSlots(ix, 100, mgl32.Vec3{})
	if len(gen) != 0 || len(down) != 1 || down[0] != slot {
		t.Fatalf("third pass gen=%v down=%v", gen, down)
	}
	present.add(slot)
	ix.Loaded(slot)

	_, down = collectSlots(ix, 0, mgl32.Vec3{})
	if len(down) != 1 || down[0] != root {
		t.Fatalf("root downsample: %v", down)
	}
	ix.Loaded(root)
	if ix.MarkedCount() != 0 {
		t.Fatalf("marks left: %d", ix.MarkedCount())
	}
}

func TestLoadingSlotsNearestFirst(t *testing.T) {
	present := keySet{}
	ix := NewIndex(Config{ChunkExponent: 2, NumLODs: 2, EnterLOD: 0}, present)
	far := ix.KeyForCoord(0, [3]int32{10, 0, 0})
	near := ix.KeyForCoord(0, [3]int32{1, 0, 0})
	ix.MarkTreeForLoading(far)
	ix.MarkTreeForLoading(near)
	gen, _ := collectSlots(ix, 1, mgl32.Vec3{4, 0, 0})
	if len(gen) != 1 || gen[0] != near {
		t.Fatalf("gen=%v want %v", gen, near)
	}
}

func TestEvictClearsMarksAndRenderState(t *testing.T) {
	present := keySet{}
	ix := NewIndex(Config{ChunkExponent: 2, NumLODs: 3, EnterLOD: 1}, present)
	slot := ix.KeyForCoord(1, [3]int32{0, 0, 0})
	ix.MarkTreeForLoading(slot)
	ix.render[ix.Children(slot)[0]] = stateActive
	ix.Evict(slot)
	if ix.Marked(slot) {
		t.Fatalf("slot still marked")
	}
	if !ix.Marked(ix.Parent(slot)) {
		t.Fatalf("ancestor mark should survive eviction")
	}
	if ix.RenderedCount() != 0 {
		t.Fatalf("render state survived eviction")
	}
}

func TestUnmarkOutsideKeepsEnterLODAndIntersecting(t *testing.T) {
	ix := NewIndex(Config{ChunkExponent: 2, NumLODs: 4, EnterLOD: 1}, keySet{})
	k := ix.KeyForCoord(1, [3]int32{3, 0, 0})
	ix.MarkTreeForLoading(k)
	// Touches the root only.
	clip := Sphere{Center: mgl32.Vec3{-10, 2, 2}, Radius: 12}
	if n := ix.UnmarkOutside(clip); n != 1 {
		t.Fatalf("unmarked=%d want 1", n)
	}
	if !ix.Marked(k) || !ix.Marked(ix.AncestorAt(k, 3)) || ix.Marked(ix.Parent(k)) {
		t.Fatalf("wrong marks left: enter=%v parent=%v root=%v",
			ix.Marked(k), ix.Marked(ix.Parent(k)), ix.Marked(ix.AncestorAt(k, 3)))
	}
}
