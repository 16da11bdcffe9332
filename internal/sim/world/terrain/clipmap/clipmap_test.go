package clipmap

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

type keySet map[ChunkKey]struct{}

func (s keySet) Contains(k ChunkKey) bool {
	_, ok := s[k]
	return ok
}

func (s keySet) KeysAt(lod uint8) []ChunkKey {
	var out []ChunkKey
	for k := range s {
		if k.LOD == lod {
			out = append(out, k)
		}
	}
	SortKeys(out)
	return out
}

func (s keySet) add(keys ...ChunkKey) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

func TestChildrenParentRoundTrip(t *testing.T) {
	ix := NewIndexer(4)
	parent := ix.KeyForCoord(3, [3]int32{-1, 2, -3})
	for i, c := range ix.Children(parent) {
		if c.LOD != 2 {
			t.Fatalf("child lod=%d", c.LOD)
		}
		if !ix.Aligned(c) {
			t.Fatalf("child %v not aligned", c)
		}
		if got := ix.Parent(c); got != parent {
			t.Fatalf("parent(%v)=%v want %v", c, got, parent)
		}
		if got := ix.Octant(c); got != i {
			t.Fatalf("octant(%v)=%d want %d", c, got, i)
		}
	}
	leaf := ix.KeyForCoord(0, [3]int32{-17, 5, 40})
	if !ix.Contains(ix.AncestorAt(leaf, 3), leaf) {
		t.Fatalf("ancestor does not contain leaf")
	}
}

func TestWorldExtentScalesWithLOD(t *testing.T) {
	ix := NewIndexer(4)
	k := ChunkKey{Minimum: [3]int32{16, 0, -16}, LOD: 2}
	if got := ix.WorldMin(k); got != (mgl32.Vec3{64, 0, -64}) {
		t.Fatalf("world min=%v", got)
	}
	if got := ix.WorldEdge(2); got != 64 {
		t.Fatalf("world edge=%v", got)
	}
	if got := ix.WorldCenter(k); got != (mgl32.Vec3{96, 32, -32}) {
		t.Fatalf("world center=%v", got)
	}
}

func TestChunksIntersectingOrigin(t *testing.T) {
	ix := NewIndexer(4)
	keys := ix.ChunksIntersecting(Sphere{Radius: 500}, 4)
	if len(keys) == 0 {
		t.Fatalf("expected keys around origin")
	}
	seen := keySet{}
	for i, k := range keys {
		if k.LOD != 4 {
			t.Fatalf("lod=%d", k.LOD)
		}
		if i > 0 && !Less(keys[i-1], k) {
			t.Fatalf("not in key order at %d: %v then %v", i, keys[i-1], k)
		}
		if seen.Contains(k) {
			t.Fatalf("duplicate key %v", k)
		}
		seen.add(k)
	}
	for _, want := range []ChunkKey{
		{Minimum: [3]int32{0, 0, 0}, LOD: 4},
		{Minimum: [3]int32{-16, -16, -16}, LOD: 4},
	} {
		if !seen.Contains(want) {
			t.Fatalf("missing %v", want)
		}
	}
	// Corner chunk of the bounding box lies outside the sphere.
	if seen.Contains(ChunkKey{Minimum: [3]int32{-48, -48, -48}, LOD: 4}) {
		t.Fatalf("bounding-box corner should be rejected")
	}
}

func TestEmptySphereIntersectsNothing(t *testing.T) {
	ix := NewIndexer(4)
	if keys := ix.ChunksIntersecting(Sphere{}, 0); len(keys) != 0 {
		t.Fatalf("empty sphere returned %d keys", len(keys))
	}
	full := ix.ChunksIntersecting(Sphere{Radius: 100}, 2)
	delta := ix.NewChunksIntersecting(Sphere{}, Sphere{Radius: 100}, 2)
	if len(full) != len(delta) {
		t.Fatalf("delta from empty: %d vs %d", len(delta), len(full))
	}
}

func TestNewChunksIntersectingIsSetDifference(t *testing.T) {
	ix := NewIndexer(4)
	spheres := []Sphere{
		{Center: mgl32.Vec3{0, 0, 0}, Radius: 500},
		{Center: mgl32.Vec3{40, -3, 17}, Radius: 500},
		{Center: mgl32.Vec3{-700, 20, 5}, Radius: 120},
		{Center: mgl32.Vec3{15.5, 16, 16.25}, Radius: 16},
		{Center: mgl32.Vec3{1000, 1000, 1000}, Radius: 33},
		{},
	}
	for _, lod := range []uint8{0, 2, 4} {
		for _, a := range spheres {
			for _, b := range spheres {
				if a.Radius/float32(int(1)<<lod) > 400 || b.Radius/float32(int(1)<<lod) > 400 {
					continue
				}
				got := keySet{}
				got.add(ix.NewChunksIntersecting(a, b, lod)...)

				old := keySet{}
				old.add(ix.ChunksIntersecting(a, lod)...)
				want := keySet{}
				for _, k := range ix.ChunksIntersecting(b, lod) {
					if !old.Contains(k) {
						want.add(k)
					}
				}
				if len(got) != len(want) {
					t.Fatalf("lod %d %v -> %v: got %d keys want %d", lod, a, b, len(got), len(want))
				}
				for k := range want {
					if !got.Contains(k) {
						t.Fatalf("lod %d %v -> %v: missing %v", lod, a, b, k)
					}
				}
			}
		}
	}
}

func TestIdenticalSpheresShortCircuit(t *testing.T) {
	ix := NewIndexer(4)
	s := Sphere{Center: mgl32.Vec3{3, 4, 5}, Radius: 500}
	if got := ix.NewChunksIntersecting(s, s, 4); len(got) != 0 {
		t.Fatalf("expected no new keys, got %d", len(got))
	}
}

func TestClipSpheresAdvance(t *testing.T) {
	var c ClipSpheres
	a := Sphere{Radius: 10}
	b := Sphere{Center: mgl32.Vec3{1, 0, 0}, Radius: 10}
	c.Advance(a)
	c.Advance(b)
	if c.Old != a || c.New != b {
		t.Fatalf("advance: %+v", c)
	}
}
