package clipmap

import "fmt"

// Presence answers whether the chunk tree currently holds data for a key.
type Presence interface {
	Contains(key ChunkKey) bool
	// KeysAt lists the stored keys at lod.
	KeysAt(lod uint8) []ChunkKey
}

type Config struct {
	ChunkExponent uint8
	NumLODs       uint8
	EnterLOD      uint8
}

type renderState uint8

const (
	stateActive renderState = iota + 1
	stateSplit
)

// Index tracks which octree slots are still loading and where the render cut
// currently lies. It is owned by the frame goroutine.
type Index struct {
	Indexer
	root     uint8
	enter    uint8
	presence Presence

	marked  map[ChunkKey]struct{}
	render  map[ChunkKey]renderState
	refresh map[ChunkKey]struct{}
}

func NewIndex(cfg Config, presence Presence) *Index {
	if cfg.NumLODs == 0 {
		panic("clipmap: zero LOD levels")
	}
	if cfg.EnterLOD >= cfg.NumLODs {
		panic(fmt.Sprintf("clipmap: enter lod %d outside %d levels", cfg.EnterLOD, cfg.NumLODs))
	}
	return &Index{
		Indexer:  NewIndexer(cfg.ChunkExponent),
		root:     cfg.NumLODs - 1,
		enter:    cfg.EnterLOD,
		presence: presence,
		marked:   map[ChunkKey]struct{}{},
		render:   map[ChunkKey]renderState{},
		refresh:  map[ChunkKey]struct{}{},
	}
}

func (ix *Index) RootLOD() uint8  { return ix.root }
func (ix *Index) EnterLOD() uint8 { return ix.enter }

// Rendered reports whether key is currently a leaf of the render cut.
func (ix *Index) Rendered(key ChunkKey) bool { return ix.render[key] == stateActive }

// RenderedCount is the number of keys in the render cut.
func (ix *Index) RenderedCount() int {
	n := 0
	for _, st := range ix.render {
		if st == stateActive {
			n++
		}
	}
	return n
}

// Evict drops every mark and render entry at or below key. Callers delete the
// chunk data themselves.
func (ix *Index) Evict(key ChunkKey) {
	for k := range ix.marked {
		if ix.Contains(key, k) {
			delete(ix.marked, k)
		}
	}
	ix.forgetSubtree(key)
}

func (ix *Index) forgetSubtree(key ChunkKey) {
	for k := range ix.render {
		if ix.Contains(key, k) {
			delete(ix.render, k)
			delete(ix.refresh, k)
		}
	}
}

// UnmarkOutside drops marks above the enter LOD whose slot no longer touches clip
// and returns how many were dropped.
func (ix *Index) UnmarkOutside(clip Sphere) int {
	n := 0
	for k := range ix.marked {
		if k.LOD > ix.enter && !ix.Intersects(k, clip) {
			delete(ix.marked, k)
			n++
		}
	}
	return n
}
