package clipmap

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// MarkTreeForLoading marks key and all of its ancestors up to the root as loading.
// key must sit at or above the enter LOD.
func (ix *Index) MarkTreeForLoading(key ChunkKey) {
	if key.LOD < ix.enter || key.LOD > ix.root {
		panic("clipmap: mark outside [enter, root]: " + key.String())
	}
	if !ix.Aligned(key) {
		panic("clipmap: misaligned key " + key.String())
	}
	for {
		ix.marked[key] = struct{}{}
		if key.LOD == ix.root {
			return
		}
		key = ix.Parent(key)
	}
}

// Loaded clears the mark of a key whose data has just been written.
func (ix *Index) Loaded(key ChunkKey) {
	delete(ix.marked, key)
	if ix.render[key] == stateActive {
		ix.refresh[key] = struct{}{}
	}
}

func (ix *Index) Marked(key ChunkKey) bool {
	_, ok := ix.marked[key]
	return ok
}

func (ix *Index) MarkedCount() int { return len(ix.marked) }

// Loading reports whether key still waits for data.
func (ix *Index) Loading(key ChunkKey) bool {
	if key.LOD >= ix.enter {
		return ix.Marked(key)
	}
	return ix.Marked(ix.AncestorAt(key, ix.enter)) && !ix.presence.Contains(key)
}

// SlotKind separates leaf generation from parent reduction.
type SlotKind uint8

const (
	SlotGenerate SlotKind = iota + 1
	SlotDownsample
)

func (k SlotKind) String() string {
	switch k {
	case SlotGenerate:
		return "generate"
	case SlotDownsample:
		return "downsample"
	default:
		return "unknown"
	}
}

// LoadingSlots walks marked slots nearest-first and yields LOD 0 slots to generate
// (at most budget of them) and LOD > 0 slots whose children are settled.
// Downsample slots are never limited by budget. The walk stops once the
// generation budget is spent.
func (ix *Index) LoadingSlots(budget int, observer mgl32.Vec3, fn func(ChunkKey, SlotKind)) {
	marked := make([]ChunkKey, 0, len(ix.marked))
	for k := range ix.marked {
		marked = append(marked, k)
	}
	sort.Slice(marked, func(i, j int) bool {
		a, b := marked[i], marked[j]
		if a.LOD != b.LOD {
			return a.LOD < b.LOD
		}
		da := distance(ix.WorldCenter(a), observer)
		db := distance(ix.WorldCenter(b), observer)
		if da != db {
			return da < db
		}
		return Less(a, b)
	})

	w := slotWalk{ix: ix, budget: budget, fn: fn}
	for _, k := range marked {
		if k.LOD > ix.enter {
			if !ix.anyChildMarked(k) {
				fn(k, SlotDownsample)
			}
			continue
		}
		if w.done() {
			continue
		}
		if ix.presence.Contains(k) {
			// Re-entered slot whose data survived.
			delete(ix.marked, k)
			continue
		}
		if k.LOD == 0 {
			w.generate(k)
			continue
		}
		if w.descend(k) {
			fn(k, SlotDownsample)
		}
	}
}

func (ix *Index) anyChildMarked(k ChunkKey) bool {
	for _, c := range ix.Children(k) {
		if ix.Marked(c) {
			return true
		}
	}
	return false
}

type slotWalk struct {
	ix     *Index
	budget int
	used   int
	fn     func(ChunkKey, SlotKind)
}

func (w *slotWalk) done() bool { return w.used >= w.budget }

func (w *slotWalk) generate(k ChunkKey) {
	if w.done() {
		return
	}
	w.used++
	w.fn(k, SlotGenerate)
}

// descend reports whether every child of k below the enter LOD is present, yielding
// work for the missing ones along the way.
func (w *slotWalk) descend(k ChunkKey) bool {
	settled := true
	for _, c := range w.ix.Children(k) {
		if w.ix.presence.Contains(c) {
			continue
		}
		settled = false
		if w.done() {
			return false
		}
		if c.LOD == 0 {
			w.generate(c)
			continue
		}
		if w.descend(c) {
			w.fn(c, SlotDownsample)
		}
	}
	return settled
}
