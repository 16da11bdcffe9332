package clipmap

import "github.com/go-gl/mathgl/mgl32"

// LodChange is one structural change of the render cut.
type LodChange interface {
	isLodChange()
}

// Spawn asks for a mesh of Key. It is also emitted for a rendered key whose data
// was rewritten.
type Spawn struct {
	Key ChunkKey
}

// Split replaces Old with its present children New.
type Split struct {
	Old ChunkKey
	New []ChunkKey
}

// Merge replaces the rendered children Old with their parent New.
type Merge struct {
	Old []ChunkKey
	New ChunkKey
}

func (Spawn) isLodChange() {}
func (Split) isLodChange() {}
func (Merge) isLodChange() {}

// RenderUpdates walks the render cut from the present root chunks inside the clip
// sphere, in key order, and yields at most budget changes. A node wants to split
// when its LOD is above 0 and the distance from center to its centre is below
// detail times its world edge. Nodes that left the sphere are forgotten before
// the budget applies.
func (ix *Index) RenderUpdates(clip Sphere, detail float32, center mgl32.Vec3, budget int, fn func(LodChange)) {
	for k := range ix.render {
		if !ix.Intersects(k, clip) {
			delete(ix.render, k)
			delete(ix.refresh, k)
		}
	}
	if budget <= 0 {
		return
	}
	u := lodWalk{ix: ix, clip: clip, detail: detail, center: center, budget: budget, fn: fn}
	for _, r := range ix.renderRoots(clip) {
		if u.budget <= 0 {
			return
		}
		u.visit(r)
	}
}

// renderRoots lists root-LOD keys that are rendered or present and touch clip.
func (ix *Index) renderRoots(clip Sphere) []ChunkKey {
	seen := map[ChunkKey]struct{}{}
	var out []ChunkKey
	add := func(k ChunkKey) {
		if _, dup := seen[k]; dup || !ix.Intersects(k, clip) {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for k := range ix.render {
		if k.LOD == ix.root {
			add(k)
		}
	}
	for _, k := range ix.presence.KeysAt(ix.root) {
		add(k)
	}
	SortKeys(out)
	return out
}

type lodWalk struct {
	ix     *Index
	clip   Sphere
	detail float32
	center mgl32.Vec3
	budget int
	fn     func(LodChange)
}

func (u *lodWalk) emit(c LodChange) {
	u.budget--
	u.fn(c)
}

func (u *lodWalk) wantSplit(k ChunkKey) bool {
	if k.LOD == 0 {
		return false
	}
	return distance(u.center, u.ix.WorldCenter(k)) < float64(u.detail*u.ix.WorldEdge(k.LOD))
}

func (u *lodWalk) visit(k ChunkKey) {
	ix := u.ix
	st, has := ix.render[k]
	if !ix.Intersects(k, u.clip) {
		if has {
			ix.forgetSubtree(k)
		}
		return
	}
	switch {
	case !has:
		if ix.presence.Contains(k) && !ix.Loading(k) {
			ix.render[k] = stateActive
			delete(ix.refresh, k)
			u.emit(Spawn{Key: k})
		}
	case st == stateActive:
		if u.wantSplit(k) {
			if children, ok := u.splittable(k); ok {
				ix.render[k] = stateSplit
				delete(ix.refresh, k)
				for _, c := range children {
					if _, dup := ix.render[c]; dup {
						panic("clipmap: duplicate split of " + k.String())
					}
					ix.render[c] = stateActive
				}
				u.emit(Split{Old: k, New: children})
				return
			}
		}
		if _, ok := ix.refresh[k]; ok && !ix.Loading(k) {
			delete(ix.refresh, k)
			u.emit(Spawn{Key: k})
		}
	case st == stateSplit:
		if !u.wantSplit(k) && !ix.Loading(k) {
			if old, ok := u.mergeable(k); ok {
				for _, c := range ix.Children(k) {
					delete(ix.render, c)
					delete(ix.refresh, c)
				}
				ix.render[k] = stateActive
				delete(ix.refresh, k)
				if len(old) == 0 {
					// Every child left the sphere; nothing to swap out.
					u.emit(Spawn{Key: k})
					return
				}
				u.emit(Merge{Old: old, New: k})
				return
			}
		}
		for _, c := range ix.Children(k) {
			if u.budget <= 0 {
				return
			}
			u.visit(c)
		}
	default:
		panic("clipmap: corrupt render state for " + k.String())
	}
}

// splittable returns the present children inside the clip sphere, or false while
// any of them is still loading.
func (u *lodWalk) splittable(k ChunkKey) ([]ChunkKey, bool) {
	ix := u.ix
	var out []ChunkKey
	for _, c := range ix.Children(k) {
		if !ix.Intersects(c, u.clip) {
			continue
		}
		if ix.Loading(c) {
			return nil, false
		}
		if ix.presence.Contains(c) {
			out = append(out, c)
		}
	}
	return out, len(out) > 0
}

// mergeable returns the rendered children of k, or false when any child is itself
// split. The slice is empty when no child is rendered any more.
func (u *lodWalk) mergeable(k ChunkKey) ([]ChunkKey, bool) {
	var old []ChunkKey
	for _, c := range u.ix.Children(k) {
		switch u.ix.render[c] {
		case stateSplit:
			return nil, false
		case stateActive:
			old = append(old, c)
		}
	}
	return old, true
}
