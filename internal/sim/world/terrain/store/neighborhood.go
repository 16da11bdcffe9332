package store

import (
	"voxelstream.ai/internal/sim/world/terrain/clipmap"
	"voxelstream.ai/internal/sim/world/logic/mathx"
)

// Neighborhood is a padded copy of one chunk and its border cells, detached from
// the tree so meshing can run on a worker.
type Neighborhood struct {
	Key  clipmap.ChunkKey
	Edge int // chunk edge without padding
	Pad  int
	// Min is the LOD-local coordinate of Values[0].
	Min    [3]int32
	Values []float32
}

// Size is the padded edge length.
func (n *Neighborhood) Size() int { return n.Edge + 2*n.Pad }

// At reads a padded-local sample; (0,0,0) is Min.
func (n *Neighborhood) At(x, y, z int) float32 {
	s := n.Size()
	return n.Values[x+s*(y+s*z)]
}

// Empty reports whether no sample is solid.
func (n *Neighborhood) Empty() bool {
	for _, v := range n.Values {
		if v < 0 {
			return false
		}
	}
	return true
}

// CopyNeighborhood copies the chunk at key plus pad cells on each side taken from
// same-LOD neighbours. Missing neighbours read as ambient. It returns false when
// key itself holds no data.
func (t *Tree) CopyNeighborhood(key clipmap.ChunkKey, pad int) (*Neighborhood, bool) {
	if !t.Contains(key) {
		return nil, false
	}
	edge := int(t.ix.Edge())
	n := &Neighborhood{
		Key:  key,
		Edge: edge,
		Pad:  pad,
		Min:  [3]int32{key.Minimum[0] - int32(pad), key.Minimum[1] - int32(pad), key.Minimum[2] - int32(pad)},
	}
	size := n.Size()
	n.Values = make([]float32, size*size*size)

	cache := map[clipmap.ChunkKey]*Chunk{}
	load := func(k clipmap.ChunkKey) *Chunk {
		if c, ok := cache[k]; ok {
			return c
		}
		c, _ := t.Get(k)
		cache[k] = c
		return c
	}
	e32 := t.ix.Edge()
	for z := 0; z < size; z++ {
		pz := n.Min[2] + int32(z)
		for y := 0; y < size; y++ {
			py := n.Min[1] + int32(y)
			for x := 0; x < size; x++ {
				px := n.Min[0] + int32(x)
				owner := t.ix.KeyForCoord(key.LOD, [3]int32{
					mathx.FloorDiv32(px, e32),
					mathx.FloorDiv32(py, e32),
					mathx.FloorDiv32(pz, e32),
				})
				c := load(owner)
				n.Values[x+size*(y+size*z)] = c.At(edge,
					int(px-owner.Minimum[0]), int(py-owner.Minimum[1]), int(pz-owner.Minimum[2]))
			}
		}
	}
	return n, true
}
