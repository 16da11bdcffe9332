package store

import (
	"fmt"

	"voxelstream.ai/internal/sim/world/terrain/clipmap"
)

// AmbientValue is the signed distance of empty space. Solid voxels are negative.
const AmbientValue float32 = 1

// Chunk is a dense cube of signed distances in x-fastest order, or an ambient
// placeholder with no allocation.
type Chunk struct {
	Ambient bool
	Voxels  []float32
}

func NewDense(volume int) *Chunk {
	return &Chunk{Voxels: make([]float32, volume)}
}

// At reads a voxel, treating ambient chunks as uniformly empty.
func (c *Chunk) At(edge int, x, y, z int) float32 {
	if c == nil || c.Ambient {
		return AmbientValue
	}
	return c.Voxels[x+edge*(y+edge*z)]
}

// Solid reports whether any voxel is below zero.
func (c *Chunk) Solid() bool {
	if c == nil || c.Ambient {
		return false
	}
	for _, v := range c.Voxels {
		if v < 0 {
			return true
		}
	}
	return false
}

type entry struct {
	ambient    bool
	compressed []byte
}

type Stats struct {
	Resident        int   `json:"resident"`
	Ambient         int   `json:"ambient"`
	CompressedBytes int64 `json:"compressed_bytes"`
	RawBytes        int64 `json:"raw_bytes"`
}

func (s Stats) Total() int { return s.Resident + s.Ambient }

func (s Stats) Ratio() float64 {
	if s.CompressedBytes == 0 {
		return 0
	}
	return float64(s.RawBytes) / float64(s.CompressedBytes)
}

func mustAligned(ix clipmap.Indexer, key clipmap.ChunkKey) {
	if !ix.Aligned(key) {
		panic(fmt.Sprintf("store: misaligned key %v", key))
	}
}
