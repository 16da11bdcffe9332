package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"voxelstream.ai/internal/sim/world/terrain/clipmap"
)

// Tree is the sparse chunk store. Resident chunks are kept zstd-compressed.
// It is not safe for concurrent use; the frame goroutine owns it.
type Tree struct {
	ix      clipmap.Indexer
	entries map[clipmap.ChunkKey]entry
	byLOD   map[uint8]map[clipmap.ChunkKey]struct{}

	enc     *zstd.Encoder
	dec     *zstd.Decoder
	scratch []byte
}

func NewTree(chunkExponent uint8) (*Tree, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	ix := clipmap.NewIndexer(chunkExponent)
	return &Tree{
		ix:      ix,
		entries: map[clipmap.ChunkKey]entry{},
		byLOD:   map[uint8]map[clipmap.ChunkKey]struct{}{},
		enc:     enc,
		dec:     dec,
		scratch: make([]byte, 0, ix.Volume()*4),
	}, nil
}

func (t *Tree) Indexer() clipmap.Indexer { return t.ix }

func (t *Tree) Contains(key clipmap.ChunkKey) bool {
	_, ok := t.entries[key]
	return ok
}

func (t *Tree) Len() int { return len(t.entries) }

// KeysAt returns the stored keys at lod in key order.
func (t *Tree) KeysAt(lod uint8) []clipmap.ChunkKey {
	set := t.byLOD[lod]
	keys := make([]clipmap.ChunkKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	clipmap.SortKeys(keys)
	return keys
}

func (t *Tree) put(key clipmap.ChunkKey, e entry) {
	t.entries[key] = e
	set, ok := t.byLOD[key.LOD]
	if !ok {
		set = map[clipmap.ChunkKey]struct{}{}
		t.byLOD[key.LOD] = set
	}
	set[key] = struct{}{}
}

func (t *Tree) drop(key clipmap.ChunkKey) bool {
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	delete(t.byLOD[key.LOD], key)
	return true
}

// NewAmbient returns the empty placeholder for key.
func (t *Tree) NewAmbient(key clipmap.ChunkKey) *Chunk {
	mustAligned(t.ix, key)
	return &Chunk{Ambient: true}
}

// Get decompresses the chunk at key. The returned voxels are owned by the caller.
func (t *Tree) Get(key clipmap.ChunkKey) (*Chunk, bool) {
	e, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if e.ambient {
		return &Chunk{Ambient: true}, true
	}
	raw, err := t.dec.DecodeAll(e.compressed, t.scratch[:0])
	if err != nil {
		panic(fmt.Sprintf("store: corrupt chunk %v: %v", key, err))
	}
	t.scratch = raw[:0]
	n := t.ix.Volume()
	if len(raw) != n*4 {
		panic(fmt.Sprintf("store: chunk %v holds %d bytes, want %d", key, len(raw), n*4))
	}
	vox := make([]float32, n)
	for i := range vox {
		vox[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return &Chunk{Voxels: vox}, true
}

// Write stores c at key, replacing any previous entry.
func (t *Tree) Write(key clipmap.ChunkKey, c *Chunk) {
	mustAligned(t.ix, key)
	if c == nil || c.Ambient {
		t.put(key, entry{ambient: true})
		return
	}
	n := t.ix.Volume()
	if len(c.Voxels) != n {
		panic(fmt.Sprintf("store: write %v with %d voxels, want %d", key, len(c.Voxels), n))
	}
	raw := t.scratch[:n*4]
	for i, v := range c.Voxels {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	t.put(key, entry{compressed: t.enc.EncodeAll(raw, nil)})
}

func (t *Tree) Delete(key clipmap.ChunkKey) {
	t.drop(key)
}

// DeleteSubtree removes key and everything below it. It returns the number of
// entries removed.
func (t *Tree) DeleteSubtree(key clipmap.ChunkKey) int {
	removed := 0
	drop := func(k clipmap.ChunkKey) {
		if t.drop(k) {
			removed++
		}
	}
	drop(key)
	t.ix.Descendants(key, drop)
	return removed
}

// Children snapshots the eight children of key. Missing children are nil.
func (t *Tree) Children(key clipmap.ChunkKey) [8]*Chunk {
	var out [8]*Chunk
	for i, c := range t.ix.Children(key) {
		if ch, ok := t.Get(c); ok {
			out[i] = ch
		}
	}
	return out
}

// DownsampleChildrenInto reduces the children of key into dst.
func (t *Tree) DownsampleChildrenInto(key clipmap.ChunkKey, dst *Chunk) {
	Downsample(int(t.ix.Edge()), t.Children(key), dst)
}

// Keys returns every stored key in key order.
func (t *Tree) Keys() []clipmap.ChunkKey {
	keys := make([]clipmap.ChunkKey, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	clipmap.SortKeys(keys)
	return keys
}

// Digest hashes keys and payloads in key order.
func (t *Tree) Digest() uint64 {
	h := xxhash.New()
	var tmp [13]byte
	for _, k := range t.Keys() {
		e := t.entries[k]
		binary.LittleEndian.PutUint32(tmp[0:], uint32(k.Minimum[0]))
		binary.LittleEndian.PutUint32(tmp[4:], uint32(k.Minimum[1]))
		binary.LittleEndian.PutUint32(tmp[8:], uint32(k.Minimum[2]))
		tmp[12] = k.LOD
		_, _ = h.Write(tmp[:])
		if e.ambient {
			_, _ = h.Write([]byte{0})
			continue
		}
		_, _ = h.Write([]byte{1})
		_, _ = h.Write(e.compressed)
	}
	return h.Sum64()
}

func (t *Tree) Stats() Stats {
	var s Stats
	raw := int64(t.ix.Volume() * 4)
	for _, e := range t.entries {
		if e.ambient {
			s.Ambient++
			continue
		}
		s.Resident++
		s.CompressedBytes += int64(len(e.compressed))
		s.RawBytes += raw
	}
	return s
}

// LODHistogram counts stored keys per LOD.
func (t *Tree) LODHistogram() map[uint8]int {
	out := map[uint8]int{}
	for k := range t.entries {
		out[k.LOD]++
	}
	return out
}
