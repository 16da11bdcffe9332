package world

// Metrics is a thread-safe read-only view of the streaming engine. It is updated
// from the frame goroutine and read from HTTP handlers and tests.
type Metrics struct {
	Frame    uint64     `json:"frame"`
	Observer [3]float32 `json:"observer"`

	ResidentChunks  int   `json:"resident_chunks"`
	AmbientChunks   int   `json:"ambient_chunks"`
	CompressedBytes int64 `json:"compressed_bytes"`
	MarkedSlots     int   `json:"marked_slots"`

	Entities     int           `json:"entities"`
	Triangles    int           `json:"triangles"`
	LODHistogram map[uint8]int `json:"lod_histogram"`

	GenPending     int     `json:"gen_pending"`
	MeshPending    int     `json:"mesh_pending"`
	GenEstimateUs  float64 `json:"gen_estimate_us"`
	MeshEstimateUs float64 `json:"mesh_estimate_us"`

	StepUs int64       `json:"step_us"`
	Last   FrameReport `json:"last"`
}

func (s *System[M]) publish(rep FrameReport) {
	st := s.tree.Stats()
	tris, perLOD := s.meshes.Stats()
	s.metrics.Store(Metrics{
		Frame:           rep.Frame,
		Observer:        rep.Observer,
		ResidentChunks:  st.Resident,
		AmbientChunks:   st.Ambient,
		CompressedBytes: st.CompressedBytes,
		MarkedSlots:     s.index.MarkedCount(),
		Entities:        s.meshes.Len(),
		Triangles:       tris,
		LODHistogram:    perLOD,
		GenPending:      s.chunks.Pending(),
		MeshPending:     s.meshes.Pending(),
		GenEstimateUs:   float64(s.chunks.Estimate().Microseconds()),
		MeshEstimateUs:  float64(s.meshes.Estimate().Microseconds()),
		StepUs:          rep.StepUs,
		Last:            rep,
	})
}

func (s *System[M]) Metrics() Metrics {
	if s == nil {
		return Metrics{}
	}
	v := s.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}
