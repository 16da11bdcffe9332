package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeMove      = "MOVE"
	TypeFrame     = "FRAME"
)

// Client -> Server. First message on the observer WS connection; it can be re-sent
// to change the frame rate.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MaxHz           int    `json:"max_hz"`
}

// Client -> Server. Moves the observer that drives streaming.
type MoveMsg struct {
	Type string     `json:"type"`
	Pos  [3]float32 `json:"pos"`
}

// Server -> Client. At most MaxHz per session.
type FrameMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Frame           uint64     `json:"frame"`
	Observer        [3]float32 `json:"observer"`

	Draws          int           `json:"draws"`
	Triangles      int           `json:"triangles"`
	LODHistogram   map[uint8]int `json:"lod_histogram"`
	ResidentChunks int           `json:"resident_chunks"`
	GenEstimateUs  float64       `json:"gen_estimate_us"`
	MeshEstimateUs float64       `json:"mesh_estimate_us"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string    `json:"protocol_version"`
	RunID           string    `json:"run_id"`
	Frame           uint64    `json:"frame"`
	MapParams       MapParams `json:"map_params"`
}

type MapParams struct {
	FrameRateHz    int     `json:"frame_rate_hz"`
	ChunkEdge      int     `json:"chunk_edge"`
	NumLODs        int     `json:"num_lods"`
	DetectEnterLOD int     `json:"detect_enter_lod"`
	ClipRadius     float32 `json:"clip_radius"`
	Detail         float32 `json:"detail"`
	Mesher         string  `json:"mesher"`
	Seed           int64   `json:"seed"`
}
