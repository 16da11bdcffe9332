package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/observerproto"
)

// bot flies a random walk through the terrain and logs what the server streams.
func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/observer/ws", "observer ws url")
		maxHz = flag.Int("max_hz", 5, "requested frame rate")
		step  = flag.Float64("step", 8, "distance moved per move")
		every = flag.Duration("every", 100*time.Millisecond, "move interval")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random walk seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		MaxHz:           *maxHz,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	frames := make(chan observerproto.FrameMsg, 16)
	go func() {
		defer close(frames)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			var f observerproto.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil || f.Type != observerproto.TypeFrame {
				continue
			}
			select {
			case frames <- f:
			default:
			}
		}
	}()

	w := newWalker(*seed, float32(*step))
	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			logger.Printf("FRAME %d observer=%v draws=%d tris=%d resident=%d lods=%v", f.Frame, f.Observer, f.Draws, f.Triangles, f.ResidentChunks, f.LODHistogram)
		case <-ticker.C:
			mv := observerproto.MoveMsg{Type: observerproto.TypeMove, Pos: w.next()}
			if err := conn.WriteJSON(mv); err != nil {
				logger.Printf("send MOVE: %v", err)
				return
			}
		}
	}
}

// walker is a horizontal random walk that changes heading occasionally.
type walker struct {
	rng     *rand.Rand
	step    float32
	pos     [3]float32
	heading int
}

var headings = [4][2]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

func newWalker(seed int64, step float32) *walker {
	return &walker{rng: rand.New(rand.NewSource(seed)), step: step}
}

func (w *walker) next() [3]float32 {
	if w.rng.Intn(20) == 0 {
		w.heading = (w.heading + 1 + w.rng.Intn(3)) % 4
	}
	h := headings[w.heading]
	w.pos[0] += h[0] * w.step
	w.pos[2] += h[1] * w.step
	return w.pos
}
