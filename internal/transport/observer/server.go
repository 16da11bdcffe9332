package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxelstream.ai/internal/observerproto"
	"voxelstream.ai/internal/sim/world"
)

// Source is the read side of the streaming engine the server reports on.
type Source interface {
	Metrics() world.Metrics
}

type Options struct {
	// Bootstrap is served as-is except for Frame, which is filled from Source.
	Bootstrap observerproto.BootstrapResponse
	// Moves receives observer positions from MOVE messages. Full channels drop the
	// older position.
	Moves chan mgl32.Vec3
	// AllowRemote disables the loopback-only check.
	AllowRemote bool
}

type Server struct {
	src  Source
	opts Options
	log  *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id      string
	out     chan []byte
	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewServer(src Source, opts Options, logger *log.Logger) *Server {
	return &Server{
		src:  src,
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := s.opts.Bootstrap
		resp.ProtocolVersion = observerproto.Version
		resp.Frame = s.src.Metrics().Frame
		writeJSON(rw, resp)
	}
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(rw, s.src.Metrics())
	}
}

// Sessions is the number of subscribed observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Publish sends msg to every session whose rate limit allows it. It never blocks.
func (s *Server) Publish(msg observerproto.FrameMsg) {
	msg.Type = observerproto.TypeFrame
	msg.ProtocolVersion = observerproto.Version

	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		targets = append(targets, sess)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		if s.log != nil {
			s.log.Printf("observer: encode frame %d: %v", msg.Frame, err)
		}
		return
	}
	for _, sess := range targets {
		sess.mu.Lock()
		ok := sess.limiter.Allow()
		sess.mu.Unlock()
		if ok {
			sendLatest(sess.out, b)
		}
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sess := &session{
			id:      uuid.NewString(),
			out:     make(chan []byte, 1),
			limiter: rate.NewLimiter(rate.Limit(normalizeHz(sub.MaxHz)), 1),
		}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()
		if s.log != nil {
			s.log.Printf("observer %s subscribed at %d Hz", sess.id, normalizeHz(sub.MaxHz))
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: MOVE and SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var base struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &base); err != nil {
				continue
			}
			switch base.Type {
			case observerproto.TypeMove:
				var mv observerproto.MoveMsg
				if err := json.Unmarshal(msg, &mv); err != nil {
					continue
				}
				if s.opts.Moves != nil {
					sendLatest(s.opts.Moves, mgl32.Vec3{mv.Pos[0], mv.Pos[1], mv.Pos[2]})
				}
			case observerproto.TypeSubscribe:
				var sub observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &sub); err != nil || sub.ProtocolVersion != observerproto.Version {
					continue
				}
				sess.mu.Lock()
				sess.limiter.SetLimit(rate.Limit(normalizeHz(sub.MaxHz)))
				sess.mu.Unlock()
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// sendLatest delivers v, discarding a queued older value if the channel is full.
func sendLatest[T any](ch chan T, v T) {
	for i := 0; i < 2; i++ {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func normalizeHz(hz int) int {
	if hz <= 0 {
		return 10
	}
	if hz > 60 {
		return 60
	}
	return hz
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FrameFromMetrics builds the per-frame message from a metrics snapshot and the
// draw count of the last render.
func FrameFromMetrics(m world.Metrics, draws int) observerproto.FrameMsg {
	return observerproto.FrameMsg{
		Frame:          m.Frame,
		Observer:       m.Observer,
		Draws:          draws,
		Triangles:      m.Triangles,
		LODHistogram:   m.LODHistogram,
		ResidentChunks: m.ResidentChunks,
		GenEstimateUs:  m.GenEstimateUs,
		MeshEstimateUs: m.MeshEstimateUs,
	}
}
