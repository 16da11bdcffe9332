package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"voxelstream.ai/internal/observerproto"
	persistlog "voxelstream.ai/internal/persistence/log"
	"voxelstream.ai/internal/sim/render"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/telemetry"
	"voxelstream.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		runID      = flag.String("run", "", "run id (default: random uuid)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite frame index")
		rateHz     = flag.Int("rate_hz", 30, "frame rate")
		path       = flag.String("path", pathStatic, "scripted observer path when no client drives it: static|line|orbit")
		speed      = flag.Float64("speed", 20, "scripted observer speed in world units per second")
		origin     = flag.String("origin", "0,0,0", "observer start position x,y,z")
		remote     = flag.Bool("allow_remote", false, "serve observer endpoints to non-loopback clients")
		traceMode  = flag.String("trace", telemetry.ExporterNone, "span exporter: none|stdout|file (file writes <run>/"+telemetry.TraceFile+")")
		traceRatio = flag.Float64("trace_ratio", 1, "fraction of frames traced")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("run dir: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(telemetry.Config{
		Exporter:    strings.TrimSpace(*traceMode),
		RunDir:      runDir,
		SampleRatio: *traceRatio,
	})
	if err != nil {
		logger.Fatalf("tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown: %v", err)
		}
	}()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	start, err := parseVec3(*origin)
	if err != nil {
		logger.Fatalf("origin: %v", err)
	}

	cfg := world.ConfigFromTuning(tune)
	cfg.Origin = start
	recorder := render.NewRecorder()
	terrain, err := world.New(cfg, recorder, logger)
	if err != nil {
		logger.Fatalf("terrain: %v", err)
	}
	defer terrain.Close()

	idx, err := openRuntimeIndex(runDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.RecordRun(id, tune); err != nil {
			logger.Printf("index backend: record run: %v", err)
		}
	}
	frameLog := persistlog.NewFrameLogger(runDir)
	defer frameLog.Close()
	sink := multiFrameSink{a: frameLog, b: idx}

	ctx, cancel := signalContext()
	defer cancel()

	moves := make(chan mgl32.Vec3, 1)
	obsSrv := observer.NewServer(terrain, observer.Options{
		Bootstrap: observerproto.BootstrapResponse{
			RunID: id,
			MapParams: observerproto.MapParams{
				FrameRateHz:    *rateHz,
				ChunkEdge:      1 << tune.ChunkExponent,
				NumLODs:        int(tune.NumLODs),
				DetectEnterLOD: int(tune.DetectEnterLOD),
				ClipRadius:     tune.ClipRadius,
				Detail:         tune.Detail,
				Mesher:         tune.Mesher,
				Seed:           tune.Noise.Seed,
			},
		},
		Moves:       moves,
		AllowRemote: *remote,
	}, logger)

	loop := world.NewLoop(terrain, recorder, *rateHz, moves)
	loop.Observer = start
	loop.OnFrame = func(rep world.FrameReport) {
		if err := sink.WriteFrame(rep); err != nil {
			logger.Printf("frame log: %v", err)
		}
		obsSrv.Publish(observer.FrameFromMetrics(terrain.Metrics(), recorder.Stats().Draws))
	}

	if *path != pathStatic {
		script, err := newScriptedPath(*path, start, float32(*speed))
		if err != nil {
			logger.Fatalf("path: %v", err)
		}
		go driveScripted(ctx, script, *rateHz, obsSrv, moves)
	}

	go func() {
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("loop stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writePrometheus(rw, id, terrain.Metrics(), idx)
	})
	mux.HandleFunc("/v1/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/metrics", obsSrv.MetricsHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VS_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("run %s listening on %s (mesher=%s lods=%d radius=%.0f)", id, *addr, tune.Mesher, tune.NumLODs, tune.ClipRadius)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func writePrometheus(rw http.ResponseWriter, runID string, m world.Metrics, idx frameIndex) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP voxelstream_frame Current frame.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_frame gauge\n")
	fmt.Fprintf(rw, "voxelstream_frame{run=%q} %d\n", runID, m.Frame)

	fmt.Fprintf(rw, "# HELP voxelstream_resident_chunks Chunks held by the chunk tree.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_resident_chunks gauge\n")
	fmt.Fprintf(rw, "voxelstream_resident_chunks{run=%q,kind=%q} %d\n", runID, "all", m.ResidentChunks)
	fmt.Fprintf(rw, "voxelstream_resident_chunks{run=%q,kind=%q} %d\n", runID, "ambient", m.AmbientChunks)

	fmt.Fprintf(rw, "# HELP voxelstream_compressed_bytes Compressed voxel bytes held by the chunk tree.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_compressed_bytes gauge\n")
	fmt.Fprintf(rw, "voxelstream_compressed_bytes{run=%q} %d\n", runID, m.CompressedBytes)

	fmt.Fprintf(rw, "# HELP voxelstream_entities Drawable meshes.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_entities gauge\n")
	fmt.Fprintf(rw, "voxelstream_entities{run=%q} %d\n", runID, m.Entities)

	fmt.Fprintf(rw, "# HELP voxelstream_pending_tasks In-flight worker tasks.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_pending_tasks gauge\n")
	fmt.Fprintf(rw, "voxelstream_pending_tasks{run=%q,stage=%q} %d\n", runID, "generate", m.GenPending)
	fmt.Fprintf(rw, "voxelstream_pending_tasks{run=%q,stage=%q} %d\n", runID, "mesh", m.MeshPending)

	fmt.Fprintf(rw, "# HELP voxelstream_estimate_us Smoothed per-item task time.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_estimate_us gauge\n")
	fmt.Fprintf(rw, "voxelstream_estimate_us{run=%q,stage=%q} %.1f\n", runID, "generate", m.GenEstimateUs)
	fmt.Fprintf(rw, "voxelstream_estimate_us{run=%q,stage=%q} %.1f\n", runID, "mesh", m.MeshEstimateUs)

	fmt.Fprintf(rw, "# HELP voxelstream_step_us Last frame duration in microseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_step_us gauge\n")
	fmt.Fprintf(rw, "voxelstream_step_us{run=%q} %d\n", runID, m.StepUs)

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP voxelstream_index_queue_depth Frame index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxelstream_index_queue_depth{run=%q} %d\n", runID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP voxelstream_index_dropped_total Frames dropped by the index writer.\n")
	fmt.Fprintf(rw, "# TYPE voxelstream_index_dropped_total counter\n")
	fmt.Fprintf(rw, "voxelstream_index_dropped_total{run=%q} %d\n", runID, s.Dropped)
}

type frameSink interface {
	WriteFrame(world.FrameReport) error
}

type multiFrameSink struct {
	a frameSink
	b frameIndex
}

func (m multiFrameSink) WriteFrame(rep world.FrameReport) error {
	var err error
	if m.a != nil {
		err = m.a.WriteFrame(rep)
	}
	if m.b != nil {
		_ = m.b.WriteFrame(rep)
	}
	return err
}
