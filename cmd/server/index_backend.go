package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxelstream.ai/internal/persistence/indexdb"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

type frameIndex interface {
	WriteFrame(world.FrameReport) error
	RecordRun(runID string, t tuning.Tuning) error
	Stats() indexdb.WriterStats
	Close() error
}

func openRuntimeIndex(runDir string, disableDB bool) (frameIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(runDir, "index", "frames.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported VS_INDEX_BACKEND: %s", backend)
	}
}
