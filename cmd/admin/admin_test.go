package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelstream.ai/internal/persistence/indexdb"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

func TestListRuns(t *testing.T) {
	dir := t.TempDir()
	for i, id := range []string{"b", "a"} {
		p := filepath.Join(dir, "runs", id)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		ts := time.Unix(1000+int64(i), 0)
		if err := os.Chtimes(p, ts, ts); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "runs", "stray.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runs, err := listRuns(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0] != "b" || runs[1] != "a" {
		t.Fatalf("runs: %v", runs)
	}
}

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		_ = idx.WriteFrame(world.FrameReport{Frame: i, StepUs: int64(i) * 10000})
	}
	_ = idx.RecordRun("r1", tuning.Defaults())
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := indexdb.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := runQuery(ctx, &buf, db, "summary", 10, 0); err != nil {
		t.Fatalf("summary: %v", err)
	}
	var sum indexdb.Summary
	if err := json.Unmarshal(buf.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Frames != 5 || sum.MaxStepUs != 50000 {
		t.Fatalf("summary: %+v", sum)
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, db, "slow", 10, 30000); err != nil {
		t.Fatalf("slow: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("slow rows: %d\n%s", lines, buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, db, "runs", 10, 0); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(buf.String(), `"run_id":"r1"`) {
		t.Fatalf("runs output: %s", buf.String())
	}

	if err := runQuery(ctx, &buf, db, "agents", 10, 0); err == nil {
		t.Fatalf("expected unknown query error")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/metrics" {
			http.NotFound(rw, r)
			return
		}
		_, _ = rw.Write([]byte(`{"frame":3}` + "\n"))
	}))
	defer srv.Close()

	body, err := fetch(srv.URL+"/", "/v1/metrics")
	if err != nil || body != `{"frame":3}` {
		t.Fatalf("fetch: %q %v", body, err)
	}
	if _, err := fetch(srv.URL, "/nope"); err == nil {
		t.Fatalf("expected error on 404")
	}
}
