package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a secondary, queryable copy of the frame log. Writes are
// asynchronous and dropped when the writer falls behind; the JSONL log stays the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
	written atomic.Uint64
}

type reqKind int

const (
	reqFrame reqKind = iota + 1
	reqRun
)

type req struct {
	kind reqKind

	frame world.FrameReport
	run   runRow
}

type runRow struct {
	ID         string
	StartedAt  string
	ConfigJSON string
}

// WriterStats describes the async writer queue.
type WriterStats struct {
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// Open opens the database file with the index pragmas applied. It does not create
// the schema; readers use it directly.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragmas: %w", err)
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			frame INTEGER PRIMARY KEY,
			step_us INTEGER NOT NULL,
			new_slots INTEGER NOT NULL,
			written INTEGER NOT NULL,
			spawned INTEGER NOT NULL,
			downsampled INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			spawns INTEGER NOT NULL,
			splits INTEGER NOT NULL,
			merges INTEGER NOT NULL,
			applied INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_step_us ON frames(step_us);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the underlying handle for read queries.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) WriteFrame(rep world.FrameReport) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqFrame, frame: rep})
	return nil
}

// RecordRun stores the applied tuning for a run id.
func (s *SQLiteIndex) RecordRun(runID string, t tuning.Tuning) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tuning: %w", err)
	}
	s.enqueue(req{kind: reqRun, run: runRow{
		ID:         runID,
		StartedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		ConfigJSON: string(b),
	}})
	return nil
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) Stats() WriterStats {
	if s == nil {
		return WriterStats{}
	}
	return WriterStats{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertFrame, _ := s.db.Prepare(`INSERT OR REPLACE INTO frames(frame,step_us,new_slots,written,spawned,downsampled,evicted,spawns,splits,merges,applied,removed,x,y,z,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,config_json) VALUES(?,?,?)`)
	defer func() {
		if insertFrame != nil {
			_ = insertFrame.Close()
		}
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.dropped.Add(1)
			continue
		}
		switch r.kind {
		case reqFrame:
			if insertFrame == nil {
				continue
			}
			f := r.frame
			b, _ := json.Marshal(f)
			if _, err := tx.Stmt(insertFrame).Exec(
				int64(f.Frame),
				f.StepUs,
				f.NewSlots,
				f.Generator.Written,
				f.Generator.Spawned,
				f.Generator.Downsampled,
				f.Generator.Evicted,
				f.Mesher.Spawns,
				f.Mesher.Splits,
				f.Mesher.Merges,
				f.Mesher.Applied,
				f.Mesher.Removed,
				f.Observer[0],
				f.Observer[1],
				f.Observer[2],
				string(b),
			); err != nil {
				rollback()
				continue
			}
		case reqRun:
			if insertRun == nil {
				continue
			}
			if _, err := tx.Stmt(insertRun).Exec(r.run.ID, r.run.StartedAt, r.run.ConfigJSON); err != nil {
				rollback()
				continue
			}
		}
		opCount++
		s.written.Add(1)
		flushIfNeeded()
	}
	commit()
}
