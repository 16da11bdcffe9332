package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

// FrameRow is one indexed frame without its raw JSON.
type FrameRow struct {
	Frame       uint64     `json:"frame"`
	StepUs      int64      `json:"step_us"`
	NewSlots    int        `json:"new_slots"`
	Written     int        `json:"written"`
	Spawned     int        `json:"spawned"`
	Downsampled int        `json:"downsampled"`
	Evicted     int        `json:"evicted"`
	Spawns      int        `json:"spawns"`
	Splits      int        `json:"splits"`
	Merges      int        `json:"merges"`
	Applied     int        `json:"applied"`
	Removed     int        `json:"removed"`
	Observer    [3]float64 `json:"observer"`
}

type Summary struct {
	Frames      int64   `json:"frames"`
	FirstFrame  uint64  `json:"first_frame"`
	LastFrame   uint64  `json:"last_frame"`
	MeanStepUs  float64 `json:"mean_step_us"`
	MaxStepUs   int64   `json:"max_step_us"`
	Written     int64   `json:"written"`
	Downsampled int64   `json:"downsampled"`
	Evicted     int64   `json:"evicted"`
	Splits      int64   `json:"splits"`
	Merges      int64   `json:"merges"`
}

type RunRow struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	ConfigJSON string `json:"config_json"`
}

const frameCols = `frame,step_us,new_slots,written,spawned,downsampled,evicted,spawns,splits,merges,applied,removed,x,y,z`

// RecentFrames returns the newest frames first.
func RecentFrames(ctx context.Context, db *sql.DB, limit int) ([]FrameRow, error) {
	if limit <= 0 {
		limit = 20
	}
	return queryFrames(ctx, db, `SELECT `+frameCols+` FROM frames ORDER BY frame DESC LIMIT ?`, limit)
}

// SlowFrames returns frames whose step time is at least minUs, slowest first.
func SlowFrames(ctx context.Context, db *sql.DB, minUs int64, limit int) ([]FrameRow, error) {
	if limit <= 0 {
		limit = 20
	}
	return queryFrames(ctx, db, `SELECT `+frameCols+` FROM frames WHERE step_us >= ? ORDER BY step_us DESC, frame ASC LIMIT ?`, minUs, limit)
}

func queryFrames(ctx context.Context, db *sql.DB, q string, args ...any) ([]FrameRow, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []FrameRow
	for rows.Next() {
		var r FrameRow
		var frame int64
		if err := rows.Scan(&frame, &r.StepUs, &r.NewSlots, &r.Written, &r.Spawned, &r.Downsampled, &r.Evicted,
			&r.Spawns, &r.Splits, &r.Merges, &r.Applied, &r.Removed, &r.Observer[0], &r.Observer[1], &r.Observer[2]); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		r.Frame = uint64(frame)
		out = append(out, r)
	}
	return out, rows.Err()
}

func Summarize(ctx context.Context, db *sql.DB) (Summary, error) {
	var s Summary
	var first, last sql.NullInt64
	var mean sql.NullFloat64
	var maxUs, written, down, evicted, splits, merges sql.NullInt64
	row := db.QueryRowContext(ctx, `SELECT COUNT(*),MIN(frame),MAX(frame),AVG(step_us),MAX(step_us),SUM(written),SUM(downsampled),SUM(evicted),SUM(splits),SUM(merges) FROM frames`)
	if err := row.Scan(&s.Frames, &first, &last, &mean, &maxUs, &written, &down, &evicted, &splits, &merges); err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}
	s.FirstFrame = uint64(first.Int64)
	s.LastFrame = uint64(last.Int64)
	s.MeanStepUs = mean.Float64
	s.MaxStepUs = maxUs.Int64
	s.Written = written.Int64
	s.Downsampled = down.Int64
	s.Evicted = evicted.Int64
	s.Splits = splits.Int64
	s.Merges = merges.Int64
	return s, nil
}

func Runs(ctx context.Context, db *sql.DB) ([]RunRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id,started_at,config_json FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.ConfigJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
