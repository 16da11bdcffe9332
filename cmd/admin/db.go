package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"voxelstream.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	minUs := fs.Int64("min_us", 16000, "step time threshold for slow frames")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index", "frames.sqlite")
	}

	db, err := indexdb.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(context.Background(), os.Stdout, db, q, *limit, *minUs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, w io.Writer, db *sql.DB, q string, limit int, minUs int64) error {
	switch q {
	case "summary":
		s, err := indexdb.Summarize(ctx, db)
		if err != nil {
			return err
		}
		return printJSON(w, s)
	case "recent":
		rows, err := indexdb.RecentFrames(ctx, db, limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := printJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	case "slow":
		rows, err := indexdb.SlowFrames(ctx, db, minUs, limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := printJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	case "runs":
		rows, err := indexdb.Runs(ctx, db)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := printJSON(w, r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown query %q (want summary|recent|slow|runs)", q)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
