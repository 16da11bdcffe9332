package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelstream.ai/internal/sim/world"
)

// ListFrameFiles returns the frame logs under runDir in chronological order.
func ListFrameFiles(runDir string) ([]string, error) {
	dir := filepath.Join(runDir, "frames")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ReadFrames decodes every entry of one frame log, stopping at the first error
// returned by fn.
func ReadFrames(path string, fn func(world.FrameReport) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rep world.FrameReport
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(rep); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
