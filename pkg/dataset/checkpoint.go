package dataset

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Checkpoint files are named <name>.tmp.csv.<index>. After every wave the
// whole cumulative table is rewritten to the next index, so an interrupted
// run leaves its latest table behind. Checkpoints are write-only within a
// run; we never read them back to skip work.

// NextCheckpointIndex scans outputDir for existing checkpoint files of any
// dataset and returns the first index after the highest one found. This keeps
// a resumed run from overwriting the interrupted run's checkpoints.
func NextCheckpointIndex(outputDir string) (int, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		pos := strings.Index(name, ".tmp.csv.")
		if pos < 0 {
			continue
		}
		idx, err := strconv.Atoi(name[pos+len(".tmp.csv."):])
		if err != nil {
			continue
		}
		if idx+1 > next {
			next = idx + 1
		}
	}
	return next, nil
}

// CheckpointPath is the file for checkpoint 'index' of dataset 'name'
func CheckpointPath(outputDir, name string, index int) string {
	return fmt.Sprintf("%v/%v.tmp.csv.%v", outputDir, name, index)
}
