package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
)

// CompletionTracker counts how many of the configured models have finished
// each video. When a video's count reaches the total and a move destination
// is configured, the source file is relocated there and the entry dropped.
//
// Every video processed in a wave is marked done, not just the last one.
type CompletionTracker struct {
	log         logs.Log
	totalModels int
	moveTo      string // empty = never relocate
	counts      map[string]int
}

func NewCompletionTracker(log logs.Log, totalModels int, moveTo string) *CompletionTracker {
	return &CompletionTracker{
		log:         log,
		totalModels: totalModels,
		moveTo:      moveTo,
		counts:      map[string]int{},
	}
}

// MarkDone records that one model finished processing the video
func (c *CompletionTracker) MarkDone(video string) {
	c.counts[video]++
	if c.counts[video] < c.totalModels {
		return
	}
	delete(c.counts, video)
	if c.moveTo == "" {
		return
	}
	dest := filepath.Join(c.moveTo, filepath.Base(video))
	if err := moveFile(video, dest); err != nil {
		c.log.Errorf("Failed to move %v to %v: %v", video, dest, err)
	} else {
		c.log.Infof("Moved %v to %v", filepath.Base(video), c.moveTo)
	}
}

// Pending returns how many videos are still waiting on at least one model
func (c *CompletionTracker) Pending() int {
	return len(c.counts)
}

// Rename, falling back to copy+remove for cross-device moves
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %v to %v: %w", src, dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
