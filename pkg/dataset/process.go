package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/gen"
	"github.com/edgetune/edgetune/pkg/nnload"
	"github.com/edgetune/edgetune/pkg/videox"
)

// OpenVideoFunc creates a frame source for a video path. The default decodes
// via an ffmpeg pipe; tests substitute synthetic sources.
type OpenVideoFunc func(path string) (videox.FrameSource, error)

// VideoTask is one unit of work for the pool: a video and the model that
// must process it. Immutable once dispatched.
type VideoTask struct {
	Path        string
	Model       string // preset name within the ModelSet
	Framework   string
	PerVideoDir string // empty unless per-video results are enabled
}

// ProcessConfig is the explicit configuration of one dataset run.
// It replaces any notion of process-wide model or device registries: the
// coordinator sees exactly the models it was handed.
type ProcessConfig struct {
	Videos     []string // enumerated (and possibly fast-sampled) video paths
	Name       string   // dataset name, used to name the output files
	OutputDir  string
	Models     *nnload.ModelSet
	Model      string // preset to run in this pass ("edge" or "ref")
	TopK       int    // predictions kept per frame, 0 means DefaultTopK
	MaxWorkers int    // bounded pool size, 0 means 1

	PerVideoResults bool   // also write one result file per video
	MoveWhenDone    string // if set, relocate videos once all models are done

	OpenVideo OpenVideoFunc // nil means ffmpeg
	Log       logs.Log
}

// ProcessStats summarizes one completed run
type ProcessStats struct {
	Waves       int
	Processed   int
	Failed      int
	Empty       int
	SkippedDone int // per-video mode: result file already existed
	Rows        int
}

// ProcessDataset is the batch coordinator. It partitions the video list into
// waves of 2x the worker count, dispatches each wave to the pool, appends the
// returned rows to the cumulative table, and rewrites the whole table to a
// numbered checkpoint after every wave. The final table is written under the
// dataset name on completion.
func ProcessDataset(cfg *ProcessConfig) (*ProcessStats, error) {
	log := cfg.Log
	stats := &ProcessStats{}

	model, err := cfg.Models.Get(cfg.Model)
	if err != nil {
		return nil, err
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	open := cfg.OpenVideo
	if open == nil {
		open = func(path string) (videox.FrameSource, error) {
			return videox.NewFfmpegSource(path)
		}
	}

	videos := cfg.Videos
	perVideoDir := ""
	if cfg.PerVideoResults {
		perVideoDir = cfg.OutputDir
		// A clip whose result file already exists was processed by an earlier
		// run, so re-running the dataset is idempotent.
		remaining := make([]string, 0, len(videos))
		for _, v := range videos {
			if _, err := os.Stat(PerVideoResultPath(perVideoDir, v)); err == nil {
				stats.SkippedDone++
				continue
			}
			remaining = append(remaining, v)
		}
		if stats.SkippedDone > 0 {
			log.Infof("Skipped %v videos because they were already processed", stats.SkippedDone)
		}
		videos = remaining
	}

	tasks := make([]VideoTask, 0, len(videos))
	for _, v := range videos {
		tasks = append(tasks, VideoTask{
			Path:        v,
			Model:       cfg.Model,
			Framework:   cfg.Models.Framework,
			PerVideoDir: perVideoDir,
		})
	}

	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	// With fewer pending tasks than a full wave, shrink the pool to fit
	if len(tasks) < workers*2 {
		workers = len(tasks)
	}
	waveSize := workers * 2

	checkpointIdx, err := NextCheckpointIndex(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("scan for existing checkpoints: %w", err)
	}

	table := NewTable()
	tracker := NewCompletionTracker(log, cfg.Models.Count(), cfg.MoveWhenDone)

	run := func(task VideoTask) (*VideoResult, error) {
		start := time.Now()
		result, err := processVideo(open, model, topK, task.Path, task.PerVideoDir)
		if err == nil {
			log.Infof("Processed %v with model %v in %.2fs", filepath.Base(task.Path), task.Model, time.Since(start).Seconds())
		}
		return result, err
	}

	for waveStart := 0; waveStart < len(tasks); waveStart += waveSize {
		wave := tasks[waveStart:gen.Min(waveStart+waveSize, len(tasks))]
		outcomes := runWave(wave, workers, run)
		stats.Waves++

		for i, outcome := range outcomes {
			task := wave[i]
			if outcome.err != nil {
				// One bad video must not sink the wave
				log.Errorf("Failed to process %v with model %v: %v", task.Path, task.Model, outcome.err)
				stats.Failed++
				continue
			}
			if outcome.result.Empty() {
				log.Infof("0 results for %v with model %v", task.Path, task.Model)
				stats.Empty++
				tracker.MarkDone(task.Path)
				continue
			}
			meta, err := ParseVideoPath(task.Path)
			if err != nil {
				log.Errorf("Cannot tag results for %v: %v", task.Path, err)
				stats.Failed++
				continue
			}
			for _, frame := range outcome.result.Frames {
				table.Append(DetectionRow{
					Cam:        meta.Cam,
					Timestamp:  meta.Timestamp,
					Date:       meta.Date,
					Hour:       meta.Hour,
					Minute:     meta.Minute,
					FrameID:    frame.FrameID,
					Model:      task.Model,
					TopScores:  frame.TopScores,
					TopClasses: frame.TopClasses,
				})
			}
			stats.Processed++
			tracker.MarkDone(task.Path)
		}

		checkpoint := CheckpointPath(cfg.OutputDir, cfg.Name, checkpointIdx)
		log.Infof("%v detections. Writing checkpoint %v", table.Len(), checkpoint)
		if err := table.WriteCSV(checkpoint); err != nil {
			return nil, fmt.Errorf("write checkpoint %v: %w", checkpoint, err)
		}
		checkpointIdx++
	}

	final := filepath.Join(cfg.OutputDir, cfg.Name+".csv")
	if err := table.WriteCSV(final); err != nil {
		return nil, fmt.Errorf("write final table %v: %w", final, err)
	}
	stats.Rows = table.Len()
	log.Infof("Wrote %v rows to %v", table.Len(), final)
	return stats, nil
}
