package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/nn"
	"github.com/edgetune/edgetune/pkg/videox"
	"github.com/stretchr/testify/require"
)

var testVideos = []string{
	"/v/1614607200.cam1.mkv",
	"/v/1614607500.cam2.mkv",
	"/v/1614610800.cam1.mkv",
}

func testDetector() *fakeDetector {
	return &fakeDetector{
		config: testModelConfig(),
		objects: []nn.ObjectDetection{
			{Class: 2, Confidence: 0.9, Box: nn.Rect{X: 4, Y: 5, Width: 10, Height: 6}},
			{Class: 0, Confidence: 0.7, Box: nn.Rect{X: 1, Y: 1, Width: 8, Height: 8}},
		},
	}
}

func openTwoFrames(path string) (videox.FrameSource, error) {
	return &fakeSource{frames: []*cimg.Image{rgbFrame(48, 32), rgbFrame(48, 32)}}, nil
}

// 3 videos, 1 worker, wave cap 2: wave 1 processes 2 videos, wave 2 processes
// 1, and two checkpoints are written before the final output file.
func TestProcessDatasetScenario(t *testing.T) {
	dir := t.TempDir()
	cfg := &ProcessConfig{
		Videos:     testVideos,
		Name:       "mydata",
		OutputDir:  dir,
		Models:     detectorSet(testDetector()),
		Model:      "edge",
		MaxWorkers: 1,
		OpenVideo:  openTwoFrames,
		Log:        logs.NewTestingLog(t),
	}
	stats, err := ProcessDataset(cfg)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Waves)
	require.Equal(t, 3, stats.Processed)
	require.Equal(t, 0, stats.Failed)
	require.Equal(t, 6, stats.Rows) // 3 videos x 2 frames

	require.FileExists(t, filepath.Join(dir, "mydata.tmp.csv.0"))
	require.FileExists(t, filepath.Join(dir, "mydata.tmp.csv.1"))
	require.NoFileExists(t, filepath.Join(dir, "mydata.tmp.csv.2"))

	// Checkpoints are cumulative: wave 1 rows, then all rows
	cp0, err := ReadTableCSV(filepath.Join(dir, "mydata.tmp.csv.0"))
	require.NoError(t, err)
	require.Equal(t, 4, cp0.Len())
	cp1, err := ReadTableCSV(filepath.Join(dir, "mydata.tmp.csv.1"))
	require.NoError(t, err)
	require.Equal(t, 6, cp1.Len())

	final, err := ReadTableCSV(filepath.Join(dir, "mydata.csv"))
	require.NoError(t, err)
	require.Equal(t, cp1.Rows, final.Rows)

	// Row order follows wave submission order
	require.Equal(t, "cam1", final.Rows[0].Cam)
	require.Equal(t, "cam2", final.Rows[2].Cam)
	row := final.Rows[0]
	require.Equal(t, "1614607200", row.Timestamp)
	require.Equal(t, "2021-03-01", row.Date)
	require.Equal(t, "14", row.Hour)
	require.Equal(t, "0", row.Minute)
	require.Equal(t, 0, row.FrameID)
	require.Equal(t, "edge", row.Model)
	require.Equal(t, "0.900,0.700", row.TopScores)
	require.Equal(t, "2,0", row.TopClasses)
	require.Equal(t, 1, final.Rows[1].FrameID)
}

func TestProcessDatasetCheckpointOffset(t *testing.T) {
	dir := t.TempDir()
	// Leftovers from an interrupted run
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.tmp.csv.0"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.tmp.csv.1"), []byte("x"), 0644))

	cfg := &ProcessConfig{
		Videos:     testVideos,
		Name:       "mydata",
		OutputDir:  dir,
		Models:     detectorSet(testDetector()),
		Model:      "edge",
		MaxWorkers: 1,
		OpenVideo:  openTwoFrames,
		Log:        logs.NewTestingLog(t),
	}
	_, err := ProcessDataset(cfg)
	require.NoError(t, err)

	// New checkpoints never collide with the pre-existing indices
	require.NoFileExists(t, filepath.Join(dir, "mydata.tmp.csv.0"))
	require.FileExists(t, filepath.Join(dir, "mydata.tmp.csv.2"))
	require.FileExists(t, filepath.Join(dir, "mydata.tmp.csv.3"))
}

func TestProcessDatasetWaveCount(t *testing.T) {
	for _, tc := range []struct {
		videos  int
		workers int
		waves   int
	}{
		{videos: 1, workers: 1, waves: 1},
		{videos: 4, workers: 1, waves: 2},
		{videos: 5, workers: 1, waves: 3},
		{videos: 8, workers: 2, waves: 2},
		{videos: 9, workers: 2, waves: 3},
		{videos: 3, workers: 4, waves: 1}, // pool shrinks to fit
	} {
		dir := t.TempDir()
		videos := make([]string, tc.videos)
		for i := range videos {
			videos[i] = fmt.Sprintf("/v/%v.cam1.mkv", 1614607200+i*60)
		}
		cfg := &ProcessConfig{
			Videos:     videos,
			Name:       "mydata",
			OutputDir:  dir,
			Models:     detectorSet(testDetector()),
			Model:      "edge",
			MaxWorkers: tc.workers,
			OpenVideo:  openTwoFrames,
			Log:        logs.NewTestingLog(t),
		}
		stats, err := ProcessDataset(cfg)
		require.NoError(t, err)
		require.Equal(t, tc.waves, stats.Waves, "videos=%v workers=%v", tc.videos, tc.workers)
		require.Equal(t, tc.videos*2, stats.Rows)
	}
}

// A failing video is logged and skipped; the wave and the run continue
func TestProcessDatasetFaultIsolation(t *testing.T) {
	dir := t.TempDir()
	open := func(path string) (videox.FrameSource, error) {
		if filepath.Base(path) == "1614607500.cam2.mkv" {
			return nil, fmt.Errorf("corrupt container")
		}
		return openTwoFrames(path)
	}
	cfg := &ProcessConfig{
		Videos:     testVideos,
		Name:       "mydata",
		OutputDir:  dir,
		Models:     detectorSet(testDetector()),
		Model:      "edge",
		MaxWorkers: 1,
		OpenVideo:  open,
		Log:        logs.NewTestingLog(t),
	}
	stats, err := ProcessDataset(cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 4, stats.Rows)
}

// A video with zero detections contributes no rows, and that is not an error
func TestProcessDatasetEmptyResult(t *testing.T) {
	dir := t.TempDir()
	open := func(path string) (videox.FrameSource, error) {
		if filepath.Base(path) == "1614610800.cam1.mkv" {
			return &fakeSource{}, nil
		}
		return openTwoFrames(path)
	}
	cfg := &ProcessConfig{
		Videos:     testVideos,
		Name:       "mydata",
		OutputDir:  dir,
		Models:     detectorSet(testDetector()),
		Model:      "edge",
		MaxWorkers: 1,
		OpenVideo:  open,
		Log:        logs.NewTestingLog(t),
	}
	stats, err := ProcessDataset(cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Empty)
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 4, stats.Rows)
}

func TestProcessDatasetPerVideoMode(t *testing.T) {
	dir := t.TempDir()
	videos := []string{"/v/1614607200.cam1.mkv", "/v/1614607500.cam2.mkv"}

	// The first video was already processed by an earlier run
	done := PerVideoResultPath(dir, videos[0])
	require.NoError(t, os.WriteFile(done, []byte("x"), 0644))

	cfg := &ProcessConfig{
		Videos:          videos,
		Name:            "mydata",
		OutputDir:       dir,
		Models:          detectorSet(testDetector()),
		Model:           "edge",
		MaxWorkers:      1,
		PerVideoResults: true,
		OpenVideo:       openTwoFrames,
		Log:             logs.NewTestingLog(t),
	}
	stats, err := ProcessDataset(cfg)
	require.NoError(t, err)
	require.Equal(t, 1, stats.SkippedDone)
	require.Equal(t, 1, stats.Processed)

	// The skipped video's placeholder is untouched
	b, err := os.ReadFile(done)
	require.NoError(t, err)
	require.Equal(t, "x", string(b))

	// The processed video got a real result file: 2 frames x 2 objects,
	// boxes in pixel units
	records, err := ReadPerVideoResult(PerVideoResultPath(dir, videos[1]))
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, []string{"0", "2", "0.900", "4", "5", "14", "11"}, records[0])
	require.Equal(t, []string{"0", "0", "0.700", "1", "1", "9", "9"}, records[1])
	require.Equal(t, "1", records[2][0])
}

func TestProcessDatasetMoveWhenDone(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	destDir := t.TempDir()

	videos := make([]string, 0, 3)
	for _, name := range []string{"1614607200.cam1.mkv", "1614607500.cam2.mkv", "1614610800.cam1.mkv"} {
		path := filepath.Join(srcDir, name)
		require.NoError(t, os.WriteFile(path, []byte("video"), 0644))
		videos = append(videos, path)
	}

	cfg := &ProcessConfig{
		Videos:       videos,
		Name:         "mydata",
		OutputDir:    outDir,
		Models:       detectorSet(testDetector()),
		Model:        "edge",
		MaxWorkers:   1,
		MoveWhenDone: destDir,
		OpenVideo:    openTwoFrames,
		Log:          logs.NewTestingLog(t),
	}
	_, err := ProcessDataset(cfg)
	require.NoError(t, err)

	// One configured model, so every processed video relocates
	for _, v := range videos {
		require.NoFileExists(t, v)
		require.FileExists(t, filepath.Join(destDir, filepath.Base(v)))
	}
}

func TestProcessDatasetUnknownModel(t *testing.T) {
	cfg := &ProcessConfig{
		Videos:    testVideos,
		Name:      "mydata",
		OutputDir: t.TempDir(),
		Models:    detectorSet(testDetector()),
		Model:     "ref",
		Log:       logs.NewTestingLog(t),
	}
	_, err := ProcessDataset(cfg)
	require.Error(t, err)
}
