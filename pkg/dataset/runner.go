package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgetune/edgetune/pkg/nn"
	"github.com/edgetune/edgetune/pkg/nnload"
	"github.com/edgetune/edgetune/pkg/videox"
)

// DefaultTopK is how many predictions we keep per frame
const DefaultTopK = 10

// FrameDetections is the reduced prediction for one decoded frame.
type FrameDetections struct {
	// Top-K scores and class ids. For classification models the pairs are an
	// unsorted top set; for detection models they follow the model's own
	// descending-score order.
	Scores  []float32
	Classes []int

	// Detection-style models only: the top-K objects with pixel boxes
	Objects []nn.ObjectDetection
}

// InferVideo decodes source frame by frame and reduces each frame's raw
// prediction to a bounded top-K result. It also reports the first frame's
// pixel shape, which callers use to interpret box coordinates. A video with
// zero frames yields an empty result and shape (0, 0); that is not an error.
func InferVideo(source videox.FrameSource, model *nnload.Handle, topK int) ([]FrameDetections, int, int, error) {
	defer source.Close()

	width := 0
	height := 0
	var results []FrameDetections
	params := nn.NewDetectionParams()

	for {
		frame, err := source.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
		if width == 0 {
			width = frame.Width
			height = frame.Height
		}
		img := nn.WholeImage(frame.NChan(), frame.Pixels, frame.Width, frame.Height)

		var fd FrameDetections
		if model.Detector != nil {
			objects, err := nn.TiledInference(model.Detector, img, params, 1)
			if err != nil {
				return nil, 0, 0, err
			}
			objects = nn.TopDetections(objects, topK)
			fd.Objects = objects
			fd.Scores = make([]float32, len(objects))
			fd.Classes = make([]int, len(objects))
			for i, obj := range objects {
				fd.Scores[i] = obj.Confidence
				fd.Classes[i] = obj.Class
			}
		} else {
			scores, err := model.Scorer.ClassScores(img)
			if err != nil {
				return nil, 0, 0, err
			}
			top := nn.TopClassIndices(scores, topK)
			fd.Classes = top
			fd.Scores = make([]float32, len(top))
			for i, idx := range top {
				fd.Scores[i] = scores[idx]
			}
		}
		results = append(results, fd)
	}
	return results, width, height, nil
}

// FrameRow is the flattened per-frame output of one processed video
type FrameRow struct {
	FrameID    int
	TopScores  string
	TopClasses string
}

// VideoResult is everything one worker returns for one video.
// Workers return pure values; only the coordinator touches shared state.
type VideoResult struct {
	Frames []FrameRow
}

func (r *VideoResult) Empty() bool {
	return r == nil || len(r.Frames) == 0
}

// processVideo runs inference over one video and flattens the predictions
// into comma-joined rows. If perVideoDir is non-empty, it also writes the
// per-video result file with denormalized pixel boxes.
func processVideo(open OpenVideoFunc, model *nnload.Handle, topK int, path, perVideoDir string) (*VideoResult, error) {
	source, err := open(path)
	if err != nil {
		return nil, err
	}
	detections, _, _, err := InferVideo(source, model, topK)
	if err != nil {
		return nil, err
	}

	if perVideoDir != "" && len(detections) > 0 {
		if err := writePerVideoResult(PerVideoResultPath(perVideoDir, path), detections); err != nil {
			return nil, err
		}
	}

	result := &VideoResult{
		Frames: make([]FrameRow, 0, len(detections)),
	}
	for i, fd := range detections {
		result.Frames = append(result.Frames, FrameRow{
			FrameID:    i,
			TopScores:  joinScores(fd.Scores),
			TopClasses: joinClasses(fd.Classes),
		})
	}
	return result, nil
}

func joinScores(scores []float32) string {
	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = strconv.FormatFloat(float64(s), 'f', 3, 32)
	}
	return strings.Join(parts, ",")
}

func joinClasses(classes []int) string {
	parts := make([]string, len(classes))
	for i, c := range classes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// PerVideoResultPath is where the per-video result file for a clip lives
func PerVideoResultPath(outputDir, videoPath string) string {
	return filepath.Join(outputDir, ClipStem(videoPath)+".det.csv.gz")
}

var perVideoColumns = []string{"frame", "class_id", "score", "xmin", "ymin", "xmax", "ymax"}

// One row per detected object, boxes in pixel units
func writePerVideoResult(path string, detections []FrameDetections) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := gzip.NewWriter(f)
	w := csv.NewWriter(zw)
	if err := w.Write(perVideoColumns); err != nil {
		return err
	}
	for frameID, fd := range detections {
		for _, obj := range fd.Objects {
			record := []string{
				strconv.Itoa(frameID),
				strconv.Itoa(obj.Class),
				strconv.FormatFloat(float64(obj.Confidence), 'f', 3, 32),
				strconv.Itoa(obj.Box.X),
				strconv.Itoa(obj.Box.Y),
				strconv.Itoa(obj.Box.X2()),
				strconv.Itoa(obj.Box.Y2()),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadPerVideoResult loads a per-video result file. Used by tooling and tests;
// the batch pipeline itself only ever checks for the file's existence.
func ReadPerVideoResult(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	records, err := csv.NewReader(zr).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) != len(perVideoColumns) {
		return nil, fmt.Errorf("%v: not a per-video result file", path)
	}
	return records[1:], nil
}
