package pymodel

// Package pymodel bridges to an external inference worker process.
// Frames go out as base64 JSON lines on the worker's stdin, predictions come
// back as JSON lines on stdout. The worker owns the actual model (torch,
// tensorflow, onnx - we don't care), which keeps all ML framework code out of
// this repository.

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/nn"
)

// Worker is one running inference subprocess.
// It implements nn.ObjectDetector and nn.ClassScorer; which of the two is
// meaningful depends on the worker's mode.
type Worker struct {
	log    logs.Log
	config *nn.ModelConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	// One request/response round trip at a time
	lock   sync.Mutex
	closed bool
}

type request struct {
	FrameData string `json:"frame_data"` // base64 rgb24
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type response struct {
	// Classification-style: dense score vector, one entry per model class
	Scores []float32 `json:"scores"`
	// Detection-style: parallel arrays, already sorted by descending score.
	// Boxes are normalized (ymin, xmin, ymax, xmax).
	Boxes      [][4]float32 `json:"boxes"`
	BoxScores  []float32    `json:"box_scores"`
	BoxClasses []int        `json:"box_classes"`

	Error string `json:"error"`
}

// NewWorker launches the worker process.
// args is the full command line, eg ["python3", "workers/detect.py", "--preset", "ref"].
// device is passed to the worker verbatim (eg "cpu", "cuda:0").
func NewWorker(log logs.Log, config *nn.ModelConfig, device string, args []string) (*Worker, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty worker command")
	}
	full := append(append([]string{}, args[1:]...), "--device", device)
	cmd := exec.Command(args[0], full...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start inference worker %q: %w", args[0], err)
	}
	w := &Worker{
		log:    log,
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1024*1024),
	}
	go w.relayStderr(stderr)
	return w, nil
}

func (w *Worker) relayStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		w.log.Infof("[worker %v] %v", w.config.Architecture, scanner.Text())
	}
}

func (w *Worker) Config() *nn.ModelConfig {
	return w.config
}

func (w *Worker) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.stdin.Close()
	w.cmd.Process.Kill()
	w.cmd.Wait()
}

// ClassScores implements nn.ClassScorer
func (w *Worker) ClassScores(img nn.ImageCrop) ([]float32, error) {
	resp, err := w.roundTrip(img)
	if err != nil {
		return nil, err
	}
	return resp.Scores, nil
}

// DetectObjects implements nn.ObjectDetector.
// The worker's normalized boxes are denormalized here using the crop's pixel
// dimensions, so callers always see pixel coordinates.
func (w *Worker) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	resp, err := w.roundTrip(img)
	if err != nil {
		return nil, err
	}
	if len(resp.Boxes) != len(resp.BoxScores) || len(resp.Boxes) != len(resp.BoxClasses) {
		return nil, fmt.Errorf("worker returned mismatched arrays: %v boxes, %v scores, %v classes",
			len(resp.Boxes), len(resp.BoxScores), len(resp.BoxClasses))
	}
	threshold := params.ProbabilityThreshold
	objects := make([]nn.ObjectDetection, 0, len(resp.Boxes))
	for i, box := range resp.Boxes {
		if resp.BoxScores[i] < threshold {
			continue
		}
		norm := nn.NormBox{YMin: box[0], XMin: box[1], YMax: box[2], XMax: box[3]}
		objects = append(objects, nn.ObjectDetection{
			Class:      resp.BoxClasses[i],
			Confidence: resp.BoxScores[i],
			Box:        norm.ToPixels(img.CropWidth, img.CropHeight),
		})
	}
	return objects, nil
}

func (w *Worker) roundTrip(img nn.ImageCrop) (*response, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.closed {
		return nil, fmt.Errorf("worker is closed")
	}
	req := request{
		FrameData: base64.StdEncoding.EncodeToString(cropPixels(img)),
		Width:     img.CropWidth,
		Height:    img.CropHeight,
	}
	enc, err := json.Marshal(&req)
	if err != nil {
		return nil, err
	}
	enc = append(enc, '\n')
	if _, err := w.stdin.Write(enc); err != nil {
		return nil, fmt.Errorf("send frame to worker: %w", err)
	}
	line, err := w.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read worker response: %w", err)
	}
	resp := &response{}
	if err := json.Unmarshal(line, resp); err != nil {
		return nil, fmt.Errorf("parse worker response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("worker: %v", resp.Error)
	}
	return resp, nil
}

// Extract the crop region as a contiguous rgb buffer
func cropPixels(img nn.ImageCrop) []byte {
	if img.CropX == 0 && img.CropY == 0 && img.CropWidth == img.ImageWidth && img.CropHeight == img.ImageHeight {
		return img.Pixels
	}
	out := make([]byte, img.CropWidth*img.CropHeight*img.NChan)
	rowBytes := img.CropWidth * img.NChan
	for y := 0; y < img.CropHeight; y++ {
		src := ((img.CropY+y)*img.ImageWidth + img.CropX) * img.NChan
		copy(out[y*rowBytes:(y+1)*rowBytes], img.Pixels[src:src+rowBytes])
	}
	return out
}
