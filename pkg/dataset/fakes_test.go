package dataset

import (
	"io"

	"github.com/bmharper/cimg/v2"
	"github.com/edgetune/edgetune/pkg/nn"
	"github.com/edgetune/edgetune/pkg/nnload"
)

// fakeSource feeds a fixed list of frames
type fakeSource struct {
	frames []*cimg.Image
	pos    int
	closed bool
}

func (s *fakeSource) NextFrame() (*cimg.Image, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *fakeSource) Close() {
	s.closed = true
}

func rgbFrame(width, height int) *cimg.Image {
	return cimg.NewImage(width, height, cimg.PixelFormatRGB)
}

// fakeDetector returns the same objects for every frame
type fakeDetector struct {
	config  *nn.ModelConfig
	objects []nn.ObjectDetection
}

func (d *fakeDetector) Close() {}

func (d *fakeDetector) Config() *nn.ModelConfig {
	return d.config
}

func (d *fakeDetector) DetectObjects(img nn.ImageCrop, params *nn.DetectionParams) ([]nn.ObjectDetection, error) {
	// Copy, because tiled inference adjusts boxes in place
	out := make([]nn.ObjectDetection, len(d.objects))
	copy(out, d.objects)
	return out, nil
}

// fakeScorer plays back one score vector per frame, repeating the last one
type fakeScorer struct {
	config *nn.ModelConfig
	scores [][]float32
	call   int
}

func (s *fakeScorer) Close() {}

func (s *fakeScorer) Config() *nn.ModelConfig {
	return s.config
}

func (s *fakeScorer) ClassScores(img nn.ImageCrop) ([]float32, error) {
	i := s.call
	if i >= len(s.scores) {
		i = len(s.scores) - 1
	}
	s.call++
	return s.scores[i], nil
}

func testModelConfig() *nn.ModelConfig {
	return &nn.ModelConfig{
		Architecture: "fake",
		Width:        64,
		Height:       64,
		Classes:      nn.COCOClasses,
	}
}

func detectorSet(d nn.ObjectDetector) *nnload.ModelSet {
	return &nnload.ModelSet{
		Framework: nnload.FrameworkTF,
		Models: map[string]*nnload.Handle{
			nnload.PresetEdge: {Preset: nnload.PresetEdge, Device: "cpu", Detector: d},
		},
	}
}

func scorerSet(s nn.ClassScorer) *nnload.ModelSet {
	return &nnload.ModelSet{
		Framework: nnload.FrameworkTorch,
		Models: map[string]*nnload.Handle{
			nnload.PresetEdge: {Preset: nnload.PresetEdge, Device: "cpu", Scorer: s},
		},
	}
}
