package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete
// references to our model backend (pymodel), so that you can call one
// function to build the full model configuration and not need to know about
// the implementation details.
//
// A ModelSet is an explicit registry of loaded models with their device
// assignments. It is built once at startup and passed into the dataset
// coordinator; there is no process-wide model state.

import (
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/nn"
	"github.com/edgetune/edgetune/pkg/pymodel"
)

const (
	FrameworkTorch = "torch" // classification-style: dense class score vectors
	FrameworkTF    = "tf"    // detection-style: (box, score, class) triples
)

const (
	PresetEdge = "edge" // small model, eg mobilenetv2 320x320
	PresetRef  = "ref"  // reference model, eg faster-rcnn 1024x1024
)

// Handle is one loaded model plus its device assignment.
// Exactly one of Detector or Scorer is non-nil, depending on the framework.
type Handle struct {
	Preset   string
	Device   string
	Detector nn.ObjectDetector
	Scorer   nn.ClassScorer
}

func (h *Handle) Config() *nn.ModelConfig {
	if h.Detector != nil {
		return h.Detector.Config()
	}
	return h.Scorer.Config()
}

func (h *Handle) Close() {
	if h.Detector != nil {
		h.Detector.Close()
	}
	if h.Scorer != nil {
		h.Scorer.Close()
	}
}

// ModelSet holds every model configured for a run, keyed by preset name.
type ModelSet struct {
	Framework string
	Models    map[string]*Handle
}

func (s *ModelSet) Get(preset string) (*Handle, error) {
	h := s.Models[preset]
	if h == nil {
		return nil, fmt.Errorf("model '%v' is not loaded", preset)
	}
	return h, nil
}

// Number of configured models. The completion tracker uses this to decide
// when a video is fully processed.
func (s *ModelSet) Count() int {
	return len(s.Models)
}

func (s *ModelSet) Close() {
	for _, h := range s.Models {
		h.Close()
	}
}

// LoadModel starts an inference worker for one (framework, preset) pair.
// modelDir is expected to contain <framework>/<preset>.json (the model config)
// and worker.py (the inference worker entrypoint).
func LoadModel(log logs.Log, modelDir, framework, preset, device string) (*Handle, error) {
	if framework != FrameworkTorch && framework != FrameworkTF {
		return nil, fmt.Errorf("unsupported framework '%v'", framework)
	}
	if preset != PresetEdge && preset != PresetRef {
		return nil, fmt.Errorf("unsupported model '%v'", preset)
	}
	config, err := nn.LoadModelConfig(filepath.Join(modelDir, framework, preset+".json"))
	if err != nil {
		return nil, fmt.Errorf("load model config for %v/%v: %w", framework, preset, err)
	}
	args := []string{
		"python3", filepath.Join(modelDir, "worker.py"),
		"--framework", framework,
		"--preset", preset,
	}
	log.Infof("Loading model %v/%v on %v", framework, preset, device)
	worker, err := pymodel.NewWorker(log, config, device, args)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		Preset: preset,
		Device: device,
	}
	if framework == FrameworkTF {
		h.Detector = worker
	} else {
		h.Scorer = worker
	}
	return h, nil
}

// LoadModelSet loads one or more presets into an explicit ModelSet.
// devices maps preset name to compute device; missing entries default to cpu.
func LoadModelSet(log logs.Log, modelDir, framework string, presets []string, devices map[string]string) (*ModelSet, error) {
	set := &ModelSet{
		Framework: framework,
		Models:    map[string]*Handle{},
	}
	for _, preset := range presets {
		device := devices[preset]
		if device == "" {
			device = "cpu"
		}
		h, err := LoadModel(log, modelDir, framework, preset, device)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.Models[preset] = h
	}
	return set, nil
}
