package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/dataset"
	"github.com/edgetune/edgetune/pkg/nnload"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("processdataset", "Run an inference model over a video dataset, producing a detection table")
	input := parser.String("i", "input", &argparse.Options{Help: "Video file or directory of videos to process", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Directory for the detection table and checkpoints", Required: true})
	name := parser.String("n", "name", &argparse.Options{Help: "Dataset name, used to name the output files", Required: true})
	modelDir := parser.String("d", "model-dir", &argparse.Options{Help: "Directory containing model configs and the inference worker", Required: true})
	model := parser.String("m", "model", &argparse.Options{Help: "Model preset to run (edge or ref)", Required: true})
	framework := parser.String("f", "framework", &argparse.Options{Help: "Inference framework (torch or tf)", Required: false, Default: nnload.FrameworkTF})
	models := parser.String("", "models", &argparse.Options{Help: "Comma-separated list of all presets in the experiment (default: just --model). Videos are marked done once every listed preset has processed them", Required: false, Default: ""})
	device := parser.String("", "device", &argparse.Options{Help: "Compute device for the worker (eg cpu, cuda:0)", Required: false, Default: "cpu"})
	topK := parser.Int("k", "top-k", &argparse.Options{Help: "Predictions kept per frame", Required: false, Default: dataset.DefaultTopK})
	maxWorkers := parser.Int("w", "max-workers", &argparse.Options{Help: "Videos processed concurrently", Required: false, Default: 1})
	fast := parser.Flag("", "fast", &argparse.Options{Help: "Fast mode: process at most one video per camera per hour", Required: false})
	perVideo := parser.Flag("", "per-video-results", &argparse.Options{Help: "Also write one result file per video, and skip videos that already have one", Required: false})
	move := parser.String("", "move", &argparse.Options{Help: "Move videos here once all models have processed them", Required: false, Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	videos, err := dataset.Enumerate(*input, dataset.DefaultExtensions)
	check(err)
	if len(videos) == 0 {
		logger.Warnf("No videos found under %v", *input)
		return
	}
	if *fast {
		videos = dataset.FastSample(logger, videos)
	}
	logger.Infof("Processing %v videos from %v", len(videos), *input)

	presets := []string{*model}
	if *models != "" {
		presets = strings.Split(*models, ",")
	}
	set, err := nnload.LoadModelSet(logger, *modelDir, *framework, presets, map[string]string{*model: *device})
	check(err)
	defer set.Close()

	check(os.MkdirAll(*output, 0755))

	stats, err := dataset.ProcessDataset(&dataset.ProcessConfig{
		Videos:          videos,
		Name:            *name,
		OutputDir:       *output,
		Models:          set,
		Model:           *model,
		TopK:            *topK,
		MaxWorkers:      *maxWorkers,
		PerVideoResults: *perVideo,
		MoveWhenDone:    *move,
		Log:             logger,
	})
	check(err)

	logger.Infof("Done: %v waves, %v processed, %v empty, %v failed, %v skipped, %v rows",
		stats.Waves, stats.Processed, stats.Empty, stats.Failed, stats.SkippedDone, stats.Rows)
}
