package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/edgetune/edgetune/pkg/nn"
	"github.com/edgetune/edgetune/pkg/tfrecord"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("maketfrecord", "Convert annotated images into a TFRecord training file")
	images := parser.StringList("i", "images", &argparse.Options{Help: "Image directory (repeat for multiple datasets)", Required: true})
	csvs := parser.StringList("c", "csv", &argparse.Options{Help: "Annotations CSV for the matching --images directory (repeat for multiple datasets)", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output TFRecord file", Required: true})
	labelMapFile := parser.String("l", "label-map", &argparse.Options{Help: "pbtxt label map (default: the COCO classes)", Required: false, Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if len(*images) != len(*csvs) {
		fmt.Print(parser.Usage(fmt.Errorf("need one --csv per --images directory (%v vs %v)", len(*images), len(*csvs))))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	labelMap := tfrecord.LabelMapFromClasses(nn.COCOClasses)
	if *labelMapFile != "" {
		labelMap, err = tfrecord.ReadLabelMap(*labelMapFile)
		check(err)
	}

	pairs := make([]tfrecord.Pair, len(*images))
	for i := range *images {
		pairs[i] = tfrecord.Pair{ImagesDir: (*images)[i], CSV: (*csvs)[i]}
	}

	check(tfrecord.Convert(logger, *output, pairs, labelMap))
}
