package tfrecord

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
)

// Pair is one (images directory, annotations CSV) input to Convert.
type Pair struct {
	ImagesDir string
	CSV       string
}

// BoundsError reports a normalized box coordinate outside the tolerated
// range. Coordinates slightly above 1.0 are tolerated (boxes are sometimes
// clamped loosely upstream), but anything beyond 1.1, or below 0.0, means the
// annotations don't belong to this image and the conversion must not proceed.
type BoundsError struct {
	Image string
	Field string
	Value float32
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("box coordinate %v = %.4f out of range [0, 1.1] for image %v", e.Field, e.Value, e.Image)
}

const maxNormalizedCoord = 1.1

// annotation is one row of an annotations CSV: a labeled box in pixel
// coordinates on the named image.
type annotation struct {
	Filename string
	Class    string
	XMin     float32
	YMin     float32
	XMax     float32
	YMax     float32
}

// Convert writes a TFRecord file of training examples, one per annotated
// image, from the given (images dir, CSV) pairs. Each CSV must have a header
// naming at least filename, class, xmin, ymin, xmax, ymax.
func Convert(log logs.Log, outputPath string, pairs []Pair, labelMap LabelMap) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()
	writer := NewWriter(out)

	total := 0
	for _, pair := range pairs {
		n, err := convertPair(writer, pair, labelMap)
		if err != nil {
			return err
		}
		log.Infof("Wrote %v examples from %v", n, pair.CSV)
		total += n
	}
	log.Infof("Created TFRecord %v (%v examples)", outputPath, total)
	return nil
}

func convertPair(writer *Writer, pair Pair, labelMap LabelMap) (int, error) {
	annotations, err := readAnnotations(pair.CSV)
	if err != nil {
		return 0, err
	}
	byImage := map[string][]annotation{}
	for _, a := range annotations {
		byImage[a.Filename] = append(byImage[a.Filename], a)
	}
	images := make([]string, 0, len(byImage))
	for name := range byImage {
		images = append(images, name)
	}
	sort.Strings(images)

	for _, name := range images {
		example, err := buildExample(filepath.Join(pair.ImagesDir, name), name, byImage[name], labelMap)
		if err != nil {
			return 0, err
		}
		if err := writer.WriteRecord(example.Marshal()); err != nil {
			return 0, err
		}
	}
	return len(images), nil
}

func buildExample(imagePath, filename string, boxes []annotation, labelMap LabelMap) (Example, error) {
	encoded, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	img, err := cimg.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %v: %w", imagePath, err)
	}
	width := float32(img.Width)
	height := float32(img.Height)

	xmins := make([]float32, 0, len(boxes))
	xmaxs := make([]float32, 0, len(boxes))
	ymins := make([]float32, 0, len(boxes))
	ymaxs := make([]float32, 0, len(boxes))
	classText := make([][]byte, 0, len(boxes))
	classLabel := make([]int64, 0, len(boxes))
	for _, b := range boxes {
		xmins = append(xmins, b.XMin/width)
		xmaxs = append(xmaxs, b.XMax/width)
		ymins = append(ymins, b.YMin/height)
		ymaxs = append(ymaxs, b.YMax/height)
		id, ok := labelMap[b.Class]
		if !ok {
			return nil, fmt.Errorf("class %q of image %v not in label map", b.Class, filename)
		}
		classText = append(classText, []byte(b.Class))
		classLabel = append(classLabel, int64(id))
	}

	for field, coords := range map[string][]float32{
		"xmin": xmins, "xmax": xmaxs, "ymin": ymins, "ymax": ymaxs,
	} {
		for _, v := range coords {
			if v < 0.0 || v > maxNormalizedCoord {
				return nil, &BoundsError{Image: filename, Field: field, Value: v}
			}
		}
	}

	return Example{
		"image/height":           Int64Feature(int64(img.Height)),
		"image/width":            Int64Feature(int64(img.Width)),
		"image/filename":         StringFeature(filename),
		"image/source_id":        StringFeature(filename),
		"image/encoded":          BytesFeature(encoded),
		"image/format":           StringFeature("jpg"),
		"image/object/bbox/xmin": FloatFeature(xmins...),
		"image/object/bbox/xmax": FloatFeature(xmaxs...),
		"image/object/bbox/ymin": FloatFeature(ymins...),
		"image/object/bbox/ymax": FloatFeature(ymaxs...),
		"image/object/class/text": Feature{
			Bytes: classText,
		},
		"image/object/class/label": Int64Feature(classLabel...),
	}, nil
}

func readAnnotations(path string) ([]annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", path, err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("annotations file %v is empty", path)
	}
	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}
	for _, required := range []string{"filename", "class", "xmin", "ymin", "xmax", "ymax"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("annotations file %v is missing column %q", path, required)
		}
	}
	annotations := make([]annotation, 0, len(records)-1)
	for _, rec := range records[1:] {
		coord := func(name string) (float32, error) {
			v, err := strconv.ParseFloat(rec[col[name]], 32)
			return float32(v), err
		}
		a := annotation{
			Filename: rec[col["filename"]],
			Class:    rec[col["class"]],
		}
		for name, dst := range map[string]*float32{
			"xmin": &a.XMin, "ymin": &a.YMin, "xmax": &a.XMax, "ymax": &a.YMax,
		} {
			v, err := coord(name)
			if err != nil {
				return nil, fmt.Errorf("invalid %v %q in %v: %w", name, rec[col[name]], path, err)
			}
			*dst = v
		}
		annotations = append(annotations, a)
	}
	return annotations, nil
}
