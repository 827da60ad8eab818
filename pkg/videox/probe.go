package videox

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// VideoInfo holds the properties of a video file that the decoder needs
// before it can interpret the raw frame stream.
type VideoInfo struct {
	Width    int
	Height   int
	Duration float64 // seconds, 0 if the container doesn't report one
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Probe runs a single ffprobe JSON call against path and returns the
// dimensions of the first video stream.
func Probe(path string) (*VideoInfo, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return parseProbeJSON(out)
}

func parseProbeJSON(data []byte) (*VideoInfo, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	info := &VideoInfo{}
	if raw.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	}
	for _, s := range raw.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			return info, nil
		}
	}
	return nil, fmt.Errorf("no video stream found")
}
