package videox

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/bmharper/cimg/v2"
)

// FrameSource decodes a video frame by frame.
// The sequence is lazy, finite and not restartable: once NextFrame returns
// io.EOF, the source is exhausted.
type FrameSource interface {
	// NextFrame returns the next decoded RGB frame, or io.EOF at the end of
	// the video.
	NextFrame() (*cimg.Image, error)

	// Close releases the decoder. Safe to call more than once.
	Close()
}

// FfmpegSource streams rgb24 rawvideo frames out of an ffmpeg subprocess.
type FfmpegSource struct {
	width  int
	height int
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	done   bool
}

// NewFfmpegSource probes the file for its dimensions and starts an ffmpeg
// decode pipe. A video with zero readable frames is not an error: the first
// NextFrame call returns io.EOF.
func NewFfmpegSource(path string) (*FfmpegSource, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("video %v reports zero dimensions", path)
	}
	cmd := exec.Command("ffmpeg",
		"-v", "quiet",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg for %q: %w", path, err)
	}
	return &FfmpegSource{
		width:  info.Width,
		height: info.Height,
		cmd:    cmd,
		stdout: stdout,
		buf:    make([]byte, info.Width*info.Height*3),
	}, nil
}

func (s *FfmpegSource) Width() int {
	return s.width
}

func (s *FfmpegSource) Height() int {
	return s.height
}

func (s *FfmpegSource) NextFrame() (*cimg.Image, error) {
	if s.done {
		return nil, io.EOF
	}
	_, err := io.ReadFull(s.stdout, s.buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// ErrUnexpectedEOF means ffmpeg emitted a partial trailing frame,
		// which we drop.
		s.finish()
		return nil, io.EOF
	} else if err != nil {
		s.finish()
		return nil, err
	}
	pixels := make([]byte, len(s.buf))
	copy(pixels, s.buf)
	return cimg.WrapImage(s.width, s.height, cimg.PixelFormatRGB, pixels), nil
}

func (s *FfmpegSource) Close() {
	if !s.done {
		s.cmd.Process.Kill()
		s.finish()
	}
}

func (s *FfmpegSource) finish() {
	if s.done {
		return
	}
	s.done = true
	s.stdout.Close()
	s.cmd.Wait()
}
