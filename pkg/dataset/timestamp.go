package dataset

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VideoMeta is the metadata embedded in a clip filename.
// Clips are named <timestamp>.<camera>.<ext>, eg
// "2021-03-01T14-05-00.cam3.mkv" or "1614607500.cam3.mp4".
type VideoMeta struct {
	Timestamp string // raw timestamp token from the filename
	Cam       string
	Time      time.Time
	Date      string // "2006-01-02"
	Hour      string
	Minute    string
}

// Layouts we accept for filename-embedded timestamps, tried in order.
var clipTimeLayouts = []string{
	"2006-01-02T15-04-05",
	"2006-01-02T15_04_05",
	"20060102_150405",
	"20060102150405",
	"2006-01-02",
}

// ParseClipTimestamp parses the timestamp token of a clip filename.
// All-digit tokens of plausible length are treated as unix seconds.
func ParseClipTimestamp(ts string) (time.Time, error) {
	if len(ts) >= 9 && len(ts) <= 10 {
		if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
	}
	for _, layout := range clipTimeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized clip timestamp %q", ts)
}

// ParseVideoPath extracts VideoMeta from a clip path.
func ParseVideoPath(path string) (*VideoMeta, error) {
	stem := ClipStem(path)
	parts := strings.SplitN(stem, ".", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("clip filename %q is not <timestamp>.<camera>.<ext>", filepath.Base(path))
	}
	t, err := ParseClipTimestamp(parts[0])
	if err != nil {
		return nil, err
	}
	return &VideoMeta{
		Timestamp: parts[0],
		Cam:       parts[1],
		Time:      t,
		Date:      t.Format("2006-01-02"),
		Hour:      strconv.Itoa(t.Hour()),
		Minute:    strconv.Itoa(t.Minute()),
	}, nil
}

// BucketKey is the (camera, date, hour) sampling bucket of a clip,
// used by fast mode to keep one video per camera per hour.
func (m *VideoMeta) BucketKey() string {
	return fmt.Sprintf("[%v] %v:%v", m.Cam, m.Date, m.Hour)
}

// ClipStem returns the filename without its final extension,
// eg "/data/1614607500.cam3.mp4" -> "1614607500.cam3".
func ClipStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
