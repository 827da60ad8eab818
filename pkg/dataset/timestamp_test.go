package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseClipTimestamp(t *testing.T) {
	expect := time.Date(2021, time.March, 1, 14, 5, 0, 0, time.UTC)

	good := func(ts string) {
		parsed, err := ParseClipTimestamp(ts)
		require.NoError(t, err)
		require.Equal(t, expect, parsed)
	}
	good("2021-03-01T14-05-00")
	good("20210301_140500")
	good("20210301140500")
	good("1614607500") // unix seconds

	_, err := ParseClipTimestamp("not-a-time")
	require.Error(t, err)
	_, err = ParseClipTimestamp("")
	require.Error(t, err)
}

func TestParseVideoPath(t *testing.T) {
	meta, err := ParseVideoPath("/data/videos/1614607500.cam3.mkv")
	require.NoError(t, err)
	require.Equal(t, "1614607500", meta.Timestamp)
	require.Equal(t, "cam3", meta.Cam)
	require.Equal(t, "2021-03-01", meta.Date)
	require.Equal(t, "14", meta.Hour)
	require.Equal(t, "5", meta.Minute)
	require.Equal(t, "[cam3] 2021-03-01:14", meta.BucketKey())

	_, err = ParseVideoPath("/data/videos/noseparator.mkv")
	require.Error(t, err)
	_, err = ParseVideoPath("/data/videos/badtime.cam1.mkv")
	require.Error(t, err)
}

func TestClipStem(t *testing.T) {
	require.Equal(t, "1614607500.cam3", ClipStem("/data/1614607500.cam3.mkv"))
	require.Equal(t, "plain", ClipStem("plain.mp4"))
	require.Equal(t, "noext", ClipStem("noext"))
}
