package videox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProbeJSON(t *testing.T) {
	sample := `{
		"streams": [
			{"index": 0, "codec_type": "audio", "channels": 2},
			{"index": 1, "codec_type": "video", "width": 1280, "height": 720}
		],
		"format": {"duration": "12.480000"}
	}`
	info, err := parseProbeJSON([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, 1280, info.Width)
	require.Equal(t, 720, info.Height)
	require.InDelta(t, 12.48, info.Duration, 1e-9)

	_, err = parseProbeJSON([]byte(`{"streams": [], "format": {}}`))
	require.Error(t, err)

	_, err = parseProbeJSON([]byte(`not json`))
	require.Error(t, err)
}
