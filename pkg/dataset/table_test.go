package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableRoundTrip(t *testing.T) {
	table := NewTable()
	table.Append(
		DetectionRow{Cam: "cam1", Timestamp: "1614607500", Date: "2021-03-01", Hour: "14", Minute: "5",
			FrameID: 0, Model: "edge", TopScores: "0.912,0.850,0.300", TopClasses: "2,0,7"},
		DetectionRow{Cam: "cam1", Timestamp: "1614607500", Date: "2021-03-01", Hour: "14", Minute: "5",
			FrameID: 1, Model: "edge", TopScores: "0.500", TopClasses: "2"},
		DetectionRow{Cam: "cam2", Timestamp: "1614610800", Date: "2021-03-01", Hour: "15", Minute: "0",
			FrameID: 0, Model: "ref", TopScores: "", TopClasses: ""},
	)

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, table.WriteCSV(path))

	loaded, err := ReadTableCSV(path)
	require.NoError(t, err)
	require.Equal(t, table.Rows, loaded.Rows)

	// The joined columns split back into per-prediction values
	scores := strings.Split(loaded.Rows[0].TopScores, ",")
	classes := strings.Split(loaded.Rows[0].TopClasses, ",")
	require.Equal(t, []string{"0.912", "0.850", "0.300"}, scores)
	require.Equal(t, []string{"2", "0", "7"}, classes)
}

func TestReadTableCSVErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadTableCSV(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = ReadTableCSV(empty)
	require.Error(t, err)

	short := filepath.Join(dir, "short.csv")
	require.NoError(t, os.WriteFile(short, []byte("a,b\n1,2\n"), 0644))
	_, err = ReadTableCSV(short)
	require.Error(t, err)
}
