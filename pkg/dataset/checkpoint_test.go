package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextCheckpointIndex(t *testing.T) {
	dir := t.TempDir()

	touch := func(name string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	idx, err := NextCheckpointIndex(dir)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	// Checkpoint numbering continues after any pre-existing checkpoints,
	// whatever dataset they belong to
	touch("mydata.tmp.csv.0")
	touch("mydata.tmp.csv.1")
	touch("otherdata.tmp.csv.5")
	touch("mydata.csv")          // final output, not a checkpoint
	touch("mydata.tmp.csv.junk") // unparseable suffix ignored

	idx, err = NextCheckpointIndex(dir)
	require.NoError(t, err)
	require.Equal(t, 6, idx)

	_, err = NextCheckpointIndex(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestCheckpointPath(t *testing.T) {
	require.Equal(t, "/out/mydata.tmp.csv.3", CheckpointPath("/out", "mydata", 3))
}
