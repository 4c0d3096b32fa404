package flatsource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk-flat.vmdk")
	require.NoError(t, os.WriteFile(path, contents, 0o644))
	return path
}

func TestOpenAndGrainSlicing(t *testing.T) {
	data := make([]byte, 3*64*1024+100) // three full grains, one short grain
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	require.EqualValues(t, len(data), src.Size())
	require.EqualValues(t, 4, src.GrainCount(64*1024))

	g0, err := src.Grain(0, 64*1024)
	require.NoError(t, err)
	require.Equal(t, data[0:64*1024], g0)

	g3, err := src.Grain(3, 64*1024)
	require.NoError(t, err)
	require.Len(t, g3, 100)
	require.Equal(t, data[3*64*1024:], g3)

	_, err = src.Grain(4, 64*1024)
	require.Error(t, err)
}

func TestOpenZeroLengthFile(t *testing.T) {
	path := writeTempFile(t, nil)

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	require.EqualValues(t, 0, src.Size())
	require.EqualValues(t, 0, src.GrainCount(64*1024))

	_, err = src.Grain(0, 64*1024)
	require.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.vmdk"))
	require.Error(t, err)
}
