package vmdkstream

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWriterHeaderMagicAndVersion(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 40*1024*1024)
	require.NoError(t, err)
	require.NoError(t, w.Finish())

	out := buf.Bytes()
	require.GreaterOrEqual(t, len(out), SectorSize)
	require.Equal(t, []byte{0x4B, 0x44, 0x4D, 0x56}, out[0:4])
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(out[4:8]))
}

func TestWriteGrainSequenceMustBeAscending(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, GrainSizeBytes*4)
	require.NoError(t, err)

	require.NoError(t, w.WriteGrain(0, []byte("a")))
	err = w.WriteGrain(2, []byte("b"))
	require.Error(t, err)
}

func TestZeroLengthDiskProducesEmptyGrainTable(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 0)
	require.NoError(t, err)
	require.NoError(t, w.Finish())
	require.EqualValues(t, 0, w.GrainCount())

	// header (1) + GD marker (1; 0 entries -> 0 entry sectors) + footer
	// marker (1) + footer (1) + EOS (1): 5 sectors, no grain table.
	require.GreaterOrEqual(t, buf.Len(), SectorSize*3)
}

func TestGrainCountMatchesCeilDivision(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 640*GrainSizeBytes)
	require.NoError(t, err)
	for i := uint64(0); i < 640; i++ {
		require.NoError(t, w.WriteGrain(i, []byte{byte(i)}))
	}
	require.NoError(t, w.Finish())
	require.EqualValues(t, 640, w.GrainCount())
}
