package vmdkstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalFieldOffsets(t *testing.T) {
	h := newHeader(100 * SectorSize)
	buf := h.marshal()

	require.EqualValues(t, 100, leU64(buf[12:20]))
	require.EqualValues(t, grainSizeSectors, leU64(buf[20:28]))
	require.EqualValues(t, 0, leU64(buf[28:36]), "descriptor offset must be zero per format")
	require.EqualValues(t, 0, leU64(buf[36:44]), "descriptor size must be zero per format")
	require.Equal(t, byte('\n'), buf[73])
}

func TestAsFooterPatchesGdOffsetOnly(t *testing.T) {
	h := newHeader(GrainSizeBytes)
	footer := h.asFooter(42)
	require.EqualValues(t, 42, footer.GdOffset)
	require.Equal(t, h.Magic, footer.Magic)
	require.Equal(t, h.Capacity, footer.Capacity)
}

func TestAlignToSector(t *testing.T) {
	require.EqualValues(t, 0, alignToSector(0))
	require.EqualValues(t, SectorSize, alignToSector(1))
	require.EqualValues(t, SectorSize, alignToSector(SectorSize))
	require.EqualValues(t, 2*SectorSize, alignToSector(SectorSize+1))
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
