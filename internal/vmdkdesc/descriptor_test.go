package vmdkdesc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `# Disk DescriptorFile
version=1
CID=fffffffe
parentCID=ffffffff
createType="monolithicFlat"

# Extent description
RW 83886080 FLAT "disk-flat.vmdk" 0

# The Disk Data Base
#DDB

ddb.adapterType = "lsilogic"
ddb.geometry.cylinders = "5221"
ddb.geometry.heads = "255"
ddb.geometry.sectors = "63"
`

func TestParseMonolithicFlat(t *testing.T) {
	d, err := Parse(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	require.Equal(t, "monolithicFlat", d.CreateType)
	require.Len(t, d.Extents, 1)
	require.Equal(t, "RW", d.Extents[0].Access)
	require.EqualValues(t, 83886080, d.Extents[0].SizeSectors)
	require.Equal(t, ExtentFlat, d.Extents[0].Type)
	require.Equal(t, "disk-flat.vmdk", d.Extents[0].FileName)
	require.EqualValues(t, 0, d.Extents[0].Offset)

	require.Equal(t, "lsilogic", d.AdapterType)
	require.Equal(t, 5221, d.Cylinders)
	require.Equal(t, 255, d.Heads)
	require.Equal(t, 63, d.Sectors)
}

func TestParseRejectsUnsupportedCreateType(t *testing.T) {
	desc := `createType="twoGbMaxExtentSparse"
RW 2097152 SPARSE "disk-s001.vmdk"
`
	_, err := Parse(strings.NewReader(desc))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")
}

func TestParseMissingCreateType(t *testing.T) {
	_, err := Parse(strings.NewReader("RW 100 FLAT \"disk-flat.vmdk\" 0\n"))
	require.Error(t, err)
}

func TestParseMultipleExtents(t *testing.T) {
	desc := `createType="monolithicFlat"
RW 2097152 FLAT "disk-f001.vmdk" 0
RW 2097152 FLAT "disk-f002.vmdk" 0
`
	d, err := Parse(strings.NewReader(desc))
	require.NoError(t, err)
	require.Len(t, d.Extents, 2)
	require.Equal(t, "disk-f001.vmdk", d.Extents[0].FileName)
	require.Equal(t, "disk-f002.vmdk", d.Extents[1].FileName)
}
