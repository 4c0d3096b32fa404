package ovfbuild

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildProducesWellFormedXML(t *testing.T) {
	out, err := Build(VM{
		Name:     "demo-vm",
		GuestOS:  "ubuntu-64",
		NumCPUs:  2,
		MemoryMB: 4096,
		Disks: []Disk{
			{DiskID: "vmdisk-1", FileRef: "file1", FileName: "demo-vm-disk1.vmdk", CapacityBytes: 20 * bytesPerGiB, CompressedSize: 12345},
		},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(out), xml.Header))

	dec := xml.NewDecoder(strings.NewReader(string(out)))
	for {
		if _, err := dec.Token(); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}
}

func TestBuildIncludesDiskAndNetworkSections(t *testing.T) {
	out, err := Build(VM{
		Name:     "demo-vm",
		GuestOS:  "ubuntu-64",
		NumCPUs:  1,
		MemoryMB: 1024,
		Disks: []Disk{
			{DiskID: "vmdisk-1", FileRef: "file1", FileName: "demo-vm-disk1.vmdk", CapacityBytes: 10 * bytesPerGiB, CompressedSize: 999},
		},
	})
	require.NoError(t, err)
	s := string(out)

	require.Contains(t, s, `href="demo-vm-disk1.vmdk"`)
	require.Contains(t, s, `ovf:capacity="10"`)
	require.Contains(t, s, "streamOptimized")
	require.Contains(t, s, `ovf:name="VM Network"`, "default network name when VM has none configured")
	require.Contains(t, s, "ubuntu64Guest")
}

func TestBuildRejectsInvalidCPUCount(t *testing.T) {
	_, err := Build(VM{Name: "x", NumCPUs: 0, MemoryMB: 512})
	require.Error(t, err)
}

func TestLookupGuestOSFallsBackToOther64(t *testing.T) {
	id, osType := lookupGuestOS("some-unknown-tag")
	require.Equal(t, osType, "otherGuest64")
	require.NotZero(t, id)
}
