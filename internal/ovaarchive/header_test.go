package ovaarchive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildHeaderMagicAndTypeflag(t *testing.T) {
	buf, err := buildHeader("disk1.vmdk", 12345, time.Unix(1700000000, 0))
	require.NoError(t, err)

	require.Equal(t, "ustar\x00", string(buf[257:263]))
	require.Equal(t, "00", string(buf[263:265]))
	require.Equal(t, byte('0'), buf[156])
	require.Equal(t, "disk1.vmdk", string(buf[0:10]))
}

func TestBuildHeaderChecksumIsSelfConsistent(t *testing.T) {
	buf, err := buildHeader("member", 99, time.Unix(0, 0))
	require.NoError(t, err)

	var sum int64
	for i, b := range buf {
		if i >= 148 && i < 156 {
			sum += int64(' ')
			continue
		}
		sum += int64(b)
	}

	var recomputed [8]byte
	putChecksum(recomputed[:], sum)
	require.Equal(t, recomputed[:], buf[148:156])
}

func TestBuildHeaderRejectsLongName(t *testing.T) {
	_, err := buildHeader(string(make([]byte, 101)), 0, time.Unix(0, 0))
	require.Error(t, err)
}
