package ovaarchive

import (
	"fmt"
	"time"
)

// blockSize is the fixed ustar block/alignment unit.
const blockSize = 512

// buildHeader renders a 512-byte ustar member header for a regular file
// named name, of the given size, with the checksum computed over the
// resulting bytes per the standard ustar convention (checksum field filled
// with spaces while summing).
func buildHeader(name string, size int64, modTime time.Time) ([blockSize]byte, error) {
	var buf [blockSize]byte

	if len(name) > 100 {
		return buf, fmt.Errorf("member name %q exceeds 100-byte ustar name field", name)
	}
	copy(buf[0:100], name)

	putOctalField(buf[100:108], 0o644)   // mode
	putOctalField(buf[108:116], 0)       // uid
	putOctalField(buf[116:124], 0)       // gid
	putOctalField(buf[124:136], size)    // size
	putOctalField(buf[136:148], modTime.Unix()) // mtime

	// checksum field: 8 spaces while summing.
	for i := 148; i < 156; i++ {
		buf[i] = ' '
	}

	buf[156] = '0' // typeflag: regular file
	// linkname (157:257) stays zero

	copy(buf[257:263], "ustar\x00")
	copy(buf[263:265], "00")

	var sum int64
	for _, b := range buf {
		sum += int64(b)
	}
	putChecksum(buf[148:156], sum)

	return buf, nil
}

// putOctalField writes v as a NUL-terminated ASCII-octal string, zero-padded
// on the left to fill field (the ustar numeric field convention).
func putOctalField(field []byte, v int64) {
	s := fmt.Sprintf("%0*o", len(field)-1, v)
	if len(s) > len(field)-1 {
		s = s[len(s)-(len(field)-1):]
	}
	copy(field, s)
	field[len(field)-1] = 0
}

// putChecksum writes the standard "NNNNNN\0 " checksum format: six octal
// digits, NUL, space.
func putChecksum(field []byte, sum int64) {
	s := fmt.Sprintf("%06o", sum)
	copy(field, s)
	field[6] = 0
	field[7] = ' '
}
