// Package vmdkstream implements the VMware streamOptimized sparse extent
// container: the 512-byte sparse header, grain markers, grain tables, grain
// directory, footer and end-of-stream marker described by VMware's VMDK
// specification (version 5).
package vmdkstream

const (
	// SectorSize is the fixed VMDK addressing unit.
	SectorSize       = 512
	sectorSizeShift  = 9
	gtEntriesPerGT   = 512
	grainSizeSectors = 128 // 64 KiB grains

	// Magic is "VMDK" read as a little-endian uint32.
	Magic uint32 = 0x564D444B

	version = 3

	flagValidNewlineDetector uint32 = 1 << 0
	flagCompressedGrains     uint32 = 1 << 16
	flagMarkersInUse         uint32 = 1 << 17
	streamOptimizedFlags            = flagValidNewlineDetector | flagCompressedGrains | flagMarkersInUse

	// gdOffsetAtEnd is the header-time placeholder for gd_offset; the footer
	// carries the real value once the grain directory has been written.
	gdOffsetAtEnd uint64 = 0xFFFFFFFFFFFFFFFF

	// overheadSectors is the header's declared (but, per spec, not actually
	// reserved) sector count between header and first grain payload.
	overheadSectors uint64 = 128

	compressAlgorithmDeflate uint16 = 1
)

// MarkerType tags the metadata marker that precedes grain tables, the grain
// directory, and the footer in the stream.
type MarkerType uint32

const (
	MarkerEOS    MarkerType = 0
	MarkerGT     MarkerType = 1
	MarkerGD     MarkerType = 2
	MarkerFooter MarkerType = 3
)

// CompressionLevel is the closed set of deflate levels the format accepts.
type CompressionLevel int

const (
	CompressionFast     CompressionLevel = 1
	CompressionBalanced CompressionLevel = 6
	CompressionMax      CompressionLevel = 9
)

// SparseExtentHeader is the 512-byte header (and, with gd_offset patched,
// footer) of a streamOptimized VMDK.
type SparseExtentHeader struct {
	Magic              uint32
	Version            uint32
	Flags              uint32
	Capacity           uint64
	GrainSize          uint64
	DescriptorOffset   uint64
	DescriptorSize     uint64
	NumGTEsPerGT       uint32
	RgdOffset          uint64
	GdOffset           uint64
	Overhead           uint64
	UncleanShutdown    byte
	SingleEndLineChar  byte
	NonEndLineChar     byte
	DoubleEndLineChar1 byte
	DoubleEndLineChar2 byte
	CompressAlgorithm  uint16
}

// newHeader builds the header for a disk of capacityBytes, rounded up to
// whole sectors per spec.
func newHeader(capacityBytes uint64) SparseExtentHeader {
	capacitySectors := (capacityBytes + SectorSize - 1) / SectorSize
	return SparseExtentHeader{
		Magic:              Magic,
		Version:            version,
		Flags:              streamOptimizedFlags,
		Capacity:           capacitySectors,
		GrainSize:          grainSizeSectors,
		DescriptorOffset:   0,
		DescriptorSize:     0,
		NumGTEsPerGT:       gtEntriesPerGT,
		RgdOffset:          0,
		GdOffset:           gdOffsetAtEnd,
		Overhead:           overheadSectors,
		UncleanShutdown:    0,
		SingleEndLineChar:  '\n',
		NonEndLineChar:     ' ',
		DoubleEndLineChar1: '\r',
		DoubleEndLineChar2: '\n',
		CompressAlgorithm:  compressAlgorithmDeflate,
	}
}

// marshal writes the header to exactly 512 bytes, little-endian.
func (h SparseExtentHeader) marshal() [SectorSize]byte {
	var buf [SectorSize]byte
	putU32(buf[0:4], h.Magic)
	putU32(buf[4:8], h.Version)
	putU32(buf[8:12], h.Flags)
	putU64(buf[12:20], h.Capacity)
	putU64(buf[20:28], h.GrainSize)
	putU64(buf[28:36], h.DescriptorOffset)
	putU64(buf[36:44], h.DescriptorSize)
	putU32(buf[44:48], h.NumGTEsPerGT)
	putU64(buf[48:56], h.RgdOffset)
	putU64(buf[56:64], h.GdOffset)
	putU64(buf[64:72], h.Overhead)
	buf[72] = h.UncleanShutdown
	buf[73] = h.SingleEndLineChar
	buf[74] = h.NonEndLineChar
	buf[75] = h.DoubleEndLineChar1
	buf[76] = h.DoubleEndLineChar2
	putU16(buf[77:79], h.CompressAlgorithm)
	// bytes 79..512 stay zero (pad)
	return buf
}

// asFooter returns a copy of h with gd_offset replaced, per spec §3.
func (h SparseExtentHeader) asFooter(gdOffsetSectors uint64) SparseExtentHeader {
	footer := h
	footer.GdOffset = gdOffsetSectors
	return footer
}

// marker is the 512-byte metadata marker preceding grain tables, the grain
// directory, and the footer.
type marker struct {
	numSectors uint64
	size       uint32
	markerType MarkerType
}

func (m marker) marshal() [SectorSize]byte {
	var buf [SectorSize]byte
	putU64(buf[0:8], m.numSectors)
	putU32(buf[8:12], m.size)
	putU32(buf[12:16], uint32(m.markerType))
	return buf
}

// grainMarker is the 12-byte structure immediately preceding each compressed
// grain payload.
type grainMarker struct {
	lba  uint64
	size uint32
}

func (g grainMarker) marshal() [12]byte {
	var buf [12]byte
	putU64(buf[0:8], g.lba)
	putU32(buf[8:12], g.size)
	return buf
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// alignToSector rounds n up to the next multiple of SectorSize.
func alignToSector(n uint64) uint64 {
	return (n + SectorSize - 1) &^ (SectorSize - 1)
}
