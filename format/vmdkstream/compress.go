package vmdkstream

import (
	"bytes"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// GrainSizeBytes is the fixed grain size the format mandates: 128 sectors of
// 512 bytes.
const GrainSizeBytes = grainSizeSectors * SectorSize

// CompressGrain deflates data at the given level using raw DEFLATE (RFC
// 1951) — no zlib or gzip framing, per the streamOptimized wire format.
// Deterministic: identical (data, level) always yields identical output.
func CompressGrain(data []byte, level CompressionLevel) ([]byte, error) {
	var out bytes.Buffer
	zw, err := flate.NewWriter(&out, int(level))
	if err != nil {
		return nil, errors.Wrap(err, "construct deflate writer")
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "deflate grain")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "finish deflate stream")
	}
	return out.Bytes(), nil
}
