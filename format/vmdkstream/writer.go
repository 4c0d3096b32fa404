package vmdkstream

import (
	"io"

	"github.com/pkg/errors"
)

// Writer emits a single streamOptimized VMDK to an underlying io.Writer:
// header, grain-marker stream, grain tables, grain directory, footer, EOS.
//
// Grains must be written in strictly ascending sequence starting at zero —
// the same order the parallel grain pipeline's reorder sink guarantees.
// Writer performs no reordering of its own.
type Writer struct {
	w             io.Writer
	header        SparseExtentHeader
	currentSector uint64
	grainOffsets  []uint64 // grainOffsets[sequence] = sector of that grain's marker
}

// NewWriter writes the sparse extent header for a disk of capacityBytes and
// returns a Writer ready to accept grains in sequence order.
func NewWriter(w io.Writer, capacityBytes uint64) (*Writer, error) {
	header := newHeader(capacityBytes)
	hdrBytes := header.marshal()
	if _, err := w.Write(hdrBytes[:]); err != nil {
		return nil, errors.Wrap(err, "write sparse extent header")
	}
	return &Writer{
		w:             w,
		header:        header,
		currentSector: 1,
	}, nil
}

// WriteGrain writes one compressed grain payload. sequence must equal the
// number of grains already written (strictly ascending, no gaps).
func (vw *Writer) WriteGrain(sequence uint64, compressed []byte) error {
	if sequence != uint64(len(vw.grainOffsets)) {
		return errors.Errorf("grain sequence out of order: got %d, expected %d", sequence, len(vw.grainOffsets))
	}

	lba := sequence * grainSizeSectors
	gm := grainMarker{lba: lba, size: uint32(len(compressed))}
	gmBytes := gm.marshal()

	vw.grainOffsets = append(vw.grainOffsets, vw.currentSector)

	written := uint64(0)
	if _, err := vw.w.Write(gmBytes[:]); err != nil {
		return errors.Wrapf(err, "write grain marker at sector %d", vw.currentSector)
	}
	written += uint64(len(gmBytes))
	if _, err := vw.w.Write(compressed); err != nil {
		return errors.Wrapf(err, "write grain payload at sector %d", vw.currentSector)
	}
	written += uint64(len(compressed))

	pad := alignToSector(written) - written
	if pad > 0 {
		if _, err := vw.w.Write(make([]byte, pad)); err != nil {
			return errors.Wrap(err, "pad grain to sector boundary")
		}
	}

	vw.currentSector += (written + pad) / SectorSize
	return nil
}

func (vw *Writer) writeGrainTables() ([]uint32, error) {
	totalGrains := uint64(len(vw.grainOffsets))
	numGTs := (totalGrains + gtEntriesPerGT - 1) / gtEntriesPerGT
	if totalGrains == 0 {
		numGTs = 0
	}

	gdEntries := make([]uint32, 0, numGTs)
	for gt := uint64(0); gt < numGTs; gt++ {
		start := gt * gtEntriesPerGT
		end := start + gtEntriesPerGT
		if end > totalGrains {
			end = totalGrains
		}

		m := marker{numSectors: (gtEntriesPerGT * 4) / SectorSize, markerType: MarkerGT}
		mBytes := m.marshal()
		if _, err := vw.w.Write(mBytes[:]); err != nil {
			return nil, errors.Wrap(err, "write grain table marker")
		}
		vw.currentSector++
		gtSector := vw.currentSector

		entries := make([]byte, gtEntriesPerGT*4)
		for i := start; i < end; i++ {
			putU32(entries[(i-start)*4:(i-start)*4+4], uint32(vw.grainOffsets[i]))
		}
		// entries beyond `end` up to gtEntriesPerGT stay zero.
		if _, err := vw.w.Write(entries); err != nil {
			return nil, errors.Wrap(err, "write grain table entries")
		}
		vw.currentSector += uint64(len(entries)) / SectorSize

		gdEntries = append(gdEntries, uint32(gtSector))
	}

	return gdEntries, nil
}

func (vw *Writer) writeGrainDirectory(gdEntries []uint32) (uint64, error) {
	m := marker{
		numSectors: alignToSector(uint64(len(gdEntries))*4) / SectorSize,
		markerType: MarkerGD,
	}
	mBytes := m.marshal()
	if _, err := vw.w.Write(mBytes[:]); err != nil {
		return 0, errors.Wrap(err, "write grain directory marker")
	}
	vw.currentSector++
	gdSector := vw.currentSector

	raw := make([]byte, len(gdEntries)*4)
	for i, e := range gdEntries {
		putU32(raw[i*4:i*4+4], e)
	}
	padded := alignToSector(uint64(len(raw)))
	buf := make([]byte, padded)
	copy(buf, raw)
	if _, err := vw.w.Write(buf); err != nil {
		return 0, errors.Wrap(err, "write grain directory entries")
	}
	vw.currentSector += padded / SectorSize

	return gdSector, nil
}

func (vw *Writer) writeFooter(gdSector uint64) error {
	m := marker{numSectors: 1, markerType: MarkerFooter}
	mBytes := m.marshal()
	if _, err := vw.w.Write(mBytes[:]); err != nil {
		return errors.Wrap(err, "write footer marker")
	}
	vw.currentSector++

	footer := vw.header.asFooter(gdSector)
	footerBytes := footer.marshal()
	if _, err := vw.w.Write(footerBytes[:]); err != nil {
		return errors.Wrap(err, "write footer")
	}
	vw.currentSector++
	return nil
}

func (vw *Writer) writeEOS() error {
	m := marker{markerType: MarkerEOS}
	mBytes := m.marshal()
	if _, err := vw.w.Write(mBytes[:]); err != nil {
		return errors.Wrap(err, "write end-of-stream marker")
	}
	vw.currentSector++
	return nil
}

// Finish writes grain tables, grain directory, footer, and the end-of-stream
// marker. After Finish, the Writer must not be reused.
func (vw *Writer) Finish() error {
	gdEntries, err := vw.writeGrainTables()
	if err != nil {
		return err
	}
	gdSector, err := vw.writeGrainDirectory(gdEntries)
	if err != nil {
		return err
	}
	if err := vw.writeFooter(gdSector); err != nil {
		return err
	}
	return vw.writeEOS()
}

// GrainCount returns the number of grains written so far.
func (vw *Writer) GrainCount() uint64 {
	return uint64(len(vw.grainOffsets))
}
