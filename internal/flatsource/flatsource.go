// Package flatsource provides random-access, memory-mapped reading of a raw
// flat VMDK extent (C1): a monolithic flat disk image mapped read-only into
// the process address space, sliced into fixed-size grains on demand. The OS
// pages the mapping in lazily, so resident memory tracks working set rather
// than file size.
package flatsource

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Source is a memory-mapped, read-only view of a flat disk image.
type Source struct {
	file *os.File
	data []byte
	size int64
}

// Open memory-maps path read-only. The mapping remains valid until Close.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open flat extent %q", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat flat extent %q", path)
	}
	size := fi.Size()

	if size == 0 {
		// mmap of a zero-length file fails on every platform; an empty
		// disk has no bytes to map and every grain read is out of range.
		return &Source{file: f, data: nil, size: 0}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap flat extent %q", path)
	}

	return &Source{file: f, data: data, size: size}, nil
}

// Size returns the file length in bytes.
func (s *Source) Size() int64 {
	return s.size
}

// GrainCount returns the number of fixed-size grains needed to cover the
// whole disk, the final one possibly short.
func (s *Source) GrainCount(grainSizeBytes int) uint64 {
	if s.size == 0 {
		return 0
	}
	return uint64((s.size + int64(grainSizeBytes) - 1) / int64(grainSizeBytes))
}

// Grain returns a view of the sequence-th grain of grainSizeBytes. The
// returned slice aliases the mapping and is only valid until Close; callers
// that must outlive a single pass should copy it. The final grain may be
// shorter than grainSizeBytes.
func (s *Source) Grain(sequence uint64, grainSizeBytes int) ([]byte, error) {
	start := int64(sequence) * int64(grainSizeBytes)
	if start >= s.size {
		return nil, errors.Errorf("grain sequence %d out of range (size=%d)", sequence, s.size)
	}
	end := start + int64(grainSizeBytes)
	if end > s.size {
		end = s.size
	}
	return s.data[start:end], nil
}

// Close unmaps the file and releases the underlying descriptor. The source
// must not be used afterward.
func (s *Source) Close() error {
	var err error
	if s.data != nil {
		if e := unix.Munmap(s.data); e != nil {
			err = errors.Wrap(e, "munmap flat extent")
		}
		s.data = nil
	}
	if e := s.file.Close(); e != nil && err == nil {
		err = errors.Wrap(e, "close flat extent")
	}
	return err
}
