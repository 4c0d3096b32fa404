// Package ovaarchive streams a POSIX ustar TAR archive (C5): disk members,
// then the OVF descriptor, then a SHA-256 manifest, zero-padded to 512-byte
// boundaries and terminated by two all-zero blocks. Per-member digests are
// computed inline while the payload is written, never in a second pass.
package ovaarchive

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ManifestEntry is one line of the archive's .mf manifest.
type ManifestEntry struct {
	Name   string
	SHA256 string // lowercase hex
	Size   int64
}

// Writer streams ustar members into an underlying file, computing each
// member's SHA-256 digest as its payload is written.
//
// The underlying writer must also support Seek: a member's header is
// written as a placeholder before its payload size is known, then rewritten
// once the payload (and therefore its size and checksum) is final. This
// avoids a second pass over potentially hundreds of gigabytes of compressed
// disk payload.
type Writer struct {
	w        io.WriteSeeker
	modTime  time.Time
	manifest []ManifestEntry
}

// NewWriter returns a Writer over w. modTime is stamped on every member
// header; callers that need byte-reproducible archives should pin it rather
// than pass time.Now() directly.
func NewWriter(w io.WriteSeeker, modTime time.Time) *Writer {
	return &Writer{w: w, modTime: modTime}
}

// AddStream adds a member named name whose payload is produced by write,
// which must write exactly the member's payload bytes (no header, no
// padding) to the io.Writer it is given.
func (o *Writer) AddStream(name string, write func(io.Writer) error) (int64, error) {
	headerPos, err := o.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "seek to member header position")
	}

	var placeholder [blockSize]byte
	if _, err := o.w.Write(placeholder[:]); err != nil {
		return 0, errors.Wrapf(err, "write placeholder header for %q", name)
	}

	digest := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(o.w, digest)}
	if err := write(cw); err != nil {
		return 0, errors.Wrapf(err, "write payload for %q", name)
	}
	size := cw.n

	padLen := int64(blockSize) - size%blockSize
	if padLen == blockSize {
		padLen = 0
	}
	if padLen > 0 {
		if _, err := o.w.Write(make([]byte, padLen)); err != nil {
			return 0, errors.Wrapf(err, "pad payload for %q", name)
		}
	}
	endPos, err := o.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "seek to end of member")
	}

	header, err := buildHeader(name, size, o.modTime)
	if err != nil {
		return 0, errors.Wrapf(err, "build header for %q", name)
	}
	if _, err := o.w.Seek(headerPos, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "seek back to rewrite member header")
	}
	if _, err := o.w.Write(header[:]); err != nil {
		return 0, errors.Wrapf(err, "rewrite header for %q", name)
	}
	if _, err := o.w.Seek(endPos, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "seek past rewritten header")
	}

	o.manifest = append(o.manifest, ManifestEntry{
		Name:   name,
		SHA256: hex.EncodeToString(digest.Sum(nil)),
		Size:   size,
	})
	return size, nil
}

// AddBytes adds a member whose entire payload is already in memory (the OVF
// descriptor, the manifest itself).
func (o *Writer) AddBytes(name string, payload []byte) error {
	_, err := o.AddStream(name, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	})
	return err
}

// Manifest returns the manifest entries recorded so far, in write order.
func (o *Writer) Manifest() []ManifestEntry {
	out := make([]ManifestEntry, len(o.manifest))
	copy(out, o.manifest)
	return out
}

// ManifestText renders the entries recorded so far as the .mf manifest body:
// one "SHA256(name)= hexdigest\n" line per entry, lowercase hex.
func (o *Writer) ManifestText() string {
	var buf []byte
	for _, e := range o.manifest {
		buf = append(buf, []byte("SHA256("+e.Name+")= "+e.SHA256+"\n")...)
	}
	return string(buf)
}

// Finish writes the two all-zero end-of-archive blocks. No member may be
// added afterward.
func (o *Writer) Finish() error {
	var zero [blockSize * 2]byte
	if _, err := o.w.Write(zero[:]); err != nil {
		return errors.Wrap(err, "write end-of-archive blocks")
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
