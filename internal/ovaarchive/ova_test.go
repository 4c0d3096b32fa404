package ovaarchive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSeekableFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "out.ova"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddBytesRecordsCorrectDigestAndManifest(t *testing.T) {
	f := newSeekableFile(t)
	w := NewWriter(f, time.Unix(0, 0))

	payload := []byte("hello ova")
	require.NoError(t, w.AddBytes("greeting.txt", payload))
	require.NoError(t, w.Finish())

	sum := sha256.Sum256(payload)
	want := hex.EncodeToString(sum[:])

	manifest := w.Manifest()
	require.Len(t, manifest, 1)
	require.Equal(t, "greeting.txt", manifest[0].Name)
	require.Equal(t, want, manifest[0].SHA256)
	require.EqualValues(t, len(payload), manifest[0].Size)

	require.Equal(t, "SHA256(greeting.txt)= "+want+"\n", w.ManifestText())
}

func TestArchiveMembersAreSectorAligned(t *testing.T) {
	f := newSeekableFile(t)
	w := NewWriter(f, time.Unix(0, 0))

	require.NoError(t, w.AddBytes("a.txt", []byte("short")))
	require.NoError(t, w.AddBytes("b.txt", bytes.Repeat([]byte("x"), 1000)))
	require.NoError(t, w.Finish())

	fi, err := f.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 0, fi.Size()%blockSize)
}

func TestFinishWritesTwoZeroBlocks(t *testing.T) {
	f := newSeekableFile(t)
	w := NewWriter(f, time.Unix(0, 0))
	require.NoError(t, w.AddBytes("a.txt", []byte("x")))
	require.NoError(t, w.Finish())

	_, err := f.Seek(-2*blockSize, io.SeekEnd)
	require.NoError(t, err)
	tail := make([]byte, 2*blockSize)
	_, err = io.ReadFull(f, tail)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 2*blockSize), tail)
}

func TestAddStreamNameTooLong(t *testing.T) {
	f := newSeekableFile(t)
	w := NewWriter(f, time.Unix(0, 0))
	longName := string(make([]byte, 101))
	err := w.AddBytes(longName, []byte("x"))
	require.Error(t, err)
}
