// Package container implements the package file layout.
//
// A container is read strictly front to back:
//
//	manifest_index  u64
//	entry_count     u64
//	entry_count x   (hash [32]byte, length u64)
//	payloads        one region per entry, in table order, no padding
//
// Integers are little-endian. There is no magic, version or checksum;
// writer and reader agree on the exact byte layout.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HashSize is the width of an entry hash.
const HashSize = 32

// maxPrealloc bounds slice capacity reserved from an untrusted entry count.
const maxPrealloc = 1024

var ErrManifestIndex = errors.New("pkgstore: manifest index out of range")

// Entry is one row of the table of contents.
type Entry struct {
	Hash   [HashSize]byte
	Length uint64
}

// Header is the fixed prefix plus the table of contents.
type Header struct {
	ManifestIndex uint64
	Entries       []Entry
}

// Manifest returns the table entry designated as the manifest.
func (h *Header) Manifest() Entry {
	return h.Entries[h.ManifestIndex]
}

// ReadHeader reads the header and the full table of contents. The manifest
// index is validated against the entry count before the table is read.
func ReadHeader(r io.Reader) (*Header, error) {
	var manifestIndex, count uint64

	if err := binary.Read(r, binary.LittleEndian, &manifestIndex); err != nil {
		return nil, fmt.Errorf("read manifest index: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	if manifestIndex >= count {
		return nil, fmt.Errorf("%w: index %d, %d entries", ErrManifestIndex, manifestIndex, count)
	}

	entries := make([]Entry, 0, min(count, maxPrealloc))
	for i := range count {
		var entry Entry
		if _, err := io.ReadFull(r, entry.Hash[:]); err != nil {
			return nil, fmt.Errorf("read entry %d hash: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &entry.Length); err != nil {
			return nil, fmt.Errorf("read entry %d length: %w", i, err)
		}
		entries = append(entries, entry)
	}

	return &Header{ManifestIndex: manifestIndex, Entries: entries}, nil
}

// ReadPayloads reads one payload per entry, in table order, and returns
// them keyed by entry hash. A hash appearing twice keeps the later payload.
func ReadPayloads(r io.Reader, entries []Entry) (map[[HashSize]byte][]byte, error) {
	blobs := make(map[[HashSize]byte][]byte, min(len(entries), maxPrealloc))
	for i, entry := range entries {
		data, err := readPayload(r, entry.Length)
		if err != nil {
			return nil, fmt.Errorf("read entry %d payload: %w", i, err)
		}
		blobs[entry.Hash] = data
	}
	return blobs, nil
}

// readPayload grows its buffer as bytes arrive instead of trusting the
// declared length up front.
func readPayload(r io.Reader, length uint64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	var buf bytes.Buffer
	if length <= maxPayloadPrealloc {
		buf.Grow(int(length))
	}
	n, err := io.CopyN(&buf, r, int64(min(length, maxInt64)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("got %d of %d bytes: %w", n, length, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	if uint64(n) != length {
		return nil, fmt.Errorf("got %d of %d bytes: %w", n, length, io.ErrUnexpectedEOF)
	}
	return buf.Bytes(), nil
}

const (
	maxPayloadPrealloc = 1 << 20
	maxInt64           = 1<<63 - 1
)

// Blob is a payload to be written along with its table hash.
type Blob struct {
	Hash [HashSize]byte
	Data []byte
}

// Write encodes blobs as a container, with blobs[manifestIndex] as the
// manifest entry, and returns the number of bytes written.
func Write(w io.Writer, manifestIndex uint64, blobs []Blob) (int64, error) {
	if manifestIndex >= uint64(len(blobs)) {
		return 0, fmt.Errorf("%w: index %d, %d entries", ErrManifestIndex, manifestIndex, len(blobs))
	}

	cw := &countingWriter{w: w}

	if err := binary.Write(cw, binary.LittleEndian, manifestIndex); err != nil {
		return cw.n, fmt.Errorf("write manifest index: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(blobs))); err != nil {
		return cw.n, fmt.Errorf("write entry count: %w", err)
	}

	for i, blob := range blobs {
		if _, err := cw.Write(blob.Hash[:]); err != nil {
			return cw.n, fmt.Errorf("write entry %d hash: %w", i, err)
		}
		if err := binary.Write(cw, binary.LittleEndian, uint64(len(blob.Data))); err != nil {
			return cw.n, fmt.Errorf("write entry %d length: %w", i, err)
		}
	}

	for i, blob := range blobs {
		if _, err := cw.Write(blob.Data); err != nil {
			return cw.n, fmt.Errorf("write entry %d payload: %w", i, err)
		}
	}

	return cw.n, nil
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
