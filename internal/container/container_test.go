package container

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(b byte) [HashSize]byte {
	var h [HashSize]byte
	for i := range h {
		h[i] = b
	}
	return h
}

func TestRoundtrip(t *testing.T) {
	blobs := []Blob{
		{Hash: hashOf(1), Data: []byte("manifest")},
		{Hash: hashOf(2), Data: []byte("<html></html>")},
		{Hash: hashOf(3), Data: []byte{}},
	}

	var buf bytes.Buffer
	n, err := Write(&buf, 0, blobs)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	// 16 header bytes, 40 per entry, then payloads.
	assert.Equal(t, 16+3*40+len("manifest")+len("<html></html>"), buf.Len())

	r := bytes.NewReader(buf.Bytes())
	header, err := ReadHeader(r)
	require.NoError(t, err)
	require.Len(t, header.Entries, 3)
	assert.Equal(t, uint64(0), header.ManifestIndex)
	assert.Equal(t, hashOf(1), header.Manifest().Hash)
	assert.Equal(t, uint64(13), header.Entries[1].Length)

	payloads, err := ReadPayloads(r, header.Entries)
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	assert.Equal(t, []byte("manifest"), payloads[hashOf(1)])
	assert.Equal(t, []byte("<html></html>"), payloads[hashOf(2)])
	assert.Empty(t, payloads[hashOf(3)])
	assert.Equal(t, 0, r.Len(), "reader should be fully consumed")
}

func TestWriteLayoutIsLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, 1, []Blob{
		{Hash: hashOf(9), Data: []byte("a")},
		{Hash: hashOf(8), Data: []byte("bc")},
	})
	require.NoError(t, err)

	raw := buf.Bytes()
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(raw[0:8]))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(raw[8:16]))
	assert.Equal(t, hashOf(9), [HashSize]byte(raw[16:48]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(raw[48:56]))
	assert.Equal(t, []byte("abc"), raw[len(raw)-3:])
}

func TestReadHeaderRejectsManifestIndexOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(5))
	binary.Write(&buf, binary.LittleEndian, uint64(2))

	_, err := ReadHeader(&buf)
	require.ErrorIs(t, err, ErrManifestIndex)
}

func TestReadHeaderRejectsEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(0))

	_, err := ReadHeader(&buf)
	require.ErrorIs(t, err, ErrManifestIndex)
}

func TestReadHeaderTruncatedTable(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(3))
	buf.Write(make([]byte, HashSize))

	_, err := ReadHeader(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadHeaderHugeCountDoesNotPreallocate(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(1<<62))

	_, err := ReadHeader(&buf)
	require.Error(t, err)
}

func TestReadPayloadsTruncated(t *testing.T) {
	entries := []Entry{{Hash: hashOf(1), Length: 10}}

	_, err := ReadPayloads(bytes.NewReader([]byte("short")), entries)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadPayloadsHugeLengthFailsWithoutAllocating(t *testing.T) {
	entries := []Entry{{Hash: hashOf(1), Length: 1 << 60}}

	_, err := ReadPayloads(bytes.NewReader([]byte("tiny")), entries)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadPayloadsDuplicateHashLastWriteWins(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, 0, []Blob{
		{Hash: hashOf(1), Data: []byte("first")},
		{Hash: hashOf(1), Data: []byte("second")},
	})
	require.NoError(t, err)

	r := bytes.NewReader(buf.Bytes())
	header, err := ReadHeader(r)
	require.NoError(t, err)
	payloads, err := ReadPayloads(r, header.Entries)
	require.NoError(t, err)

	require.Len(t, payloads, 1)
	assert.Equal(t, []byte("second"), payloads[hashOf(1)])
}

func TestWriteRejectsBadManifestIndex(t *testing.T) {
	_, err := Write(io.Discard, 1, []Blob{{Hash: hashOf(1)}})
	require.ErrorIs(t, err, ErrManifestIndex)
}
