package bitreader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

func srcOf(t *testing.T, data []byte) fsrc.Source {
	t.Helper()
	return fsrc.NewReaderAt(bytes.NewReader(data), int64(len(data)))
}

func TestReadLSBFirst(t *testing.T) {
	// 0b10110010 read 1 bit at a time, LSB first, should yield
	// 0,1,0,0,1,1,0,1.
	r, err := New(srcOf(t, []byte{0xB2}), 0)
	require.NoError(t, err)

	want := []uint64{0, 1, 0, 0, 1, 1, 0, 1}
	for i, w := range want {
		v, err := r.Read(1)
		require.NoErrorf(t, err, "bit %d", i)
		require.Equalf(t, w, v, "bit %d", i)
	}
}

func TestReadMultiBitFields(t *testing.T) {
	r, err := New(srcOf(t, []byte{0xB2, 0x01}), 0)
	require.NoError(t, err)

	v, err := r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xB2), v)

	v, err = r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x01), v)
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r, err := New(srcOf(t, []byte{0xAB}), 0)
	require.NoError(t, err)

	v1, err := r.Peek(4)
	require.NoError(t, err)
	v2, err := r.Peek(4)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	read, err := r.Read(4)
	require.NoError(t, err)
	require.Equal(t, v1, read)
}

func TestSeekAfterPeek(t *testing.T) {
	r, err := New(srcOf(t, []byte{0xFF, 0x00}), 0)
	require.NoError(t, err)

	v, err := r.Peek(12)
	require.NoError(t, err)
	r.SeekAfterPeek(8)
	require.Equal(t, int64(8), r.Tell())

	next, err := r.Read(4)
	require.NoError(t, err)
	require.Equal(t, (v>>8)&0xF, next)
}

func TestSeekToBitOffset(t *testing.T) {
	data := []byte{0x00, 0xFF, 0x00}
	r, err := New(srcOf(t, data), 0)
	require.NoError(t, err)

	require.NoError(t, r.Seek(8))
	require.Equal(t, int64(8), r.Tell())
	v, err := r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xFF), v)

	// Seek to a bit offset that isn't byte-aligned.
	require.NoError(t, r.Seek(4))
	v, err = r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xF0), v) // high nibble from byte 0 (zero) then low nibble of byte 1 (all ones)
}

func TestAlignToByte(t *testing.T) {
	r, err := New(srcOf(t, []byte{0xFF, 0x42}), 0)
	require.NoError(t, err)

	_, err = r.Read(3)
	require.NoError(t, err)
	r.AlignToByte()
	require.Equal(t, int64(8), r.Tell())

	v, err := r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x42), v)
}

func TestUnexpectedEOF(t *testing.T) {
	r, err := New(srcOf(t, []byte{0x01}), 0)
	require.NoError(t, err)

	_, err = r.Read(8)
	require.NoError(t, err)

	_, err = r.Read(1)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.UnexpectedEOF))
	require.True(t, r.EOF())
}

func TestNegativeSeekRejected(t *testing.T) {
	r, err := New(srcOf(t, []byte{0x00}), 0)
	require.NoError(t, err)
	require.Error(t, r.Seek(-1))
}

func TestFillBitsAcrossBufferBoundary(t *testing.T) {
	// Exercise the word-load refill path with enough data to require
	// more than one internal buffer refill.
	data := make([]byte, byteBufSize+16)
	for i := range data {
		data[i] = byte(i)
	}
	r, err := New(srcOf(t, data), 0)
	require.NoError(t, err)

	for i := 0; i < len(data); i++ {
		v, err := r.Read(8)
		require.NoErrorf(t, err, "byte %d", i)
		require.Equalf(t, uint64(data[i]), v, "byte %d", i)
	}
}
