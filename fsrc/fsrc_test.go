package fsrc

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferingReadSequential(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	b := NewBuffering(bytes.NewReader(want))

	got := make([]byte, len(want))
	n, err := io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.Equal(t, want, got)

	size, ok := b.Size()
	require.True(t, ok)
	require.Equal(t, int64(len(want)), size)
}

func TestBufferingSeekBackwardsOverSeenData(t *testing.T) {
	want := []byte("0123456789abcdefghij")
	b := NewBuffering(bytes.NewReader(want))

	buf := make([]byte, 10)
	_, err := io.ReadFull(b, buf)
	require.NoError(t, err)
	require.Equal(t, want[:10], buf)

	require.NoError(t, b.Seek(2))
	require.Equal(t, int64(2), b.Tell())

	n, err := b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, want[2:2+n], buf[:n])
}

func TestBufferingSeekAheadOfReadRejected(t *testing.T) {
	b := NewBuffering(bytes.NewReader([]byte("short")))
	err := b.Seek(1000)
	require.Error(t, err)
}

func TestBufferingSizeUnknownUntilDone(t *testing.T) {
	b := NewBuffering(bytes.NewReader([]byte("hello world")))
	_, ok := b.Size()
	require.False(t, ok, "size must be unknown before the underlying reader is exhausted")

	buf := make([]byte, 4)
	_, err := b.Read(buf)
	require.NoError(t, err)
	_, ok = b.Size()
	require.False(t, ok)

	io.ReadAll(b)
	_, ok = b.Size()
	require.True(t, ok)
}

func TestBufferingCloneSharesUnderlyingReader(t *testing.T) {
	want := []byte("clone shares the same underlying reader and buffer")
	b := NewBuffering(bytes.NewReader(want))

	// Advance the original past what a clone will need, so the clone's
	// read is satisfied entirely from already-filled shared buffer.
	first := make([]byte, 10)
	_, err := io.ReadFull(b, first)
	require.NoError(t, err)

	clone, err := b.Clone()
	require.NoError(t, err)
	require.Equal(t, int64(0), clone.Tell(), "a clone starts at offset 0")

	got := make([]byte, len(want))
	n, err := io.ReadFull(clone, got)
	require.NoError(t, err)
	require.Equal(t, len(want), n)
	require.Equal(t, want, got, "clone must read the full stream via the shared reader")
}

// TestBufferingConcurrentClonesReadAhead exercises the scenario the
// review called out: one clone requests data the underlying reader has
// not yet produced while another clone is concurrently pulling from it.
// Neither clone's fillTo may race on the shared io.Reader, and both
// must see a consistent, fully-read buffer.
func TestBufferingConcurrentClonesReadAhead(t *testing.T) {
	want := bytes.Repeat([]byte("concurrent clone read-ahead payload "), 5000)
	b := NewBuffering(bytes.NewReader(want))

	const n = 8
	results := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			clone, err := b.Clone()
			if err != nil {
				errs[i] = err
				return
			}
			got, err := io.ReadAll(clone)
			results[i] = got
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, want, results[i], "clone %d must read the full stream without panicking on nil r", i)
	}
}

func TestBufferingReadByteEOF(t *testing.T) {
	b := NewBuffering(bytes.NewReader(nil))
	_, err := b.ReadByte()
	require.Error(t, err)
	require.Equal(t, io.EOF, err)
}
