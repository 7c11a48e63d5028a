package chunkfetcher

import (
	"bytes"
	"compress/flate"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonjohnsonjr/pargz/fsrc"
	"github.com/jonjohnsonjr/pargz/pgerr"
)

func rawDeflate(t *testing.T, want []byte, flush bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	require.NoError(t, err)
	half := len(want) / 2
	_, err = w.Write(want[:half])
	require.NoError(t, err)
	if flush {
		require.NoError(t, w.Flush())
	}
	_, err = w.Write(want[half:])
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newFetcher(t *testing.T, data []byte) *Fetcher {
	t.Helper()
	src := fsrc.NewReaderAt(bytes.NewReader(data), int64(len(data)))
	return New(src, nil)
}

func TestFetchDecodeExactReachesFinalBlock(t *testing.T) {
	want := bytes.Repeat([]byte("a repeated decodeExact payload "), 2000)
	data := rawDeflate(t, want, false)

	f := newFetcher(t, data)
	c, err := f.Fetch(0, int64(len(data))*8, []byte{}, true)
	require.NoError(t, err)
	require.True(t, c.Final)
	require.Equal(t, want, c.Resolved)
	require.False(t, c.HasMarkers())
}

func TestFetchDecodeStopAfterStreamNoUntilOffset(t *testing.T) {
	want := bytes.Repeat([]byte("a repeated decodeStopAfterStream payload "), 2000)
	data := rawDeflate(t, want, false)

	f := newFetcher(t, data)
	c, err := f.Fetch(0, -1, []byte{}, false)
	require.NoError(t, err)
	require.True(t, c.Final)
	require.Equal(t, want, c.Resolved)
}

func TestFetchDecodeWithMarkersUnresolvedUntilWindowKnown(t *testing.T) {
	want := bytes.Repeat([]byte("a repeated decodeWithMarkers payload "), 2000)
	data := rawDeflate(t, want, false)

	f := newFetcher(t, data)
	c, err := f.Fetch(0, -1, nil, false)
	require.NoError(t, err)
	require.True(t, c.Final)
	require.True(t, c.HasMarkers())
	require.Nil(t, c.Resolved)

	require.NoError(t, c.Resolve(nil))
	require.False(t, c.HasMarkers())
	require.Equal(t, want, c.Resolved)

	// Resolving an already-resolved chunk must be a no-op.
	require.NoError(t, c.Resolve([]byte("irrelevant")))
	require.Equal(t, want, c.Resolved)
}

func TestFetchSingleflightDedupesConcurrentCallers(t *testing.T) {
	want := bytes.Repeat([]byte("concurrent dedup payload "), 4000)
	data := rawDeflate(t, want, false)

	f := newFetcher(t, data)
	const n = 8
	results := make([]*Chunk, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.Fetch(0, -1, nil, false)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
	}
	// All concurrent callers sharing one decode must observe the same
	// underlying chunk object.
	for i := 1; i < n; i++ {
		require.Same(t, results[0], results[i])
	}
}

func TestFetchCachesErrorAndRerunsSynchronously(t *testing.T) {
	// Truncate a valid stream so the decode fails partway through.
	want := bytes.Repeat([]byte("truncated payload for error caching "), 2000)
	data := rawDeflate(t, want, false)
	truncated := data[:len(data)/2]

	f := newFetcher(t, truncated)

	_, err := f.Fetch(0, -1, nil, false)
	require.Error(t, err)

	// A second call at the same offset must re-run synchronously
	// (bypassing singleflight) and surface the same failure again,
	// rather than silently returning a stale success.
	_, err2 := f.Fetch(0, -1, nil, false)
	require.Error(t, err2)
}

func TestFetchRespectsCancellation(t *testing.T) {
	want := bytes.Repeat([]byte("cancellable payload "), 4000)
	data := rawDeflate(t, want, false)

	src := fsrc.NewReaderAt(bytes.NewReader(data), int64(len(data)))
	var cancelled atomic.Bool
	cancelled.Store(true)
	f := New(src, cancelled.Load)

	_, err := f.Fetch(0, -1, nil, false)
	require.Error(t, err)
	require.True(t, pgerr.Is(err, pgerr.Cancelled))
}

func TestSplitPartitionsLosslessly(t *testing.T) {
	want := bytes.Repeat([]byte("split across an internal flush boundary "), 2000)
	data := rawDeflate(t, want, true) // forces an internal block boundary

	f := newFetcher(t, data)
	c, err := f.Fetch(0, int64(len(data))*8, []byte{}, true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(c.Boundaries), 2)

	subs := Split(c)
	require.GreaterOrEqual(t, len(subs), 2)

	var reassembled []byte
	var decodedTotal int64
	for _, s := range subs {
		reassembled = append(reassembled, s.Resolved...)
		decodedTotal += s.DecodedSize
	}
	require.Equal(t, want, reassembled)
	require.Equal(t, c.DecodedSize, decodedTotal)
}

func TestSplitWithoutBoundariesIsNoop(t *testing.T) {
	c := &Chunk{Resolved: []byte("abc"), Boundaries: nil}
	subs := Split(c)
	require.Len(t, subs, 1)
	require.Same(t, c, subs[0])
}

func TestFindStartLocatesBlock(t *testing.T) {
	prefix := bytes.Repeat([]byte("find start prefix text "), 2000)
	suffix := bytes.Repeat([]byte("find start suffix text "), 50)
	want := append(append([]byte(nil), prefix...), suffix...)
	data := rawDeflate(t, want, true)

	f := newFetcher(t, data)
	offset, found, err := f.FindStart(1, int64(len(data))*8)
	require.NoError(t, err)
	require.True(t, found)
	require.Greater(t, offset, int64(0))
}
